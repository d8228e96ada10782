package main

import (
	"bytes"
	"strconv"
	"strings"
	"testing"
)

func runCmd(t *testing.T, in string, args ...string) (string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetIn(strings.NewReader(in))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v (stderr %s)", err, errOut.String())
	}
	return out.String(), errOut.String()
}

func fieldsOf(t *testing.T, line string) []float64 {
	t.Helper()
	var out []float64
	for _, f := range strings.Fields(line) {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			t.Fatalf("parse %q in %q: %v", f, line, err)
		}
		out = append(out, v)
	}
	return out
}

func TestCCT_Forward(t *testing.T) {
	out, _ := runCmd(t, "# header\n9 0\n\n", "proj=utm", "zone=32")
	lines := strings.Split(out, "\n")
	if len(lines) != 4 || lines[0] != "# header" || lines[2] != "" {
		t.Fatalf("unexpected output %q", out)
	}
	v := fieldsOf(t, lines[1])
	if len(v) != 3 || v[0] != 500000 || v[1] != 0 || v[2] != 0 {
		t.Fatalf("got %v", v)
	}
	if !strings.Contains(lines[1], "500000.0000") {
		t.Fatalf("want 4 decimals for linear output: %q", lines[1])
	}
}

func TestCCT_InverseColumnsDecimals(t *testing.T) {
	out, _ := runCmd(t, "pt1 500000 0\n", "--inverse", "--columns", "2,3", "-d", "3", "proj=utm", "zone=32")
	f := strings.Fields(out)
	if len(f) != 4 || f[3] != "pt1" {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.HasSuffix(f[0], ".000") {
		t.Fatalf("want 3 decimals, got %q", out)
	}
	if v := fieldsOf(t, strings.Join(f[:3], " ")); v[0] != 9 || v[1] != 0 {
		t.Fatalf("got %q", out)
	}
}

func TestCCT_DMSAndErrors(t *testing.T) {
	out, errOut := runCmd(t, "9d0'0\"E 0\nabc 1\n0 100\n", "proj=merc")
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("unexpected output %q", out)
	}
	if v := fieldsOf(t, lines[0]); v[0] < 1e6 || v[0] > 1.1e6 {
		t.Fatalf("9E on merc: %v", v)
	}
	if !strings.HasPrefix(lines[1], "# Record 3 TRANSFORMATION ERROR") {
		t.Fatalf("error line %q", lines[1])
	}
	if !strings.Contains(errOut, "line 2:") {
		t.Fatalf("parse error not reported: %q", errOut)
	}
}

func TestCCT_Roundtrip(t *testing.T) {
	out, _ := runCmd(t, "9 55\n", "--roundtrip", "10", "proj=utm", "zone=32")
	v := fieldsOf(t, out)
	if len(v) != 4 {
		t.Fatalf("want x y z residual, got %q", out)
	}
	if v[3] > 1e-6 {
		t.Fatalf("residual=%v", v[3])
	}
}

func TestParseColumns(t *testing.T) {
	if c, err := parseColumns("2,1"); err != nil || c[0] != 1 || c[1] != 0 {
		t.Fatalf("c=%v err=%v", c, err)
	}
	for _, bad := range []string{"1", "1,2,3,4,5", "0,1", "a,b"} {
		if _, err := parseColumns(bad); err == nil {
			t.Fatalf("%q should fail", bad)
		}
	}
}
