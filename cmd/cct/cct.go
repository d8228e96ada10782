package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/projpipe/internal/app"
	"github.com/mohammed-shakir/projpipe/internal/core/config"
	"github.com/mohammed-shakir/projpipe/internal/core/model"
	"github.com/mohammed-shakir/projpipe/internal/logger"
	"github.com/mohammed-shakir/projpipe/pkg/proj"
)

type options struct {
	inverse   bool
	columns   string
	decimals  int
	roundtrip int
	inputs    []string
}

func newRootCmd() *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:   "cct [flags] <definition...>",
		Short: "Transform coordinates read from stdin or files",
		Long: `cct reads whitespace separated coordinates, one point per line, and
writes the transformed coordinates. Angular input and output are in degrees.
Lines starting with # and blank lines are passed through.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCCT(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), o, args)
		},
	}
	f := cmd.Flags()
	f.BoolVarP(&o.inverse, "inverse", "I", false, "run the inverse transformation")
	f.StringVarP(&o.columns, "columns", "c", "1,2,3,4", "1-based input columns holding x,y[,z[,t]]")
	f.IntVarP(&o.decimals, "decimals", "d", -1, "decimals in the output, by default 10 for degrees and 4 otherwise")
	f.IntVar(&o.roundtrip, "roundtrip", 0, "append the residual of N round trips to each line")
	f.StringSliceVarP(&o.inputs, "file", "f", nil, "input files, stdin when none")
	return cmd
}

func runCCT(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, o options, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cols, err := parseColumns(o.columns)
	if err != nil {
		return err
	}
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}
	zl := logger.Build(logger.Config{Level: cfg.LogLevel, Console: true, Component: "cct"}, stderr)
	rt, err := app.New(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	p, err := proj.Create(rt.Base, strings.Join(args, " "))
	if err != nil {
		return fmt.Errorf("create transformation: %w", err)
	}
	defer p.Destroy()

	dir := model.Fwd
	if o.inverse {
		dir = model.Inv
	}
	t := &transformer{p: p, dir: dir, cols: cols, decimals: o.decimals, roundtrip: o.roundtrip}

	if len(o.inputs) == 0 {
		return t.run(stdin, stdout, stderr)
	}
	for _, name := range o.inputs {
		f, err := os.Open(name) // #nosec G304 -- user supplied input file
		if err != nil {
			return err
		}
		err = t.run(f, stdout, stderr)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func parseColumns(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	if len(parts) < 2 || len(parts) > 4 {
		return nil, fmt.Errorf("--columns needs 2 to 4 entries, got %q", s)
	}
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("--columns: bad column %q", p)
		}
		out[i] = n - 1
	}
	return out, nil
}

type transformer struct {
	p         *proj.PJ
	dir       model.Direction
	cols      []int
	decimals  int
	roundtrip int
}

func (t *transformer) run(in io.Reader, out, stderr io.Writer) error {
	w := bufio.NewWriter(out)
	defer func() { _ = w.Flush() }()

	degIn := t.p.AngularInput(t.dir)
	degOut := t.p.AngularOutput(t.dir)
	dec := t.decimals
	if dec < 0 {
		dec = 4
		if degOut || t.p.DegreeOutput(t.dir) {
			dec = 10
		}
	}

	sc := bufio.NewScanner(in)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		trimmed := strings.TrimSpace(text)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			_, _ = fmt.Fprintln(w, text)
			continue
		}
		fields := strings.Fields(trimmed)
		c, rest, err := t.coord(fields)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "line %d: %v\n", line, err)
			continue
		}
		if degIn {
			c[0], c[1] = c[0]*model.DegToRad, c[1]*model.DegToRad
		}

		var residual float64
		t.p.ErrnoReset()
		if t.roundtrip > 0 {
			residual = t.p.Roundtrip(t.dir, t.roundtrip, &c)
		} else {
			c = t.p.Trans(t.dir, c)
		}
		if c.IsError() {
			_, _ = fmt.Fprintf(w, "# Record %d TRANSFORMATION ERROR: %s (%s)\n", line, trimmed, t.p.Errno())
			continue
		}
		if degOut {
			c[0], c[1] = c[0]*model.RadToDeg, c[1]*model.RadToDeg
		}

		_, _ = fmt.Fprint(w, formatCoord(c, dec))
		if t.roundtrip > 0 {
			_, _ = fmt.Fprintf(w, "  %.6g", residual)
		}
		for _, r := range rest {
			_, _ = fmt.Fprint(w, " ", r)
		}
		_, _ = fmt.Fprintln(w)
	}
	return sc.Err()
}

// coord picks the configured columns from fields and returns the remaining
// fields in their original order. z defaults to 0 and t to the unset value.
func (t *transformer) coord(fields []string) (model.Coord, []string, error) {
	c := model.Coord{0, 0, 0, model.HugeVal}
	used := map[int]bool{}
	for i, col := range t.cols {
		if col >= len(fields) {
			if i < 2 {
				return c, nil, fmt.Errorf("missing column %d", col+1)
			}
			continue
		}
		v, err := parseValue(fields[col])
		if err != nil {
			return c, nil, fmt.Errorf("column %d: %w", col+1, err)
		}
		c[i] = v
		used[col] = true
	}
	var rest []string
	for i, f := range fields {
		if !used[i] {
			rest = append(rest, f)
		}
	}
	return c, rest, nil
}

func parseValue(s string) (float64, error) {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	// sexagesimal input such as 12d30'15"W
	rad, err := model.ParseAngle(s)
	if err != nil {
		return 0, err
	}
	return rad * model.RadToDeg, nil
}

func formatCoord(c model.Coord, dec int) string {
	parts := make([]string, 0, 4)
	for i, v := range c {
		if i == 3 && v == model.HugeVal {
			break
		}
		d := dec
		if i >= 2 && dec > 4 {
			d = 4
		}
		parts = append(parts, fmt.Sprintf("%*.*f", 14, d, v))
	}
	return strings.Join(parts, " ")
}
