package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestLogging_RequestID(t *testing.T) {
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Logging(l)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/transform", nil))
	if len(rr.Header().Get("X-Request-ID")) != 16 {
		t.Fatalf("generated id=%q", rr.Header().Get("X-Request-ID"))
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/transform", nil)
	req.Header.Set("X-Request-ID", "given")
	h.ServeHTTP(rr, req)
	if rr.Header().Get("X-Request-ID") != "given" {
		t.Fatalf("id not echoed: %q", rr.Header().Get("X-Request-ID"))
	}
}

func TestLogging_StatusLevel(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ok := Logging(l)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("fine")) }))
	ok.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if buf.Len() != 0 {
		t.Fatalf("2xx should log at debug: %s", buf.String())
	}

	failing := Logging(l)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	failing.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/transform", nil))
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "status=502") {
		t.Fatalf("log=%s", out)
	}
}

func TestTimeout_SetsDeadline(t *testing.T) {
	var has bool
	h := Timeout(time.Second)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, has = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !has {
		t.Fatal("expected a deadline")
	}

	Timeout(0)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, has = r.Context().Deadline()
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if has {
		t.Fatal("zero timeout should not set a deadline")
	}
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil))
	h := Recover(l)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/bounds", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(buf.String(), "err=boom") || !strings.Contains(buf.String(), "path=/bounds") {
		t.Fatalf("log=%s", buf.String())
	}
}

func TestCORS_Preflight(t *testing.T) {
	h := CORS()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { t.Fatal("preflight reached handler") }))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/transform", nil))
	if rr.Code != http.StatusNoContent || rr.Header().Get("Access-Control-Allow-Methods") != "GET,POST,OPTIONS" {
		t.Fatalf("status=%d headers=%v", rr.Code, rr.Header())
	}
}
