package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsHandler_Smoke(t *testing.T) {
	ExposeBuildInfo("test")
	ObserveHTTP("POST", "/transform", 200, 0.001)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "projd_build_info") || !strings.Contains(body, "http_requests_total") {
		t.Fatalf("metrics payload did not contain expected metric names; got:\n%s", body)
	}
}

func TestTransformCounters_CustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg, true)
	// a second call with the same registry is a no-op
	Init(reg, true)

	before := testutil.ToFloat64(transformPoints.WithLabelValues("ok"))
	AddTransformPoints("ok", 3)
	AddTransformPoints("ok", 0)
	if got := testutil.ToFloat64(transformPoints.WithLabelValues("ok")) - before; got != 3 {
		t.Fatalf("ok points delta=%v want 3", got)
	}

	retries := testutil.ToFloat64(transformRetries)
	IncTransformRetry()
	if testutil.ToFloat64(transformRetries) != retries+1 {
		t.Fatal("retry counter did not move")
	}

	obs := InitLookupObserver("redis")
	obs("hit")
	if testutil.ToFloat64(initLookup.WithLabelValues("redis", "hit")) < 1 {
		t.Fatal("init lookup counter did not move")
	}

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("metrics scrape: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestDisabledIsNoop(t *testing.T) {
	Init(nil, false)
	t.Cleanup(func() { Init(nil, true) })

	before := testutil.ToFloat64(gridFetch.WithLabelValues("hit"))
	ObserveGridFetch("hit")
	if testutil.ToFloat64(gridFetch.WithLabelValues("hit")) != before {
		t.Fatal("disabled metrics should not count")
	}
}
