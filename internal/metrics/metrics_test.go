package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mohammed-shakir/projpipe/internal/core/config"
	"github.com/mohammed-shakir/projpipe/internal/core/observability"
)

func TestProvider_RegistersStandardCollectors_AndServiceVectors(t *testing.T) {
	p := Init(config.MetricsCfg{Enabled: true}, "test")

	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "smoke"})
	p.Register(g)
	g.Set(42)
	if n := testutil.CollectAndCount(g); n == 0 {
		t.Fatalf("expected at least 1 sample from test_gauge, got %d", n)
	}
	observability.AddTransformPoints("ok", 1)

	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"go_goroutines", `projd_build_info{version="test"}`, "transform_points_total"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in payload; got:\n%s", want, body)
		}
	}
	if p.Path() != "/metrics" || p.Separate() {
		t.Fatalf("path=%q separate=%v", p.Path(), p.Separate())
	}
}

func TestProvider_Separate(t *testing.T) {
	p := Init(config.MetricsCfg{Enabled: true, Addr: ":9100", Path: "/m"}, "")
	if !p.Separate() || p.Path() != "/m" {
		t.Fatalf("separate=%v path=%q", p.Separate(), p.Path())
	}
}
