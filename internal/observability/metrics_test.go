package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIngestMetricsLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIngestMetrics(reg)
	m.ObserveDelivery("push", "stored")
	m.ObserveDelivery(" Push ", "stored")
	m.ObserveDelivery("issues", "skipped")
	m.ObserveDelivery("", "bad_request")

	if got := testutil.ToFloat64(m.deliveries.WithLabelValues("push", "stored")); got != 2 {
		t.Fatalf("push/stored got %v", got)
	}
	if got := testutil.ToFloat64(m.deliveries.WithLabelValues("other", "skipped")); got != 1 {
		t.Fatalf("other/skipped got %v", got)
	}
	if got := testutil.ToFloat64(m.deliveries.WithLabelValues("none", "bad_request")); got != 1 {
		t.Fatalf("none/bad_request got %v", got)
	}
}

func TestHTTPMetricsWrap(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	h := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	for _, path := range []string{"/api/events/abc", "/api/events/def", "/missing"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "/api/events/{id}", "200")); got != 2 {
		t.Fatalf("event lookups got %v", got)
	}
	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "other", "404")); got != 1 {
		t.Fatalf("unknown path got %v", got)
	}
}
