package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newMetricsTestServer builds a Server backed by a fresh isolated registry so
// tests do not pollute prometheus.DefaultRegisterer.
func newMetricsTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s := newTestServer(&fakeAsker{})
	s.metrics = newServerMetrics(reg)
	return s, reg
}

// counterValue returns the value of the named counter with the given label
// pairs, and whether it was found.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) (float64, bool) {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metric
				}
			}
			return m.GetCounter().GetValue(), true
		}
	}
	return 0, false
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	_, reg := newMetricsTestServer(t)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func Test_Metrics_InstrumentCountsByStatus(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	h := s.instrument("query", http.HandlerFunc(s.handleQuery))
	for _, body := range []string{`{"question":"ok"}`, `{"question":""}`, `{"question":""}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(body))
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	ok, found := counterValue(t, reg, "raggate_http_requests_total",
		map[string]string{"handler": "query", "code": "200"})
	if !found || ok != 1 {
		t.Errorf("want 1 request with code 200, got %v (found=%v)", ok, found)
	}
	invalid, found := counterValue(t, reg, "raggate_http_requests_total",
		map[string]string{"handler": "query", "code": "422"})
	if !found || invalid != 2 {
		t.Errorf("want 2 requests with code 422, got %v (found=%v)", invalid, found)
	}
}
