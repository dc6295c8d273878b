package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Passthrough(t *testing.T) {
	called := false
	handler := Metrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/livez", nil))

	if !called {
		t.Error("inner handler was not called")
	}
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusOK)
	}
}

func TestMetrics_InFlightReturnsToZero(t *testing.T) {
	handler := Metrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if val := testutil.ToFloat64(requestsInFlight); val < 1 {
			t.Errorf("in-flight during request: got %f, want >= 1", val)
		}
	}))

	before := testutil.ToFloat64(requestsInFlight)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

	if after := testutil.ToFloat64(requestsInFlight); after != before {
		t.Errorf("in-flight after request: got %f, want %f", after, before)
	}
}

func TestMetrics_RecordsRoutePatternAndStatus(t *testing.T) {
	mux := chi.NewRouter()
	mux.Use(Metrics)
	mux.Get("/v1/structured-data/{id}/rows", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.WriteHeader(http.StatusOK)
	})

	route := "/v1/structured-data/{id}/rows"
	counter := requestsTotal.WithLabelValues(http.MethodGet, route, "422")
	before := testutil.ToFloat64(counter)

	req := httptest.NewRequest(http.MethodGet, "/v1/structured-data/550e8400-e29b-41d4-a716-446655440000/rows", nil)
	mux.ServeHTTP(httptest.NewRecorder(), req)

	if delta := testutil.ToFloat64(counter) - before; delta != 1 {
		t.Errorf("requests_total{status=422} delta: got %f, want 1", delta)
	}
}

func TestMetrics_UnmatchedRoute(t *testing.T) {
	counter := requestsTotal.WithLabelValues(http.MethodGet, "unmatched", "200")
	before := testutil.ToFloat64(counter)

	Metrics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	if delta := testutil.ToFloat64(counter) - before; delta != 1 {
		t.Errorf("unmatched delta: got %f, want 1", delta)
	}
}
