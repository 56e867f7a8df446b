package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	mux := chi.NewRouter()
	mux.Use(Metrics)
	mux.Get("/v1/sessions/{session_id}/rows", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rows":[]}`))
	})
	mux.Post("/v1/sessions/{session_id}/commit", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	tests := []struct {
		method, path, route, status string
	}{
		{http.MethodGet, "/v1/sessions/550e8400-e29b-41d4-a716-446655440000/rows", "/v1/sessions/{session_id}/rows", "200"},
		{http.MethodPost, "/v1/sessions/6ba7b810-9dad-11d1-80b4-00c04fd430c8/commit", "/v1/sessions/{session_id}/commit", "409"},
	}
	for _, tt := range tests {
		t.Run(tt.route, func(t *testing.T) {
			counter := requestsTotal.WithLabelValues(tt.method, tt.route, tt.status)
			before := testutil.ToFloat64(counter)

			mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, nil))

			if got := testutil.ToFloat64(counter) - before; got != 1 {
				t.Errorf("requests_total delta: got %v, want 1", got)
			}
		})
	}
}

func TestMetrics_InFlightReturnsToZero(t *testing.T) {
	before := testutil.ToFloat64(requestsInFlight)
	handler := Metrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v := testutil.ToFloat64(requestsInFlight); v < before+1 {
			t.Errorf("in-flight during request: got %v", v)
		}
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if after := testutil.ToFloat64(requestsInFlight); after != before {
		t.Errorf("in-flight after request: got %v, want %v", after, before)
	}
}

func TestResponseRecorder_CountsBytes(t *testing.T) {
	inner := httptest.NewRecorder()
	rw := &responseRecorder{ResponseWriter: inner, status: http.StatusOK}
	rw.WriteHeader(http.StatusCreated)
	_, _ = rw.Write([]byte("hello "))
	_, _ = rw.Write([]byte("grid"))

	if rw.status != http.StatusCreated || inner.Code != http.StatusCreated {
		t.Errorf("status: got %d/%d", rw.status, inner.Code)
	}
	if rw.bytes != 10 || inner.Body.String() != "hello grid" {
		t.Errorf("bytes: got %d %q", rw.bytes, inner.Body.String())
	}
}
