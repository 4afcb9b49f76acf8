package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	m := New()
	router := chi.NewRouter()
	router.Use(m.Middleware)
	router.Get("/tweets/{tweetID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, path := range []string{"/tweets/1", "/tweets/2"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	count := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/tweets/{tweetID}", "404"))
	assert.Equal(t, float64(2), count)
}

func TestCounters(t *testing.T) {
	m := New()
	m.AuthAttempt("login", "failure")
	m.EventDelivered("hub", nil)
	m.EventDelivered("broker", errors.New("down"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuthAttemptsTotal.WithLabelValues("login", "failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsTotal.WithLabelValues("hub", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsTotal.WithLabelValues("broker", "error")))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.AuthAttempt("login", "ok") })
}

func TestHandler_ExposesRegistry(t *testing.T) {
	m := New()
	m.AuthAttempt("signup", "ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `dwitter_auth_attempts_total{operation="signup",result="ok"} 1`)
}
