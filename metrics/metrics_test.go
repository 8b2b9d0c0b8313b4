package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAggregation("fetched")
		m.ObserveMetadataFallback("symbol")
		m.ObserveDisclosure("resolved", time.Second)
		m.ObserveMutation("create", "confirmed")
	})
}

func TestMetricsServer(t *testing.T) {
	srv, err := New("launchpad_test", "127.0.0.1:0")
	require.NoError(t, err)

	m := srv.Metrics()
	m.ObserveAggregation("fetched")
	m.ObserveAggregation("fetched")
	m.ObserveMetadataFallback("symbol")
	m.ObserveMutation("freemint", "confirmed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RegistryAggregations.WithLabelValues("fetched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MetadataFallbacks.WithLabelValues("symbol")))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "launchpad_test_registry_aggregations_total")
	assert.Contains(t, string(body), `launchpad_test_mutation_transitions_total{kind="freemint",status="confirmed"} 1`)
}
