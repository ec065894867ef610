package metric

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/netpublish/errors"
)

func gatheredNames(t *testing.T, r *MetricsRegistry) map[string]bool {
	t.Helper()
	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()
	require.NotNil(t, registry.CoreMetrics())

	registry.CoreMetrics().RecordPublish("nt", "map")
	registry.CoreMetrics().RecordRunning(true)

	names := gatheredNames(t, registry)
	assert.True(t, names["netpublish_publisher_values_total"])
	assert.True(t, names["netpublish_pipeline_running"])
	assert.True(t, names["go_goroutines"])
}

func TestMetricsRegistry_RegisterAndUnregister(t *testing.T) {
	registry := NewMetricsRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "rosbus_topics", Help: "topics"})

	require.NoError(t, registry.RegisterGauge("rosbus", "topics", gauge))
	gauge.Set(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(gauge))
	assert.True(t, gatheredNames(t, registry)["rosbus_topics"])

	assert.True(t, registry.Unregister("rosbus", "topics"))
	assert.False(t, registry.Unregister("rosbus", "topics"))
	assert.False(t, gatheredNames(t, registry)["rosbus_topics"])
}

func TestMetricsRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()
	first := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_total", Help: "dup"})
	second := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_total", Help: "dup"})

	require.NoError(t, registry.RegisterCounter("svc", "dup", first))

	err := registry.RegisterCounter("svc", "dup", first)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	err = registry.RegisterCounter("other", "dup", second)
	require.Error(t, err, "prometheus rejects the same fully qualified name")
	assert.True(t, errors.IsInvalid(err))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordPublish("http", "value")
		m.RecordPublishError("http", "transient")
		m.PublisherOpened("http")
		m.PublisherClosed("http")
		m.RecordRun(time.Millisecond)
		m.RecordStepError("step", "invalid")
		m.RecordNATSStatus(true)
	})
}

func TestMetrics_ActivePublishers(t *testing.T) {
	m := NewMetrics()
	m.PublisherOpened("ros")
	m.PublisherOpened("ros")
	m.PublisherClosed("ros")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActivePublishers.WithLabelValues("ros")))
}

func TestServer_Handler(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RecordPublish("nt", "value")
	server := NewServer(0, "", registry)
	assert.Equal(t, "http://localhost:9090/metrics", server.Address())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "netpublish_publisher_values_total")

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "OK", rec.Body.String())

	assert.NoError(t, server.Stop(context.Background()), "stop before start is a no-op")
}
