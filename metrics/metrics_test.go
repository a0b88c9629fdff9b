package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, c.Write(&out))
	return out.GetCounter().GetValue()
}

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())

	m.RecordStatusCheck("production", OutcomeOK, 10*time.Millisecond)
	m.RecordStatusCheck("production", OutcomeOK, 20*time.Millisecond)
	m.RecordStatusCheck("homolog", OutcomeTimeout, time.Second)
	m.RecordConfigMutation("set_environment", nil)
	m.RecordConfigMutation("set_environment", errors.New("boom"))
	m.RecordCertificateUpload(nil)
	m.RecordCertificatesPruned(3)
	m.RecordRateLimited()
	m.RecordConfigCreated()

	assert.Equal(t, 2.0, value(t, m.StatusChecks.WithLabelValues("production", OutcomeOK)))
	assert.Equal(t, 1.0, value(t, m.StatusChecks.WithLabelValues("homolog", OutcomeTimeout)))
	assert.Equal(t, 1.0, value(t, m.ConfigMutations.WithLabelValues("set_environment", "error")))
	assert.Equal(t, 1.0, value(t, m.CertificateUploads.WithLabelValues("ok")))
	assert.Equal(t, 3.0, value(t, m.CertificatesPruned))
	assert.Equal(t, 1.0, value(t, m.StatusRateLimited))
	assert.Equal(t, 1.0, value(t, m.ConfigsCreated))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordStatusCheck("production", OutcomeOK, time.Millisecond)
		m.RecordConfigMutation("save", nil)
		m.RecordCertificateUpload(nil)
		m.RecordCertificatesPruned(1)
		m.RecordRateLimited()
		m.RecordConfigCreated()
	})
}

func TestMetricsServer_ServesRegistry(t *testing.T) {
	ms, err := New("sefaz-config-gateway", "127.0.0.1:0")
	require.NoError(t, err)

	ms.Metrics().RecordStatusCheck("homolog", OutcomeOK, time.Millisecond)

	rr := httptest.NewRecorder()
	ms.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `sefaz_config_gateway_status_checks_total{environment="homolog",outcome="ok"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
