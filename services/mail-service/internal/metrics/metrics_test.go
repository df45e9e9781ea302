package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveHTTP("GET", "/x", 200, time.Millisecond)
	m.IngestResult(SourceSync, "created")
	m.SyncRun(nil, time.Second)
	m.WebhookRejected("signature")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCounters(t *testing.T) {
	m := New()
	m.IngestResult(SourceWebhook, "created")
	m.IngestResult(SourceWebhook, "created")
	m.SyncRun(errors.New("x"), time.Second)
	m.WebhookRejected("schema")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ingested.WithLabelValues(SourceWebhook, "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncRuns.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookRejects.WithLabelValues("schema")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveHTTP("GET", "/api/emails/", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mailbridge_http_requests_total{method="GET",route="/api/emails/",status="200"} 1`)
}
