package observability_test

import (
	"LendingAggregator/internal/observability"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_Readiness(t *testing.T) {
	h := observability.NewHealthChecker()

	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.SetReady(true)
	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthChecker_BackendChecksGateReadiness(t *testing.T) {
	h := observability.NewHealthChecker()
	h.SetReady(true)
	natsUp := true
	h.AddCheck("postgres", func(context.Context) error { return nil })
	h.AddCheck("nats", func(context.Context) error {
		if !natsUp {
			return errors.New("disconnected")
		}
		return nil
	})

	readyz := func() (int, map[string]interface{}) {
		rec := httptest.NewRecorder()
		h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return rec.Code, body
	}

	code, body := readyz()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body["status"])

	natsUp = false
	code, body = readyz()
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]interface{}{"postgres": "ok", "nats": "disconnected"}, body["checks"])
}

func TestHealthChecker_CheckDeadline(t *testing.T) {
	h := observability.NewHealthChecker()
	h.AddCheck("redis", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		if !ok {
			return errors.New("no deadline")
		}
		return nil
	})

	checks, healthy := h.Check(context.Background())
	assert.True(t, healthy)
	assert.Equal(t, map[string]string{"redis": "ok"}, checks)
}

func TestNewLoggerTo_ComponentField(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLoggerTo(&buf, "pool", zerolog.InfoLevel)
	logger.Debug().Msg("hidden")
	logger.Info().Str("asset", "USDC").Msg("deposit")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "pool", line["component"])
	assert.Equal(t, "USDC", line["asset"])
	assert.Equal(t, "deposit", line["message"])
}

func TestNewMetrics_IsolatedRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	m1 := observability.NewMetrics(reg1)
	observability.NewMetrics(reg2)

	m1.WorkflowsCompleted.WithLabelValues("deposit", "USDC").Inc()

	counterValue := func(reg *prometheus.Registry) float64 {
		families, err := reg.Gather()
		require.NoError(t, err)
		for _, mf := range families {
			if mf.GetName() == "lagg_workflows_completed_total" {
				return mf.GetMetric()[0].GetCounter().GetValue()
			}
		}
		return 0
	}
	assert.Equal(t, 1.0, counterValue(reg1))
	assert.Equal(t, 0.0, counterValue(reg2))
}
