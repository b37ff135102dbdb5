package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	// Handlers log through the global logger.
	if _, err := InitLogger(LoggerOptions{Level: "error"}); err != nil {
		panic(err)
	}
}

func TestHealthChecker_CheckHealth(t *testing.T) {
	hc := NewHealthChecker("1.0.0")
	hc.RegisterHealthCheck("store", func(_ context.Context) error { return nil })

	resp := hc.CheckHealth(context.Background())
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "1.0.0", resp.Version)
	require.Contains(t, resp.Components, "store")
	assert.Equal(t, StatusHealthy, resp.Components["store"].Status)
}

func TestHealthChecker_UnhealthyComponent(t *testing.T) {
	hc := NewHealthChecker("1.0.0")
	hc.RegisterHealthCheck("store", func(_ context.Context) error { return nil })
	hc.RegisterHealthCheck("registry", func(_ context.Context) error {
		return errors.New("connection refused")
	})

	resp := hc.CheckHealth(context.Background())
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Equal(t, "connection refused", resp.Components["registry"].Error)
}

func TestHealthChecker_CheckReadiness(t *testing.T) {
	hc := NewHealthChecker("1.0.0")
	hc.RegisterReadinessCheck("store", func(_ context.Context) error { return nil })

	resp := hc.CheckReadiness(context.Background())
	assert.True(t, resp.Ready)

	hc.RegisterReadinessCheck("registry", func(_ context.Context) error {
		return errors.New("down")
	})
	resp = hc.CheckReadiness(context.Background())
	assert.False(t, resp.Ready)
}

func TestHealthChecker_Timeout(t *testing.T) {
	hc := NewHealthChecker("1.0.0")
	hc.SetTimeout(20 * time.Millisecond)
	hc.RegisterHealthCheck("slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})

	resp := hc.CheckHealth(context.Background())
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Equal(t, "check timed out", resp.Components["slow"].Error)
}

func TestHealthHandler(t *testing.T) {
	hc := NewHealthChecker("1.0.0")
	hc.RegisterHealthCheck("store", func(_ context.Context) error { return nil })

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	hc.HealthHandler()(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestReadinessHandler_NotReady(t *testing.T) {
	hc := NewHealthChecker("1.0.0")
	hc.RegisterReadinessCheck("store", func(_ context.Context) error {
		return errors.New("down")
	})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	hc.ReadinessHandler()(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLivenessHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()
	LivenessHandler()(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alive")
}

func TestStoreHealthCheck(t *testing.T) {
	check := StoreHealthCheck(nil)
	assert.Error(t, check(context.Background()))

	check = StoreHealthCheck(func(_ context.Context) error { return nil })
	assert.NoError(t, check(context.Background()))
}
