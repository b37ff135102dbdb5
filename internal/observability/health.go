package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	// StatusHealthy indicates the component is healthy.
	StatusHealthy HealthStatus = "healthy"
	// StatusUnhealthy indicates the component is unhealthy.
	StatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a health check function.
type HealthCheck func(ctx context.Context) error

// ComponentHealth represents the health status of a single component.
type ComponentHealth struct {
	Status  HealthStatus `json:"status"`
	Error   string       `json:"error,omitempty"`
	Latency string       `json:"latency,omitempty"`
}

// HealthResponse represents the overall health check response.
type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components"`
}

// ReadinessResponse represents the readiness check response.
type ReadinessResponse struct {
	Ready      bool                       `json:"ready"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

// HealthChecker manages health and readiness checks.
type HealthChecker struct {
	mu              sync.RWMutex
	healthChecks    map[string]HealthCheck
	readinessChecks map[string]HealthCheck
	version         string
	timeout         time.Duration
}

// NewHealthChecker creates a new health checker.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		healthChecks:    make(map[string]HealthCheck),
		readinessChecks: make(map[string]HealthCheck),
		version:         version,
		timeout:         5 * time.Second,
	}
}

// RegisterHealthCheck registers a health check for a component.
func (hc *HealthChecker) RegisterHealthCheck(name string, check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.healthChecks[name] = check
}

// RegisterReadinessCheck registers a readiness check for a component.
func (hc *HealthChecker) RegisterReadinessCheck(name string, check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.readinessChecks[name] = check
}

// SetTimeout sets the timeout for health checks.
func (hc *HealthChecker) SetTimeout(timeout time.Duration) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.timeout = timeout
}

// CheckHealth performs all health checks and returns the health status.
func (hc *HealthChecker) CheckHealth(ctx context.Context) *HealthResponse {
	components := hc.run(ctx, hc.snapshot(&hc.healthChecks))

	overallStatus := StatusHealthy
	for _, component := range components {
		if component.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
			break
		}
	}

	return &HealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Version:    hc.version,
		Components: components,
	}
}

// CheckReadiness performs all readiness checks. Every component must be
// healthy for the service to be ready.
func (hc *HealthChecker) CheckReadiness(ctx context.Context) *ReadinessResponse {
	components := hc.run(ctx, hc.snapshot(&hc.readinessChecks))

	ready := true
	for _, component := range components {
		if component.Status != StatusHealthy {
			ready = false
			break
		}
	}

	return &ReadinessResponse{
		Ready:      ready,
		Timestamp:  time.Now(),
		Components: components,
	}
}

func (hc *HealthChecker) snapshot(m *map[string]HealthCheck) map[string]HealthCheck {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	checks := make(map[string]HealthCheck, len(*m))
	for name, check := range *m {
		checks[name] = check
	}
	return checks
}

// run executes a set of checks concurrently.
func (hc *HealthChecker) run(ctx context.Context, checks map[string]HealthCheck) map[string]ComponentHealth {
	components := make(map[string]ComponentHealth)
	if len(checks) == 0 {
		return components
	}

	hc.mu.RLock()
	timeout := hc.timeout
	hc.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		name   string
		health ComponentHealth
	}

	var wg sync.WaitGroup
	resultChan := make(chan result, len(checks))

	for name, check := range checks {
		wg.Add(1)
		go func(name string, check HealthCheck) {
			defer wg.Done()

			start := time.Now()
			err := check(ctx)
			latency := time.Since(start)

			health := ComponentHealth{
				Status:  StatusHealthy,
				Latency: latency.String(),
			}
			if err != nil {
				health.Status = StatusUnhealthy
				if ctx.Err() != nil {
					health.Error = "check timed out"
				} else {
					health.Error = err.Error()
				}
			}

			resultChan <- result{name: name, health: health}
		}(name, check)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for r := range resultChan {
		components[r.name] = r.health
	}

	return components
}

// HealthHandler returns an HTTP handler for the health endpoint.
func (hc *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := hc.CheckHealth(r.Context())

		statusCode := http.StatusOK
		if health.Status == StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)

		if err := json.NewEncoder(w).Encode(health); err != nil {
			GetLogger().WithError(err).Error("failed to encode health response")
		}
	}
}

// ReadinessHandler returns an HTTP handler for the readiness endpoint.
func (hc *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness := hc.CheckReadiness(r.Context())

		statusCode := http.StatusOK
		if !readiness.Ready {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)

		if err := json.NewEncoder(w).Encode(readiness); err != nil {
			GetLogger().WithError(err).Error("failed to encode readiness response")
		}
	}
}

// LivenessHandler returns an HTTP handler for the liveness endpoint.
// Liveness just checks that the process is alive.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := map[string]interface{}{
			"alive":     true,
			"timestamp": time.Now(),
		}

		if err := json.NewEncoder(w).Encode(response); err != nil {
			GetLogger().WithError(err).Error("failed to encode liveness response")
		}
	}
}

// StoreHealthCheck creates a health check for the envelope store.
func StoreHealthCheck(pingFunc func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) error {
		if pingFunc == nil {
			return fmt.Errorf("store ping function not provided")
		}
		return pingFunc(ctx)
	}
}

// RegistryHealthCheck creates a health check for the PID registry.
func RegistryHealthCheck(checkFunc func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) error {
		if checkFunc == nil {
			return fmt.Errorf("registry check function not provided")
		}
		return checkFunc(ctx)
	}
}
