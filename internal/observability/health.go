package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// BackendCheck reports whether one backend the aggregator depends on is usable.
type BackendCheck func(ctx context.Context) error

// HealthChecker backs /healthz and /readyz. Readiness needs both the
// startup flag and every registered backend check to pass.
type HealthChecker struct {
	started      atomic.Bool
	startTime    time.Time
	checkTimeout time.Duration

	mu     sync.RWMutex
	checks map[string]BackendCheck
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		startTime:    time.Now(),
		checkTimeout: 2 * time.Second,
		checks:       make(map[string]BackendCheck),
	}
}

// AddCheck registers a backend check under name, replacing any earlier one.
func (h *HealthChecker) AddCheck(name string, check BackendCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// SetReady flips the startup flag: reserves are loaded and servers run.
func (h *HealthChecker) SetReady(ready bool) {
	h.started.Store(ready)
}

func (h *HealthChecker) IsReady() bool {
	return h.started.Load()
}

// Check runs every check with a shared deadline and returns "ok" or the
// error text per check name.
func (h *HealthChecker) Check(ctx context.Context) (map[string]string, bool) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	checks := make(map[string]BackendCheck, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	h.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(ctx, h.checkTimeout)
	defer cancel()

	results := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			results[name] = err.Error()
			healthy = false
			continue
		}
		results[name] = "ok"
	}
	return results, healthy
}

// LivenessHandler answers 200 for as long as the process serves HTTP.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	writeHealth(w, http.StatusOK, healthBody{
		Status: "alive",
		Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
	})
}

// ReadinessHandler answers 503 while starting or when any check fails.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if !h.started.Load() {
		writeHealth(w, http.StatusServiceUnavailable, healthBody{Status: "starting"})
		return
	}

	checks, healthy := h.Check(r.Context())
	if !healthy {
		writeHealth(w, http.StatusServiceUnavailable, healthBody{Status: "degraded", Checks: checks})
		return
	}
	writeHealth(w, http.StatusOK, healthBody{Status: "ready", Checks: checks})
}

type healthBody struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

func writeHealth(w http.ResponseWriter, code int, body healthBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
