package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

type dependency struct {
	check CheckFunc
	// optional dependencies degrade the agent instead of failing it
	optional bool
}

// HealthChecker reports the health of the agent's dependencies
type HealthChecker struct {
	version string

	mu   sync.RWMutex
	deps map[string]dependency
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHealthChecker creates a checker reporting version
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{version: version, deps: make(map[string]dependency)}
}

// Register adds a named check. A failing optional check degrades the agent; a failing
// required check makes it unhealthy.
func (h *HealthChecker) Register(name string, optional bool, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deps[name] = dependency{check: check, optional: optional}
}

// RegisterDatabase checks the directory database with a ping and a trivial query
func (h *HealthChecker) RegisterDatabase(name string, db *sql.DB) {
	h.Register(name, false, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		var one int
		return db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	})
}

// RegisterRedis checks the shared session cache. The agent keeps working on its own state
// without it, so it is optional.
func (h *HealthChecker) RegisterRedis(name string, client *redis.Client) {
	h.Register(name, true, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

// Check runs every registered check
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.mu.RLock()
	names := make([]string, 0, len(h.deps))
	for name := range h.deps {
		names = append(names, name)
	}
	deps := make(map[string]dependency, len(h.deps))
	for k, v := range h.deps {
		deps[k] = v
	}
	h.mu.RUnlock()
	sort.Strings(names)

	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(names)),
	}

	for _, name := range names {
		dep := deps[name]
		start := time.Now()
		err := dep.check(ctx)
		ds := DependencyStatus{
			Status:    StatusHealthy,
			LatencyMS: time.Since(start).Milliseconds(),
			Timestamp: time.Now().UTC(),
		}
		if err != nil {
			ds.Message = err.Error()
			if dep.optional {
				ds.Status = StatusDegraded
				if status.Status == StatusHealthy {
					status.Status = StatusDegraded
				}
			} else {
				ds.Status = StatusUnhealthy
				status.Status = StatusUnhealthy
			}
		}
		status.Dependencies[name] = ds
	}
	return status
}

// Liveness answers as long as the process serves requests
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now().UTC(),
	})
}

// Readiness checks every dependency and answers 503 when a required one is down
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(status)
}

// RegisterHealthRoutes mounts the probes on router
func RegisterHealthRoutes(router *mux.Router, checker *HealthChecker) {
	router.HandleFunc("/healthz", checker.Readiness).Methods(http.MethodGet)
	router.HandleFunc("/healthz/live", checker.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/healthz/ready", checker.Readiness).Methods(http.MethodGet)
}
