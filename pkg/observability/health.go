package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// probeTimeout bounds each dependency check so one stuck dependency
// cannot hold a readiness response hostage.
const probeTimeout = 2 * time.Second

// HealthStatus is the aggregate health report.
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus is the health of a single dependency.
type DependencyStatus struct {
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// ProbeFunc checks one dependency.
type ProbeFunc func(ctx context.Context) DependencyStatus

type probe struct {
	name string
	// critical probes make the whole service unhealthy when they fail;
	// non-critical ones only degrade it.
	critical bool
	check    ProbeFunc
}

// HealthChecker aggregates dependency probes into liveness and readiness
// endpoints. The database is critical; Redis is not, because authorization
// falls back to resolving against origin when the cache is unavailable.
type HealthChecker struct {
	probes []probe
}

// NewHealthChecker builds a checker for the given dependencies. Either may
// be nil, in which case no probe is registered for it.
func NewHealthChecker(db *sql.DB, rdb *redis.Client) *HealthChecker {
	h := &HealthChecker{}
	if db != nil {
		h.AddProbe("database", true, databaseProbe(db))
	}
	if rdb != nil {
		h.AddProbe("redis", false, redisProbe(rdb))
	}
	return h
}

// AddProbe registers an additional dependency probe.
func (h *HealthChecker) AddProbe(name string, critical bool, check ProbeFunc) {
	h.probes = append(h.probes, probe{name: name, critical: critical, check: check})
}

// Check runs every probe and folds the results into an overall status.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      Version,
		Dependencies: make(map[string]DependencyStatus, len(h.probes)),
	}

	for _, p := range h.probes {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		dep := p.check(pctx)
		cancel()

		status.Dependencies[p.name] = dep
		if dep.Status != StatusUnhealthy {
			continue
		}
		if p.critical {
			status.Status = StatusUnhealthy
		} else if status.Status == StatusHealthy {
			status.Status = StatusDegraded
		}
	}
	return status
}

// Liveness answers 200 whenever the process can serve HTTP at all.
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealthJSON(w, http.StatusOK, HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	})
}

// Readiness answers 503 only when a critical dependency is down. Degraded
// still reads as ready: the service keeps answering, just slower.
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealthJSON(w, code, status)
}

// RegisterHealthRoutes mounts the health endpoints on mux.
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}

func writeHealthJSON(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

func databaseProbe(db *sql.DB) ProbeFunc {
	return func(ctx context.Context) DependencyStatus {
		start := time.Now()
		dep := DependencyStatus{Status: StatusHealthy, Timestamp: start}

		if err := db.PingContext(ctx); err != nil {
			dep.Status = StatusUnhealthy
			dep.Message = err.Error()
			dep.Latency = time.Since(start)
			return dep
		}

		var one int
		if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
			dep.Status = StatusUnhealthy
			dep.Message = fmt.Sprintf("query failed: %v", err)
		}
		dep.Latency = time.Since(start)
		return dep
	}
}

func redisProbe(rdb *redis.Client) ProbeFunc {
	return func(ctx context.Context) DependencyStatus {
		start := time.Now()
		dep := DependencyStatus{Status: StatusHealthy, Timestamp: start}

		if err := rdb.Ping(ctx).Err(); err != nil {
			dep.Status = StatusUnhealthy
			dep.Message = err.Error()
		}
		dep.Latency = time.Since(start)
		return dep
	}
}
