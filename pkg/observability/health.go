package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

// Pinger is implemented by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker serves liveness and readiness probes.
type HealthChecker struct {
	store Pinger
	redis *redis.Client
}

// NewHealthChecker creates a health checker. Either dependency may be nil.
func NewHealthChecker(store Pinger, redis *redis.Client) *HealthChecker {
	return &HealthChecker{store: store, redis: redis}
}

// HealthStatus is the readiness probe payload.
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus reports the health of a single dependency.
type DependencyStatus struct {
	Status  string        `json:"status"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency_ms,omitempty"`
}

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Liveness always returns 200 while the process is running.
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness checks every configured dependency and returns 503 when any of
// them fails.
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Dependencies: map[string]DependencyStatus{},
	}

	if h.store != nil {
		start := time.Now()
		if err := h.store.Ping(ctx); err != nil {
			status.Status = StatusUnhealthy
			status.Dependencies["store"] = DependencyStatus{
				Status:  StatusUnhealthy,
				Message: err.Error(),
				Latency: time.Since(start) / time.Millisecond,
			}
		} else {
			status.Dependencies["store"] = DependencyStatus{
				Status:  StatusHealthy,
				Latency: time.Since(start) / time.Millisecond,
			}
		}
	}

	if h.redis != nil {
		start := time.Now()
		if err := h.redis.Ping(ctx).Err(); err != nil {
			status.Status = StatusUnhealthy
			status.Dependencies["redis"] = DependencyStatus{
				Status:  StatusUnhealthy,
				Message: err.Error(),
				Latency: time.Since(start) / time.Millisecond,
			}
		} else {
			status.Dependencies["redis"] = DependencyStatus{
				Status:  StatusHealthy,
				Latency: time.Since(start) / time.Millisecond,
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if status.Status != StatusHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}
