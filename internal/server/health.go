package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"pin-clipboard/internal/logging"
)

// HealthStatus represents the overall health of the system
type HealthStatus string

const (
	HealthStatusOK        HealthStatus = "ok"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentStatus represents the health of an individual component
type ComponentStatus string

const (
	ComponentStatusUp       ComponentStatus = "up"
	ComponentStatusDown     ComponentStatus = "down"
	ComponentStatusDegraded ComponentStatus = "degraded"
)

// slowCheck marks a component degraded when its probe takes longer.
const slowCheck = time.Second

// Health represents the complete health check response
type Health struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Storage    int                        `json:"storage"`
	Files      int                        `json:"files"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// ComponentHealth represents the health of a single system component
type ComponentHealth struct {
	Status    ComponentStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	LatencyMs float64         `json:"latency_ms,omitempty"`
}

// HandleHealth reports stored item and attachment counts plus the state of
// every configured dependency.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.checkHealth(r.Context())

	statusCode := http.StatusOK
	if health.Status == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, health)
}

// HandleReady provides a simple readiness probe for load balancers
func (s *Server) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, name := range s.checkNames() {
		if err := s.cfg.Checks[name].Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "not_ready",
				"message": name + " unavailable",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleLive provides a liveness probe (is the process running?)
func (s *Server) HandleLive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "alive",
	})
}

func (s *Server) checkNames() []string {
	names := make([]string, 0, len(s.cfg.Checks))
	for name := range s.cfg.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) checkHealth(ctx context.Context) Health {
	health := Health{
		Timestamp:  time.Now().UTC(),
		Version:    s.cfg.Build.Version,
		Components: make(map[string]ComponentHealth),
	}

	for _, name := range s.checkNames() {
		health.Components[name] = probe(ctx, s.cfg.Checks[name])
	}

	items, err := s.svc.Store.List(ctx)
	if err != nil {
		logging.Error("health_list_failed", nil, err)
		health.Components["store"] = ComponentHealth{
			Status:  ComponentStatusDown,
			Message: "listing items failed",
		}
	} else {
		health.Storage = len(items)
		for _, it := range items {
			health.Files += len(it.Files)
		}
	}

	health.Status = determineOverallHealth(health.Components)
	return health
}

func probe(ctx context.Context, p Pinger) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	err := p.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:  ComponentStatusDown,
			Message: err.Error(),
		}
	}
	status := ComponentStatusUp
	if latency > slowCheck {
		status = ComponentStatusDegraded
	}
	return ComponentHealth{
		Status:    status,
		LatencyMs: float64(latency.Microseconds()) / 1000,
	}
}

// determineOverallHealth calculates overall health from component statuses
func determineOverallHealth(components map[string]ComponentHealth) HealthStatus {
	hasDown := false
	hasDegraded := false

	for _, component := range components {
		switch component.Status {
		case ComponentStatusDown:
			hasDown = true
		case ComponentStatusDegraded:
			hasDegraded = true
		}
	}

	if hasDown {
		return HealthStatusUnhealthy
	}
	if hasDegraded {
		return HealthStatusDegraded
	}
	return HealthStatusOK
}
