package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/kurisu/squadagent/internal/provider"
)

const (
	healthCheckTimeout = 5 * time.Second
	healthCacheTTL     = 30 * time.Second
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status   string         `json:"status"` // "ok" or "degraded"
	Sessions int            `json:"sessions"`
	Provider ProviderHealth `json:"provider"`
}

// ProviderHealth reports the model backend.
type ProviderHealth struct {
	Model     string `json:"model,omitempty"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// healthProbe caches provider health checks so probes do not spend model
// quota on every request.
type healthProbe struct {
	mu      sync.Mutex
	checked time.Time
	last    ProviderHealth
	now     func() time.Time
}

func (h *healthProbe) check(ctx context.Context, p provider.Provider) ProviderHealth {
	if p == nil {
		return ProviderHealth{Error: "no provider configured"}
	}
	hc, ok := p.(provider.HealthChecker)
	if !ok {
		return ProviderHealth{Model: p.ModelName(), Available: true}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now
	if h.now != nil {
		now = h.now
	}
	if !h.checked.IsZero() && now().Sub(h.checked) < healthCacheTTL {
		return h.last
	}

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	res := ProviderHealth{Model: p.ModelName(), Available: true}
	if err := hc.HealthCheck(ctx); err != nil {
		res.Available = false
		res.Error = err.Error()
	}
	h.checked, h.last = now(), res
	return res
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 200 if the provider is healthy, 503 otherwise.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Provider: g.health.check(r.Context(), g.provider),
		}
		if g.runner != nil {
			resp.Sessions = g.runner.Sessions().Len()
		}
		if !resp.Provider.Available {
			resp.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == "degraded" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
