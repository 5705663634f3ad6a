package gateway

import (
	"net/http"
	"time"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime   time.Duration `json:"uptime_seconds"`
	Sessions int           `json:"sessions"`
	Model    string        `json:"model,omitempty"`
	Context  int           `json:"context_window,omitempty"`
	Bots     []string      `json:"bots"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime:   time.Since(g.startedAt).Truncate(time.Second) / time.Second,
			Sessions: g.runner.Sessions().Len(),
			Bots:     []string{},
		}
		if g.provider != nil {
			resp.Model = g.provider.ModelName()
			resp.Context = g.provider.ContextWindowSize()
		}
		if g.bots != nil {
			resp.Bots = g.bots.Names()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
