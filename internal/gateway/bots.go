package gateway

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kurisu/squadagent/internal/bot"
	"github.com/kurisu/squadagent/internal/security"
)

type botRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
}

type botResponse struct {
	Bot    string `json:"bot"`
	Answer string `json:"answer"`
}

// handleListBots lists the configured bots.
func (g *Gateway) handleListBots() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		names := []string{}
		if g.bots != nil {
			names = g.bots.Names()
		}
		writeJSON(w, http.StatusOK, map[string][]string{"bots": names})
	}
}

// handleAskBot answers one question with the named bot.
func (g *Gateway) handleAskBot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.bots == nil {
			writeError(w, http.StatusNotFound, "no bots configured")
			return
		}
		b, err := g.bots.Get(chi.URLParam(r, "name"))
		if err != nil {
			writeError(w, http.StatusNotFound, "unknown bot")
			return
		}

		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.config.MaxBodyBytes))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		var req botRequest
		if err := security.DecodeBody(data, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		text := strings.TrimSpace(req.Text)
		if text == "" {
			writeError(w, http.StatusBadRequest, "text is required")
			return
		}

		answer, err := bot.Ask(r.Context(), b, req.SessionID, text)
		switch {
		case errors.Is(err, bot.ErrUnsupported):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case err != nil:
			g.logger.Error("bot answer failed", "bot", b.Name(), "error", err)
			writeError(w, http.StatusBadGateway, "bot failed to answer")
			return
		}
		writeJSON(w, http.StatusOK, botResponse{Bot: b.Name(), Answer: answer})
	}
}
