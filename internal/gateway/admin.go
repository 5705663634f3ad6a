package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kurisu/squadagent/internal/core"
	"github.com/kurisu/squadagent/internal/session"
	"github.com/kurisu/squadagent/internal/steplog"
)

// sessionJSON is a serializable session summary.
type sessionJSON struct {
	ID        string `json:"id"`
	UpdatedAt string `json:"updated_at"`
}

// sessionDetailJSON is a session with its full step log.
type sessionDetailJSON struct {
	ID           string       `json:"id"`
	CreatedAt    string       `json:"created_at"`
	LastActiveAt string       `json:"last_active_at"`
	Turns        int          `json:"turns"`
	Log          *steplog.Log `json:"log"`
}

// handleListSessions returns every stored session.
func (g *Gateway) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := g.runner.Sessions().List(r.Context())
		if err != nil {
			g.logger.Error("list sessions failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list sessions")
			return
		}
		out := make([]sessionJSON, 0, len(entries))
		for _, e := range entries {
			out = append(out, sessionJSON{ID: e.Key, UpdatedAt: e.UpdatedAt.UTC().Format(time.RFC3339)})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleGetSession returns one session and its step log.
func (g *Gateway) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		mgr := g.runner.Sessions()

		// Reading while a turn mutates the log would race.
		unlock := mgr.Lock(id)
		defer unlock()

		s, err := mgr.Get(r.Context(), id)
		if err != nil {
			writeError(w, statusFor(err), sessionErrorText(err))
			return
		}
		writeJSON(w, http.StatusOK, sessionDetailJSON{
			ID:           s.ID,
			CreatedAt:    s.CreatedAt.UTC().Format(time.RFC3339),
			LastActiveAt: s.LastActiveAt.UTC().Format(time.RFC3339),
			Turns:        len(s.Log.Turns),
			Log:          s.Log,
		})
	}
}

// handleDeleteSession deletes a session by its ID.
func (g *Gateway) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		mgr := g.runner.Sessions()

		unlock := mgr.Lock(id)
		defer unlock()

		if _, err := mgr.Get(r.Context(), id); err != nil {
			writeError(w, statusFor(err), sessionErrorText(err))
			return
		}
		if err := mgr.Delete(r.Context(), id); err != nil {
			g.logger.Error("delete session failed", "session_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to delete session")
			return
		}
		g.logger.Info("session deleted", "session_id", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func sessionErrorText(err error) string {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return "session not found"
	case errors.Is(err, session.ErrInvalidID):
		return "invalid session id"
	}
	return "session storage error"
}

// handleExamples returns the example prompts shown by clients.
func (g *Gateway) handleExamples() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]string{"examples": g.config.Examples})
	}
}

// moduleJSON is a serializable module info snapshot.
type moduleJSON struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// handleGetAllModules lists all compiled modules (for /api/modules).
func (g *Gateway) handleGetAllModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		mods := core.Modules()
		out := make([]moduleJSON, 0, len(mods))
		for _, m := range mods {
			out = append(out, moduleJSON{
				ID:        string(m.ID),
				Namespace: m.ID.Namespace(),
				Name:      m.ID.Name(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}
