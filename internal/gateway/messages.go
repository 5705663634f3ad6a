package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kurisu/squadagent/internal/agent"
	"github.com/kurisu/squadagent/internal/runner"
	"github.com/kurisu/squadagent/internal/security"
	"github.com/kurisu/squadagent/internal/session"
	"github.com/kurisu/squadagent/internal/steplog"
	"github.com/kurisu/squadagent/internal/tool"
)

// sessionHeader returns the session a turn ran on.
const sessionHeader = "X-Session-ID"

// Wire event types.
const (
	wireStep  = "step"
	wireFinal = "final"
	wireError = "error"
	wireDone  = "done"
)

// turnRequest is the body of a turn submission.
type turnRequest struct {
	Text string `json:"text"`
}

// wireEvent is one line of a turn stream (NDJSON or WebSocket frame).
type wireEvent struct {
	Type      string            `json:"type"`
	SessionID string            `json:"session_id"`
	Step      *steplog.Step     `json:"step,omitempty"`
	Messages  []steplog.Message `json:"messages,omitempty"`
	Answer    *tool.FinalAnswer `json:"answer,omitempty"`
	Result    *agent.Result     `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// translate maps an agent event onto wire events. State changes and model
// deltas are not forwarded.
func translate(sessionID string, ev agent.Event) []wireEvent {
	switch {
	case ev.Type == agent.EventStep && ev.Step != nil:
		return []wireEvent{{Type: wireStep, SessionID: sessionID, Step: ev.Step, Messages: ev.Step.Messages()}}
	case ev.Type == agent.EventFinal && ev.Answer != nil:
		return []wireEvent{{
			Type:      wireFinal,
			SessionID: sessionID,
			Answer:    ev.Answer,
			Messages:  []steplog.Message{steplog.AnswerMessage(*ev.Answer)},
		}}
	case ev.Type == agent.EventDone:
		var out []wireEvent
		if res := ev.Result; res != nil && res.Err != nil && !res.Incomplete {
			out = append(out, wireEvent{Type: wireError, SessionID: sessionID, Error: res.Error()})
		}
		return append(out, wireEvent{Type: wireDone, SessionID: sessionID, Result: ev.Result})
	}
	return nil
}

// resolveSessionID maps the "new" path segment to a fresh id.
func resolveSessionID(id string) (string, bool) {
	if id == session.NewID {
		return uuid.NewString(), true
	}
	return id, session.ValidID(id)
}

// decodeTurn parses and checks a turn body.
func decodeTurn(data []byte) (string, error) {
	var req turnRequest
	if err := security.DecodeBody(data, &req); err != nil {
		return "", err
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", runner.ErrEmptyTask
	}
	return text, nil
}

// allowTurn applies the per-session rate limit and audits rejections.
func (g *Gateway) allowTurn(r *http.Request, id string) bool {
	if g.limiter.Allow(id) {
		return true
	}
	g.audit.Log(security.AuditEvent{
		Type:      security.EventRateLimit,
		SessionID: id,
		Metadata:  map[string]string{"remote_addr": r.RemoteAddr},
	})
	return false
}

// handlePostMessage runs one turn and streams its events as NDJSON.
func (g *Gateway) handlePostMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := resolveSessionID(chi.URLParam(r, "id"))
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid session id")
			return
		}

		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.config.MaxBodyBytes))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		text, err := decodeTurn(data)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !g.allowTurn(r, id) {
			writeError(w, http.StatusTooManyRequests, "too many messages for this session")
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set(sessionHeader, id)
		w.WriteHeader(http.StatusOK)
		rc := http.NewResponseController(w)
		enc := json.NewEncoder(w)

		_, err = g.runner.Turn(r.Context(), id, text, func(ev agent.Event) bool {
			for _, we := range translate(id, ev) {
				if err := enc.Encode(we); err != nil {
					return false
				}
			}
			_ = rc.Flush()
			return r.Context().Err() == nil
		})
		if err != nil {
			g.logger.Error("turn failed", "session_id", id, "error", err)
			_ = enc.Encode(wireEvent{Type: wireError, SessionID: id, Error: err.Error()})
			_ = rc.Flush()
		}
	}
}

// statusFor maps turn and session errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidID), errors.Is(err, runner.ErrEmptyTask):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
