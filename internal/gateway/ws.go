package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/kurisu/squadagent/internal/agent"
)

// handleWebSocket serves /ws/sessions/{id}. Each text frame {"text": …}
// starts a turn whose events are written back as JSON frames. Turns on one
// connection run one at a time.
func (g *Gateway) handleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := resolveSessionID(chi.URLParam(r, "id"))
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid session id")
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Error("websocket accept failed", "error", err)
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusInternalError, "unexpected close")
		}()
		conn.SetReadLimit(g.config.MaxBodyBytes)

		g.logger.Info("websocket connected", "session_id", id)
		g.serveConn(r, conn, id)
		g.logger.Info("websocket disconnected", "session_id", id)
	}
}

func (g *Gateway) serveConn(r *http.Request, conn *websocket.Conn, id string) {
	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				_ = conn.Close(websocket.StatusNormalClosure, "")
			}
			return
		}
		if typ != websocket.MessageText {
			g.sendFrame(ctx, conn, wireEvent{Type: wireError, SessionID: id, Error: "expected a text frame"})
			continue
		}

		text, err := decodeTurn(data)
		if err != nil {
			g.sendFrame(ctx, conn, wireEvent{Type: wireError, SessionID: id, Error: err.Error()})
			continue
		}
		if !g.allowTurn(r, id) {
			g.sendFrame(ctx, conn, wireEvent{Type: wireError, SessionID: id, Error: "too many messages for this session"})
			continue
		}

		_, err = g.runner.Turn(ctx, id, text, func(ev agent.Event) bool {
			for _, we := range translate(id, ev) {
				if !g.sendFrame(ctx, conn, we) {
					return false
				}
			}
			return true
		})
		if err != nil {
			g.logger.Error("turn failed", "session_id", id, "error", err)
			g.sendFrame(ctx, conn, wireEvent{Type: wireError, SessionID: id, Error: err.Error()})
		}
	}
}

// sendFrame writes ev as a JSON text frame and reports success.
func (g *Gateway) sendFrame(ctx context.Context, conn *websocket.Conn, ev wireEvent) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		g.logger.Error("marshal event failed", "error", err)
		return false
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		if !errors.Is(err, context.Canceled) {
			g.logger.Warn("write event failed", "error", err)
		}
		return false
	}
	return true
}
