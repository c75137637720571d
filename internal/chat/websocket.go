// Package chat provides the WebSocket transport for the negotiation widget.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/mkoval/haggleshop/internal/api"
	"github.com/mkoval/haggleshop/internal/identity"
	"github.com/mkoval/haggleshop/internal/negotiation"
)

// Handler upgrades widget connections and relays negotiation turns.
type Handler struct {
	engine        *negotiation.Engine
	sessions      *api.SessionManager
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a new WebSocket chat handler.
func NewHandler(engine *negotiation.Engine, sessions *api.SessionManager, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		engine:        engine,
		sessions:      sessions,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// clientFrame is an inbound widget message.
type clientFrame struct {
	Type string `json:"type"` // "message" | "accept" | "ping"
	Text string `json:"text,omitempty"`
}

// serverFrame is an outbound frame. "session" frames carry a state snapshot,
// "assistant" frames carry one reply, "error" frames carry a failure note.
type serverFrame struct {
	Type          string             `json:"type"`
	Text          string             `json:"text,omitempty"`
	ProposedPrice *float64           `json:"proposed_price,omitempty"`
	CurrentPrice  float64            `json:"current_price,omitempty"`
	Round         int                `json:"round,omitempty"`
	Status        negotiation.Status `json:"status,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	shopperID := identity.ShopperIDFromContext(r.Context())
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "shopper_id", shopperID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "shopper_id", shopperID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session, err := h.sessions.Get(shopperID, sessionID)
	if err != nil {
		if writeErr := h.writeJSON(ctx, ws, serverFrame{Type: "error", Text: "session not found"}); writeErr != nil {
			slog.Debug("Failed to send session error", "error", writeErr)
		}
		return
	}

	slog.Info("Negotiation chat connected", "session_id", sessionID, "shopper_id", shopperID)
	if err := h.writeJSON(ctx, ws, snapshotFrame(session)); err != nil {
		slog.Debug("Failed to send snapshot", "error", err)
		return
	}

	h.readLoop(ctx, ws, shopperID, sessionID)
	slog.Info("Negotiation chat ended", "session_id", sessionID, "shopper_id", shopperID)
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, shopperID, sessionID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "shopper_id", shopperID)
			} else {
				slog.Debug("WebSocket read error", "error", err, "shopper_id", shopperID)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			if err := h.writeJSON(ctx, ws, serverFrame{Type: "error", Text: "invalid frame"}); err != nil {
				return
			}
			continue
		}

		switch frame.Type {
		case "message":
			var reply negotiation.Message
			session, err := h.sessions.Update(shopperID, sessionID, func(s negotiation.Session) (negotiation.Session, error) {
				next, botMsg, err := h.engine.Advance(s, frame.Text)
				if err != nil {
					return s, err
				}
				reply = botMsg
				return next, nil
			})
			if err != nil {
				if err := h.writeJSON(ctx, ws, errorFrame(err)); err != nil {
					return
				}
				continue
			}
			out := serverFrame{
				Type:          "assistant",
				Text:          reply.Text,
				ProposedPrice: reply.ProposedPrice,
				CurrentPrice:  session.CurrentPrice,
				Round:         session.Round,
				Status:        session.Status,
			}
			if err := h.writeJSON(ctx, ws, out); err != nil {
				return
			}

		case "accept":
			session, err := h.sessions.Update(shopperID, sessionID, func(s negotiation.Session) (negotiation.Session, error) {
				return h.engine.AcceptCurrentPrice(s)
			})
			if err != nil {
				if err := h.writeJSON(ctx, ws, errorFrame(err)); err != nil {
					return
				}
				continue
			}
			slog.Info("Negotiated price accepted",
				"session_id", sessionID,
				"shopper_id", shopperID,
				"price", session.CurrentPrice,
			)
			if err := h.writeJSON(ctx, ws, snapshotFrame(session)); err != nil {
				return
			}

		case "ping":
			if err := h.writeJSON(ctx, ws, serverFrame{Type: "pong"}); err != nil {
				return
			}

		default:
			if err := h.writeJSON(ctx, ws, serverFrame{Type: "error", Text: "unknown frame type"}); err != nil {
				return
			}
		}
	}
}

func snapshotFrame(s negotiation.Session) serverFrame {
	return serverFrame{
		Type:         "session",
		CurrentPrice: s.CurrentPrice,
		Round:        s.Round,
		Status:       s.Status,
	}
}

func errorFrame(err error) serverFrame {
	switch {
	case errors.Is(err, api.ErrSessionNotFound):
		return serverFrame{Type: "error", Text: "session not found"}
	case errors.Is(err, negotiation.ErrSessionNotActive):
		return serverFrame{Type: "error", Text: "invalid session state"}
	default:
		return serverFrame{Type: "error", Text: "internal error"}
	}
}

func (h *Handler) writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, b)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
