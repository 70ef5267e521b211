package agent

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/ashureev/trainingdesk/internal/domain"
	"github.com/ashureev/trainingdesk/internal/locale"
	"github.com/ashureev/trainingdesk/internal/session"
)

const wsReadLimit = 16 << 10

// chatConn is the per-connection state. Before authentication the identity
// record lives here instead of round-tripping through the client.
type chatConn struct {
	record     domain.Identity
	lastSystem string
	token      string
	employee   string
}

// HandleChatSocket handles GET /ws/chat. Clients send auth, query and reset
// frames; each is answered with a frame of the same type.
func (h *Handler) HandleChatSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Error("WebSocket accept failed", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "conversation ended"); closeErr != nil {
			slog.Debug("WebSocket close failed", "error", closeErr)
		}
	}()
	ws.SetReadLimit(wsReadLimit)

	ctx := r.Context()
	ip := ipKey(r)
	conn := &chatConn{}

	welcome := h.svc.Message(locale.Welcome, "")
	if err := wsjson.Write(ctx, ws, Frame{Type: FrameWelcome, Message: welcome}); err != nil {
		return
	}
	conn.lastSystem = welcome

	for {
		var in Frame
		if err := wsjson.Read(ctx, ws, &in); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket read ended", "error", err)
			}
			return
		}

		out, ok := h.handleFrame(ctx, conn, ip, in)
		if !ok {
			return
		}
		if err := wsjson.Write(ctx, ws, out); err != nil {
			slog.Debug("WebSocket write failed", "error", err)
			return
		}
	}
}

// handleFrame processes one client frame. ok is false once the connection's
// context has ended.
func (h *Handler) handleFrame(ctx context.Context, conn *chatConn, ip string, in Frame) (Frame, bool) {
	text := strings.TrimSpace(in.Message)

	limitKey := ip
	if conn.employee != "" {
		limitKey = employeeKey(conn.employee)
	}
	if in.Type != FrameReset && !h.limiter.Allow(limitKey) {
		return Frame{Type: FrameError, Message: h.svc.Message(locale.RateLimited, text)}, true
	}

	switch in.Type {
	case FrameAuth:
		if conn.token != "" && h.svc.Active(conn.token) {
			return Frame{Type: FrameAuth, Message: conn.lastSystem, Authenticated: true}, true
		}
		if text == "" {
			return Frame{Type: FrameAuth, Message: conn.lastSystem}, true
		}
		reply, err := h.svc.IdentityTurn(ctx, text, conn.record, conn.lastSystem)
		if err != nil {
			return Frame{}, false
		}
		conn.record = reply.Identity
		conn.lastSystem = reply.Message
		if reply.Authenticated {
			conn.token = reply.Token
			conn.employee = reply.Identity.ID
		}
		return Frame{Type: FrameAuth, Message: reply.Message, Authenticated: reply.Authenticated}, true

	case FrameQuery:
		if conn.token == "" {
			return Frame{Type: FrameError, Message: h.svc.Message(locale.AskBoth, text)}, true
		}
		if text == "" {
			return Frame{Type: FrameError, Message: h.svc.Message(locale.ParseError, text)}, true
		}
		reply, err := h.svc.QueryTurn(ctx, conn.token, text)
		switch {
		case errors.Is(err, session.ErrNotFound):
			conn.forget()
			return Frame{Type: FrameError, Message: h.svc.Message(locale.SessionRevoked, text)}, true
		case err != nil:
			if ctx.Err() != nil {
				return Frame{}, false
			}
			slog.Error("Query turn failed", "employee_id", conn.employee, "error", err)
			return Frame{Type: FrameError, Message: h.svc.Message(locale.SystemError, text)}, true
		}
		conn.lastSystem = reply
		authenticated := h.svc.Active(conn.token)
		if !authenticated {
			conn.forget()
		}
		return Frame{Type: FrameQuery, Message: reply, Authenticated: authenticated}, true

	case FrameReset:
		if conn.token != "" {
			if err := h.svc.Reset(ctx, conn.token); err != nil && !errors.Is(err, session.ErrNotFound) {
				if ctx.Err() != nil {
					return Frame{}, false
				}
				slog.Warn("Reset failed", "employee_id", conn.employee, "error", err)
			}
		}
		conn.forget()
		conn.lastSystem = h.svc.Message(locale.Welcome, "")
		return Frame{Type: FrameReset, Message: conn.lastSystem}, true

	default:
		return Frame{Type: FrameError, Message: "unknown frame type"}, true
	}
}

func (c *chatConn) forget() {
	c.record = domain.Identity{}
	c.token = ""
	c.employee = ""
}
