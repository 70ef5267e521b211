// Package agent exposes the training desk conversation over HTTP and
// websockets.
package agent

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/trainingdesk/internal/api"
	"github.com/ashureev/trainingdesk/internal/identity"
	"github.com/ashureev/trainingdesk/internal/locale"
	"github.com/ashureev/trainingdesk/internal/session"
)

// Handler serves the conversation endpoints.
type Handler struct {
	svc            *Service
	sessions       identity.TokenResolver
	limiter        *RateLimiter
	originPatterns []string
}

// NewHandler creates a handler. originPatterns restricts websocket origins;
// empty means same-origin only.
func NewHandler(svc *Service, sessions identity.TokenResolver, limiter *RateLimiter, originPatterns []string) *Handler {
	if limiter == nil {
		limiter = NewRateLimiter(0)
	}
	return &Handler{
		svc:            svc,
		sessions:       sessions,
		limiter:        limiter,
		originPatterns: originPatterns,
	}
}

// RegisterRoutes mounts the conversation routes. /rag and /reset require a
// session token.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleStatus)
	r.Post("/auth", h.HandleAuth)
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(h.sessions))
		r.Post("/rag", h.HandleRag)
		r.Post("/reset", h.HandleReset)
	})
	r.Get("/ws/chat", h.HandleChatSocket)
}

// HandleStatus handles GET /.
func (h *Handler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	api.JSON(w, http.StatusOK, StatusResponse{
		Status:  "backend running",
		Message: h.svc.Message(locale.Welcome, ""),
	})
}

// HandleAuth handles POST /auth, one identity turn.
func (h *Handler) HandleAuth(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.limiter.Allow(ipKey(r)) {
		api.JSON(w, http.StatusTooManyRequests, AuthResponse{
			UserInfo:          req.UserInfo.Unverified(),
			SystemLastMessage: h.svc.Message(locale.RateLimited, req.Message),
		})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		api.JSON(w, http.StatusOK, AuthResponse{
			UserInfo:          req.UserInfo.Unverified(),
			SystemLastMessage: h.svc.Message(locale.Welcome, ""),
		})
		return
	}

	reply, err := h.svc.IdentityTurn(r.Context(), req.Message, req.UserInfo, req.SystemLastMessage)
	if err != nil {
		slog.Info("Identity turn abandoned", "error", err)
		return
	}
	api.JSON(w, http.StatusOK, AuthResponse{
		UserInfo:          reply.Identity,
		SystemLastMessage: reply.Message,
		Authenticated:     reply.Authenticated,
		SessionToken:      reply.Token,
	})
}

// HandleRag handles POST /rag, one authenticated question.
func (h *Handler) HandleRag(w http.ResponseWriter, r *http.Request) {
	key := identity.SessionKeyFromContext(r.Context())
	token := identity.TokenFromContext(r.Context())

	var req RagRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.UserMessage) == "" {
		api.Error(w, http.StatusBadRequest, "user_message is required")
		return
	}
	if !h.limiter.Allow(employeeKey(key)) {
		api.JSON(w, http.StatusTooManyRequests, RagResponse{
			SystemReply: h.svc.Message(locale.RateLimited, req.UserMessage),
		})
		return
	}

	reply, err := h.svc.QueryTurn(r.Context(), token, req.UserMessage)
	switch {
	case errors.Is(err, session.ErrNotFound):
		api.Error(w, http.StatusUnauthorized, "session not found, please authenticate")
		return
	case err != nil:
		if r.Context().Err() != nil {
			slog.Info("Query turn abandoned", "employee_id", key, "error", err)
			return
		}
		slog.Error("Query turn failed", "employee_id", key, "error", err)
		api.JSON(w, http.StatusServiceUnavailable, RagResponse{
			SystemReply: h.svc.Message(locale.SystemError, req.UserMessage),
		})
		return
	}
	api.JSON(w, http.StatusOK, RagResponse{SystemReply: reply})
}

// HandleReset handles POST /reset.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	err := h.svc.Reset(r.Context(), identity.TokenFromContext(r.Context()))
	switch {
	case errors.Is(err, session.ErrNotFound):
		api.Error(w, http.StatusUnauthorized, "session not found, please authenticate")
	case err != nil:
		slog.Warn("Reset failed", "error", err)
		api.Error(w, http.StatusServiceUnavailable, "reset failed")
	default:
		api.JSON(w, http.StatusOK, ResetResponse{Status: "conversation reset"})
	}
}

func ipKey(r *http.Request) string { return "ip:" + identity.IPFromRequest(r) }

func employeeKey(key string) string { return "employee:" + key }
