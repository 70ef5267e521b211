package agent

import (
	"context"
	"log/slog"

	"github.com/ashureev/trainingdesk/internal/domain"
	"github.com/ashureev/trainingdesk/internal/identity"
	"github.com/ashureev/trainingdesk/internal/locale"
	"github.com/ashureev/trainingdesk/internal/query"
	"github.com/ashureev/trainingdesk/internal/session"
)

// IdentityResolver runs one pre-authentication turn.
type IdentityResolver interface {
	Turn(ctx context.Context, text string, record domain.Identity, lastSystemMessage string) (identity.Result, error)
}

// QueryRunner runs one authenticated turn for a session key.
type QueryRunner interface {
	Turn(ctx context.Context, key, text string) (query.Reply, error)
}

// SessionStore creates, resolves and closes sessions.
type SessionStore interface {
	Create(ctx context.Context, key string, id domain.Identity) (string, error)
	KeyForToken(token string) (string, error)
	Close(ctx context.Context, key string) error
}

// Service is the transport-independent conversation API: HTTP and
// websocket handlers both go through it.
type Service struct {
	resolver IdentityResolver
	queries  QueryRunner
	sessions SessionStore
	catalog  *locale.Catalog
	log      ConversationLogger
}

// NewService wires a service. A nil log records nothing.
func NewService(resolver IdentityResolver, queries QueryRunner, sessions SessionStore, catalog *locale.Catalog, log ConversationLogger) *Service {
	if log == nil {
		log = noopConversationLogger{}
	}
	return &Service{
		resolver: resolver,
		queries:  queries,
		sessions: sessions,
		catalog:  catalog,
		log:      log,
	}
}

// Message returns the catalog text for key in the script of userText.
func (s *Service) Message(key locale.Key, userText string) string {
	return s.catalog.For(key, userText, "")
}

// IdentityTurn advances the caller's identity by one message. Once the
// caller is verified a session is created and its token returned; the token
// is the only way to reach QueryTurn. The error is only ever the context's.
func (s *Service) IdentityTurn(ctx context.Context, text string, record domain.Identity, lastSystemMessage string) (IdentityReply, error) {
	res, err := s.resolver.Turn(ctx, text, record, lastSystemMessage)
	if err != nil {
		return IdentityReply{}, err
	}

	reply := IdentityReply{
		Identity: res.Identity,
		Message:  res.Message,
	}
	if res.Authenticated {
		token, err := s.sessions.Create(ctx, res.Identity.ID, res.Identity)
		if err != nil {
			if ctx.Err() != nil {
				return IdentityReply{}, ctx.Err()
			}
			slog.Error("Failed to create session", "employee_id", res.Identity.ID, "error", err)
			reply.Identity = res.Identity.Unverified()
			reply.Message = s.catalog.For(locale.SystemError, text, "")
		} else {
			reply.Authenticated = true
			reply.Token = token
		}
	}

	s.log.Log(ConversationLogEvent{
		UserID:     res.Identity.ID,
		SessionID:  "identity",
		Channel:    "auth",
		Direction:  "outbound",
		EventType:  "identity_turn",
		ContentRaw: text,
		Meta: map[string]any{
			"state":         string(res.State),
			"authenticated": reply.Authenticated,
			"reply":         reply.Message,
		},
	})
	return reply, nil
}

// QueryTurn answers text for the session behind token. It returns
// session.ErrNotFound when the token is unknown or the session was closed.
func (s *Service) QueryTurn(ctx context.Context, token, text string) (string, error) {
	key, err := s.sessions.KeyForToken(token)
	if err != nil {
		return "", session.ErrNotFound
	}
	reply, err := s.queries.Turn(session.WithToken(ctx, token), key, text)
	if err != nil {
		return "", err
	}

	s.log.Log(ConversationLogEvent{
		UserID:     key,
		SessionID:  reply.SessionID,
		Channel:    "rag",
		Direction:  "outbound",
		EventType:  "query_user_message",
		ContentRaw: text,
	})
	s.log.Log(ConversationLogEvent{
		UserID:     key,
		SessionID:  reply.SessionID,
		Channel:    "rag",
		Direction:  "inbound",
		EventType:  "query_assistant_message",
		ContentRaw: reply.Message,
		Meta: map[string]any{
			"outcome": string(reply.Outcome),
			"sql":     reply.SQL,
			"rows":    reply.Rows,
		},
	})
	return reply.Message, nil
}

// Active reports whether token still names a live session.
func (s *Service) Active(token string) bool {
	if token == "" {
		return false
	}
	_, err := s.sessions.KeyForToken(token)
	return err == nil
}

// Reset discards the session behind token, transcript included.
func (s *Service) Reset(ctx context.Context, token string) error {
	key, err := s.sessions.KeyForToken(token)
	if err != nil {
		return session.ErrNotFound
	}
	if err := s.sessions.Close(ctx, key); err != nil {
		return err
	}
	s.log.Log(ConversationLogEvent{
		UserID:    key,
		SessionID: "identity",
		Channel:   "reset",
		Direction: "outbound",
		EventType: "session_reset",
	})
	slog.Info("Session reset", "employee_id", key)
	return nil
}

// Close flushes the audit trail.
func (s *Service) Close() error {
	return s.log.Close()
}
