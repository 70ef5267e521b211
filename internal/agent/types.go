package agent

import "github.com/ashureev/trainingdesk/internal/domain"

// AuthRequest is the body of POST /auth. UserInfo is whatever the client
// echoed back from the previous reply; its division is never trusted.
type AuthRequest struct {
	Message           string          `json:"message"`
	UserInfo          domain.Identity `json:"user_info"`
	SystemLastMessage string          `json:"system_last_message"`
}

// AuthResponse is the reply to POST /auth.
type AuthResponse struct {
	UserInfo          domain.Identity `json:"user_info"`
	SystemLastMessage string          `json:"system_last_message"`
	Authenticated     bool            `json:"authenticated"`
	SessionToken      string          `json:"session_token,omitempty"`
}

// RagRequest is the body of POST /rag.
type RagRequest struct {
	UserMessage string `json:"user_message"`
}

// RagResponse is the reply to POST /rag.
type RagResponse struct {
	SystemReply string `json:"system_reply"`
}

// ResetResponse is the reply to POST /reset.
type ResetResponse struct {
	Status string `json:"status"`
}

// StatusResponse is the reply to GET /.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Websocket frame types. Clients send auth, query and reset; the server
// answers with the same type, or welcome and error.
const (
	FrameWelcome = "welcome"
	FrameAuth    = "auth"
	FrameQuery   = "query"
	FrameReset   = "reset"
	FrameError   = "error"
)

// Frame is one websocket message in either direction.
type Frame struct {
	Type          string `json:"type"`
	Message       string `json:"message"`
	Authenticated bool   `json:"authenticated,omitempty"`
}

// IdentityReply is the outcome of one pre-authentication turn.
type IdentityReply struct {
	Identity      domain.Identity
	Message       string
	Authenticated bool
	Token         string
}
