package domain

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks a message typed by the employee.
	RoleUser Role = "user"
	// RoleAssistant marks a reply produced by the desk.
	RoleAssistant Role = "assistant"
)

// Turn is a single conversation entry.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Transcript is the ordered conversation of one session.
type Transcript []Turn

// Append adds a turn to the end of the transcript.
func (t *Transcript) Append(role Role, content string) {
	*t = append(*t, Turn{Role: role, Content: content})
}

// Clone returns a copy that shares no backing array with t.
func (t Transcript) Clone() Transcript {
	if t == nil {
		return nil
	}
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}

// Last returns the most recent n turns. A non-positive n returns everything.
func (t Transcript) Last(n int) Transcript {
	if n <= 0 || n >= len(t) {
		return t
	}
	return t[len(t)-n:]
}
