// Package oracle talks to the language model that extracts identities,
// writes queries and narrates results.
package oracle

import (
	"context"
	"errors"

	"github.com/ashureev/trainingdesk/internal/domain"
)

var (
	// ErrTransient marks a failure worth one more attempt: a timeout, a
	// throttled request or a temporarily unreachable backend.
	ErrTransient = errors.New("oracle: transient failure")
	// ErrUnavailable is returned once the oracle could not produce a reply.
	ErrUnavailable = errors.New("oracle: unavailable")
)

// Purpose tags a request with the job it performs.
type Purpose string

const (
	// PurposeIdentity extracts {id, name} from a pre-authentication message.
	PurposeIdentity Purpose = "identity_extraction"
	// PurposeQuery turns a question into a query specification.
	PurposeQuery Purpose = "query_specification"
	// PurposeNarrate turns retrieved rows into a reply.
	PurposeNarrate Purpose = "narration"
)

// Request is a single completion request.
type Request struct {
	Purpose     Purpose
	System      string
	Context     []domain.Turn
	User        string
	Temperature float32
}

// Oracle produces free text for a request. Implementations must be safe for
// concurrent use. Nothing guarantees the text is well formed.
type Oracle interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// HealthChecker is implemented by oracles that can report readiness.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Func adapts a function to the Oracle interface.
type Func func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f Func) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
