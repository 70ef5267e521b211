// Package identity resolves who the caller is before any data is disclosed,
// and carries the resulting session through HTTP requests.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashureev/trainingdesk/internal/domain"
	"github.com/ashureev/trainingdesk/internal/locale"
	"github.com/ashureev/trainingdesk/internal/oracle"
	"github.com/ashureev/trainingdesk/internal/structured"
)

// State is the resolver's position for an identity record.
type State string

const (
	StateNeedBoth      State = "NEED_BOTH"
	StateNeedName      State = "NEED_NAME"
	StateNeedID        State = "NEED_ID"
	StateVerify        State = "VERIFY"
	StateAuthenticated State = "AUTHENTICATED"
)

// StateOf derives the state from which fields a record carries.
func StateOf(id domain.Identity) State {
	switch {
	case id.Verified():
		return StateAuthenticated
	case id.HasName() && id.HasID():
		return StateVerify
	case id.HasID():
		return StateNeedName
	case id.HasName():
		return StateNeedID
	default:
		return StateNeedBoth
	}
}

// Directory is the part of the employee store the resolver needs.
type Directory interface {
	Verify(ctx context.Context, name, id string) (bool, error)
	DivisionOf(ctx context.Context, id string) (string, error)
}

// Result is the outcome of one pre-authentication turn.
type Result struct {
	Message       string
	Identity      domain.Identity
	State         State
	Authenticated bool
}

// Resolver runs the identity state machine.
type Resolver struct {
	oracle  oracle.Oracle
	dir     Directory
	catalog *locale.Catalog
	timeout time.Duration
}

// NewResolver creates a resolver. timeout bounds each oracle attempt.
func NewResolver(o oracle.Oracle, dir Directory, catalog *locale.Catalog, timeout time.Duration) *Resolver {
	return &Resolver{oracle: o, dir: dir, catalog: catalog, timeout: timeout}
}

// Turn processes one message from an unauthenticated caller. record is the
// state the caller carried from the previous turn; any division on it is
// ignored. lastSystemMessage is the previous prompt, passed to the oracle as
// a hint. The returned error is only ever the context's.
func (r *Resolver) Turn(ctx context.Context, text string, record domain.Identity, lastSystemMessage string) (Result, error) {
	record = record.Normalize().Unverified()
	script := locale.Detect(text)

	fail := func(key locale.Key) Result {
		return Result{
			Message:  r.catalog.Message(key, script, record.Name),
			Identity: record,
			State:    StateOf(record),
		}
	}

	ext, err := structured.Ask(ctx, r.oracle, extractionRequest(text, lastSystemMessage), structured.ParseIdentity, r.timeout)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if errors.Is(err, structured.ErrMalformedOutput) {
			slog.Warn("Identity extraction unparseable", "error", err)
			return fail(locale.ParseError), nil
		}
		slog.Error("Identity extraction failed", "error", err)
		return fail(locale.SystemError), nil
	}

	merged := record.Merge(ext)
	state := StateOf(merged)

	switch state {
	case StateNeedBoth:
		return r.prompt(locale.AskBoth, script, merged, state), nil
	case StateNeedName:
		return r.prompt(locale.AskName, script, merged, state), nil
	case StateNeedID:
		return r.prompt(locale.AskID, script, merged, state), nil
	}

	ok, err := r.dir.Verify(ctx, merged.Name, merged.ID)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		slog.Error("Identity verification failed", "error", err)
		return fail(locale.SystemError), nil
	}
	if !ok {
		slog.Info("Identity not found in directory")
		return Result{
			Message:  r.catalog.Message(locale.NotFound, script, ""),
			Identity: domain.Identity{},
			State:    StateNeedBoth,
		}, nil
	}

	division, err := r.dir.DivisionOf(ctx, merged.ID)
	if err == nil && division == "" {
		err = errors.New("employee has no division")
	}
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		slog.Error("Division lookup failed", "employee_id", merged.ID, "error", err)
		return fail(locale.SystemError), nil
	}

	merged.Division = division
	slog.Info("Identity verified", "employee_id", merged.ID, "division", division)
	return Result{
		Message:       r.catalog.Message(locale.Greeting, script, merged.Name),
		Identity:      merged,
		State:         StateAuthenticated,
		Authenticated: true,
	}, nil
}

func (r *Resolver) prompt(key locale.Key, script locale.Script, id domain.Identity, state State) Result {
	return Result{
		Message:  r.catalog.Message(key, script, id.Name),
		Identity: id,
		State:    state,
	}
}
