// Package query turns an authenticated employee's question into a checked,
// read-only directory query and narrates the result.
package query

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashureev/trainingdesk/internal/domain"
	"github.com/ashureev/trainingdesk/internal/locale"
	"github.com/ashureev/trainingdesk/internal/oracle"
	"github.com/ashureev/trainingdesk/internal/session"
	"github.com/ashureev/trainingdesk/internal/sqlguard"
	"github.com/ashureev/trainingdesk/internal/store"
	"github.com/ashureev/trainingdesk/internal/structured"
)

// Outcome classifies how a turn ended.
type Outcome string

const (
	OutcomeAnswered    Outcome = "answered"
	OutcomeForbidden   Outcome = "forbidden"
	OutcomeCrossUser   Outcome = "cross_user"
	OutcomeOutOfScope  Outcome = "out_of_scope"
	OutcomeParseError  Outcome = "parse_error"
	OutcomeSystemError Outcome = "system_error"
	OutcomeRevoked     Outcome = "revoked"
)

// Reply is the result of one query turn. SQL is kept for the audit trail
// and never shown to the caller.
type Reply struct {
	SessionID   string
	UserMessage string
	Transcript  domain.Transcript
	Message     string
	Outcome     Outcome
	SQL         string
	Rows        int
}

// Directory is the part of the employee store the pipeline needs.
type Directory interface {
	DivisionOf(ctx context.Context, id string) (string, error)
	Columns(ctx context.Context) ([]string, error)
	Execute(ctx context.Context, query string) (domain.ResultSet, error)
}

// Sessions gives exclusive access to one session at a time.
type Sessions interface {
	Do(ctx context.Context, key string, fn func(*session.Session) error) error
	CloseLocked(sess *session.Session)
}

// Options configure a Pipeline.
type Options struct {
	PrivilegedDivision string
	HistoryTurns       int
	OracleTimeout      time.Duration
	StoreTimeout       time.Duration
}

// Pipeline runs authenticated query turns.
type Pipeline struct {
	oracle    oracle.Oracle
	dir       Directory
	sessions  Sessions
	validator *sqlguard.Validator
	catalog   *locale.Catalog
	opts      Options
}

// NewPipeline creates a pipeline.
func NewPipeline(o oracle.Oracle, dir Directory, sessions Sessions, catalog *locale.Catalog, opts Options) *Pipeline {
	return &Pipeline{
		oracle:    o,
		dir:       dir,
		sessions:  sessions,
		validator: sqlguard.New(store.TableName),
		catalog:   catalog,
		opts:      opts,
	}
}

// Turn answers text for the session identified by key. Turns on the same
// session run one at a time. The error is session.ErrNotFound or the
// context's; every other failure becomes a localized reply.
func (p *Pipeline) Turn(ctx context.Context, key, text string) (Reply, error) {
	var reply Reply
	err := p.sessions.Do(ctx, key, func(sess *session.Session) error {
		var err error
		reply, err = p.turn(ctx, sess, text)
		return err
	})
	return reply, err
}

func (p *Pipeline) turn(ctx context.Context, sess *session.Session, text string) (Reply, error) {
	script := locale.Detect(text)
	history := sess.Transcript.Clone().Last(p.opts.HistoryTurns)
	sess.Transcript.Append(domain.RoleUser, text)

	logger := slog.With("employee_id", sess.Key, "session_id", sess.ID)
	reply := func(key locale.Key, outcome Outcome, sql string) Reply {
		return p.finish(sess, text, p.catalog.Message(key, script, sess.Identity.Name), outcome, sql, 0)
	}

	division, err := p.refreshDivision(ctx, sess.Identity.ID)
	if err != nil {
		if ctx.Err() != nil {
			return Reply{}, ctx.Err()
		}
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn("Employee no longer in directory, closing session")
			r := reply(locale.SessionRevoked, OutcomeRevoked, "")
			p.sessions.CloseLocked(sess)
			return r, nil
		}
		logger.Error("Division refresh failed", "error", err)
		return reply(locale.SystemError, OutcomeSystemError, ""), nil
	}
	if division != sess.Identity.Division {
		logger.Info("Division changed", "from", sess.Identity.Division, "to", division)
		sess.Identity.Division = division
	}
	privileged := division == p.opts.PrivilegedDivision

	columns, err := p.dir.Columns(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Reply{}, ctx.Err()
		}
		logger.Error("Column listing failed", "error", err)
		return reply(locale.SystemError, OutcomeSystemError, ""), nil
	}

	spec, err := structured.Ask(ctx, p.oracle, specRequest(columns, history, sess.Identity, text), structured.ParseQuerySpec, p.opts.OracleTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return Reply{}, ctx.Err()
		}
		if errors.Is(err, structured.ErrMalformedOutput) {
			logger.Warn("Query specification unparseable", "error", err)
			return reply(locale.ParseError, OutcomeParseError, ""), nil
		}
		logger.Error("Query specification failed", "error", err)
		return reply(locale.SystemError, OutcomeSystemError, ""), nil
	}

	if spec.Verdict == domain.VerdictForbidden {
		logger.Info("Query refused by oracle verdict", "sql", spec.SQL)
		return reply(locale.CannotModify, OutcomeForbidden, spec.SQL), nil
	}
	if err := p.validator.Check(spec.SQL); err != nil {
		logger.Warn("Query rejected by validator", "sql", spec.SQL, "error", err)
		return reply(locale.CannotModify, OutcomeForbidden, spec.SQL), nil
	}
	if spec.Target != domain.TargetSelf && !privileged {
		logger.Info("Cross-user query denied", "division", division)
		return reply(locale.OwnDataOnly, OutcomeCrossUser, spec.SQL), nil
	}
	if spec.Scope != domain.ScopeIn {
		return reply(locale.OutOfScope, OutcomeOutOfScope, spec.SQL), nil
	}

	rs, err := p.execute(ctx, spec.SQL)
	if err != nil {
		if ctx.Err() != nil {
			return Reply{}, ctx.Err()
		}
		logger.Error("Query execution failed", "error", err)
		return reply(locale.SystemError, OutcomeSystemError, spec.SQL), nil
	}
	if !privileged {
		before := len(rs.Rows)
		rs = OwnRows(rs, sess.Identity)
		if dropped := before - len(rs.Rows); dropped > 0 {
			logger.Warn("Dropped rows about other employees", "count", dropped)
		}
	}

	narration, err := structured.Ask(ctx, p.oracle, narrationRequest(sess.Identity, text, spec.SQL, rs), structured.ParseText, p.opts.OracleTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return Reply{}, ctx.Err()
		}
		if rs.Empty() {
			return reply(locale.EmptyResult, OutcomeAnswered, spec.SQL), nil
		}
		logger.Error("Narration failed", "error", err)
		return reply(locale.SystemError, OutcomeSystemError, spec.SQL), nil
	}
	if EchoesSQL(narration, spec.SQL) {
		logger.Warn("Narration echoed the query, withholding it")
		return reply(locale.AnswerWithheld, OutcomeAnswered, spec.SQL), nil
	}

	return p.finish(sess, text, narration, OutcomeAnswered, spec.SQL, len(rs.Rows)), nil
}

func (p *Pipeline) refreshDivision(ctx context.Context, id string) (string, error) {
	ctx, cancel := p.storeContext(ctx)
	defer cancel()
	return p.dir.DivisionOf(ctx, id)
}

func (p *Pipeline) execute(ctx context.Context, sql string) (domain.ResultSet, error) {
	ctx, cancel := p.storeContext(ctx)
	defer cancel()
	return p.dir.Execute(ctx, sql)
}

func (p *Pipeline) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.opts.StoreTimeout)
}

func (p *Pipeline) finish(sess *session.Session, text, message string, outcome Outcome, sql string, rows int) Reply {
	sess.Transcript.Append(domain.RoleAssistant, message)
	return Reply{
		SessionID:   sess.ID,
		UserMessage: text,
		Transcript:  sess.Transcript.Clone(),
		Message:     message,
		Outcome:     outcome,
		SQL:         sql,
		Rows:        rows,
	}
}
