package structured

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/trainingdesk/internal/oracle"
)

// maxAttempts is the first call plus exactly one retry.
const maxAttempts = 2

// Ask calls the oracle and decodes the reply. A malformed reply or a
// transient failure is retried once with the identical request. The final
// error wraps ErrMalformedOutput or oracle.ErrUnavailable, or is the
// caller's context error.
func Ask[T any](ctx context.Context, o oracle.Oracle, req oracle.Request, decode func(string) (T, error), timeout time.Duration) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		raw, err := complete(ctx, o, req, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			lastErr = fmt.Errorf("%w: %v", oracle.ErrUnavailable, err)
			if !errors.Is(err, oracle.ErrTransient) {
				return zero, lastErr
			}
			slog.Warn("Oracle call failed, retrying", "purpose", req.Purpose, "attempt", attempt, "error", err)
			continue
		}

		v, err := decode(raw)
		if err == nil {
			return v, nil
		}
		lastErr = err
		slog.Warn("Oracle returned malformed output", "purpose", req.Purpose, "attempt", attempt, "error", err)
	}
	return zero, lastErr
}

// complete bounds a single oracle call by timeout. A timeout that is not the
// caller's own cancellation counts as transient.
func complete(ctx context.Context, o oracle.Oracle, req oracle.Request, timeout time.Duration) (string, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	raw, err := o.Complete(callCtx, req)
	if err != nil && ctx.Err() == nil && callCtx.Err() != nil {
		return "", fmt.Errorf("%w: %v", oracle.ErrTransient, callCtx.Err())
	}
	return raw, err
}
