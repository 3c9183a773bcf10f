package oplock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mailpilot/mailpilot-api/internal/domain"
	"github.com/mailpilot/mailpilot-api/internal/store"
)

// Waiter polls the operation store for a terminal state on behalf of a
// caller that wants synchronous-looking behavior over an asynchronous
// operation. It never mutates anything: a timed-out wait simply means the
// operation is still running.
type Waiter struct {
	ops store.OperationStore

	// PollInterval is the delay between status checks. If zero, defaults
	// to 500ms.
	PollInterval time.Duration
}

// NewWaiter creates a Waiter polling the given store.
func NewWaiter(ops store.OperationStore, pollInterval time.Duration) *Waiter {
	if pollInterval == 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Waiter{ops: ops, PollInterval: pollInterval}
}

// WaitForTerminal polls until the operation for (ownerID, kind) reaches a
// terminal state or maxWait elapses. On timeout it returns (nil, nil) — the
// caller decides whether "still running" is acceptable. The sleep between
// polls suspends only this call and respects ctx cancellation.
func (w *Waiter) WaitForTerminal(ctx context.Context, ownerID uuid.UUID, kind domain.OperationKind, maxWait time.Duration) (*domain.Operation, error) {
	deadline := time.Now().Add(maxWait)

	for {
		op, err := w.ops.GetStatus(ctx, ownerID, kind)
		if err != nil && !errors.Is(err, store.ErrOperationNotFound) {
			return nil, err
		}
		if op != nil && op.IsTerminal() {
			return op, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}

		sleep := w.PollInterval
		if remaining < sleep {
			sleep = remaining
		}

		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
