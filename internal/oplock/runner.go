package oplock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mailpilot/mailpilot-api/internal/domain"
	"github.com/mailpilot/mailpilot-api/internal/failure"
	"github.com/mailpilot/mailpilot-api/internal/retry"
	"github.com/mailpilot/mailpilot-api/internal/store"
)

// ProgressFunc reports incremental progress (0-99) for a running operation,
// refreshing its heartbeat.
type ProgressFunc func(ctx context.Context, progress int, message string) error

// Payload is the real work behind an operation: a Gmail sync, a report
// generation, an assistant reply. It reports progress through the supplied
// callback and returns the terminal outcome. The runner knows nothing about
// what the payload does, only how its errors classify.
type Payload func(ctx context.Context, progress ProgressFunc) error

// Runner executes operations under the single-flight lock. Start acquires
// the slot and, on success, runs the payload in a background goroutine that
// is guaranteed to complete the record on every exit route — success, error,
// panic, or shutdown cancellation. The zombie reclaimer remains the backstop
// should the process die before that cleanup runs.
type Runner struct {
	ops    store.OperationStore
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a Runner backed by the given operation store.
func NewRunner(ops store.OperationStore, logger *slog.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		ops:    ops,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start attempts to acquire the (ownerID, kind) slot and launch the payload.
// Returns the running record and true when this call won the slot. Returns
// (current record, false, nil) when another operation is already in flight —
// the defined "already in progress" outcome, not an error.
//
// The payload runs detached from the request context: an HTTP client
// disconnecting must not abandon a half-finished sync. Runner shutdown
// cancels it instead.
func (r *Runner) Start(ctx context.Context, ownerID uuid.UUID, kind domain.OperationKind, payload Payload) (*domain.Operation, bool, error) {
	op, err := r.ops.Acquire(ctx, ownerID, kind)
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire operation slot: %w", err)
	}
	if op == nil {
		current, err := r.ops.GetStatus(ctx, ownerID, kind)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load in-flight operation: %w", err)
		}
		return current, false, nil
	}

	r.wg.Add(1)
	go r.execute(op, payload)

	return op, true, nil
}

// Stop cancels all in-flight payloads and waits for their cleanup paths to
// finish, so no record is left running by an orderly shutdown.
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
}

// execute runs one payload and writes the terminal state. Every exit route
// lands in the deferred completion.
func (r *Runner) execute(op *domain.Operation, payload Payload) {
	defer r.wg.Done()

	logger := r.logger.With(
		"operation_id", op.ID,
		"owner_id", op.OwnerID,
		"kind", op.Kind,
	)

	ctx := r.ctx

	var payloadErr error
	completed := false

	complete := func(succeeded bool, message string) {
		// The record may already be terminal if the reclaimer swept a very
		// slow payload; that is not an error here. Completion uses a fresh
		// context so shutdown cancellation cannot block the final write, and
		// retries under the storage policy: a transient database failure on
		// this write would otherwise leave a zombie for the reclaimer.
		err := retry.Do(context.Background(), retry.DatabasePolicy(), func(ctx context.Context) error {
			return r.ops.Complete(ctx, op.OwnerID, op.Kind, succeeded, message)
		})
		if err != nil {
			logger.Error("failed to write terminal operation state",
				"succeeded", succeeded,
				"error", err)
			return
		}
		completed = true
	}

	defer func() {
		if p := recover(); p != nil {
			logger.Error("operation payload panicked", "panic", p)
			if !completed {
				complete(false, "internal error")
			}
			return
		}

		if completed {
			return
		}

		switch {
		case payloadErr == nil:
			complete(true, "completed")
		case ctx.Err() != nil:
			logger.Warn("operation cancelled", "error", payloadErr)
			complete(false, "cancelled")
		default:
			classified := failure.Classify(payloadErr)
			logger.Error("operation failed",
				"category", classified.Category,
				"error", payloadErr)
			complete(false, classified.UserMessage)
		}
	}()

	logger.Info("operation started")

	progress := func(ctx context.Context, pct int, message string) error {
		return r.ops.UpdateProgress(ctx, op.OwnerID, op.Kind, pct, message)
	}

	payloadErr = payload(ctx, progress)
	if payloadErr == nil {
		logger.Info("operation completed successfully")
	}
}
