package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/mailpilot/mailpilot-api/internal/domain"
)

// OperationStore defines the interface for the operation lock store: one
// operation record per (owner, kind), at most one of them running at a time.
// The backing store's uniqueness constraint is the final arbiter of the
// single-flight guarantee; implementations must translate a constraint
// violation on acquire into the defined "already running" outcome instead of
// surfacing a raw storage error.
type OperationStore interface {
	// Acquire attempts to create and claim a running operation record for
	// (ownerID, kind). On success it returns the new record. If another
	// running record already holds the slot it returns (nil, nil) — this is
	// the defined "already in progress" outcome, not an error. Any other
	// storage failure is returned as an error.
	Acquire(ctx context.Context, ownerID uuid.UUID, kind domain.OperationKind) (*domain.Operation, error)

	// UpdateProgress sets the progress (0-99) and optional message of the
	// running operation for (ownerID, kind), refreshing its heartbeat.
	// Returns ErrOperationNotRunning if no running record exists.
	UpdateProgress(ctx context.Context, ownerID uuid.UUID, kind domain.OperationKind, progress int, message string) error

	// Complete transitions the running operation for (ownerID, kind) into a
	// terminal state: succeeded with progress 100, or failed with progress 0.
	// Release of the single-flight slot is implicit in leaving the running
	// status. Returns ErrOperationNotRunning if no running record exists;
	// double completion is a programming error and fails loudly.
	Complete(ctx context.Context, ownerID uuid.UUID, kind domain.OperationKind, succeeded bool, message string) error

	// GetStatus returns the most recent operation record for (ownerID, kind),
	// or ErrOperationNotFound if none exists.
	GetStatus(ctx context.Context, ownerID uuid.UUID, kind domain.OperationKind) (*domain.Operation, error)

	// ListStale returns running operations whose heartbeat is older than
	// olderThan. Used by the reclaimer to find zombies.
	ListStale(ctx context.Context, olderThan time.Duration) ([]*domain.Operation, error)

	// ForceFail transitions the operation with the given ID to failed with
	// progress 0, but only if it is still running at commit time (optimistic
	// check). Returns false without error when the owning worker finished
	// concurrently and the record is no longer running.
	ForceFail(ctx context.Context, id uuid.UUID, message string) (bool, error)

	// PurgeTerminal deletes terminal operation records older than olderThan
	// and returns the number of rows removed. Retention sweep only; running
	// records are never touched.
	PurgeTerminal(ctx context.Context, olderThan time.Duration) (int64, error)

	// WithTx returns a new OperationStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) OperationStore
}
