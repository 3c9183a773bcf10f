package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mailpilot/mailpilot-api/internal/domain"
	"github.com/mailpilot/mailpilot-api/internal/platform/logger"
	"github.com/mailpilot/mailpilot-api/internal/store"
)

// PostgresOperationStore implements the store.OperationStore interface using
// PostgreSQL. Acquire inserts a fresh row per attempt; the partial unique
// index on (owner_id, kind) for running rows decides every race, so no
// application-level locking is needed.
type PostgresOperationStore struct {
	db store.DBTX
}

// NewPostgresOperationStore creates a new PostgresOperationStore.
func NewPostgresOperationStore(db store.DBTX) *PostgresOperationStore {
	return &PostgresOperationStore{
		db: db,
	}
}

// Ensure PostgresOperationStore implements store.OperationStore
var _ store.OperationStore = (*PostgresOperationStore)(nil)

// Acquire attempts to claim the running slot for (ownerID, kind) by inserting
// a new running record. A unique violation on the partial index means another
// running record holds the slot; that lost race is returned as (nil, nil),
// never as a raw constraint error.
func (s *PostgresOperationStore) Acquire(
	ctx context.Context,
	ownerID uuid.UUID,
	kind domain.OperationKind,
) (*domain.Operation, error) {
	log := logger.FromContext(ctx)

	op, err := domain.NewOperation(ownerID, kind)
	if err != nil {
		return nil, err
	}
	if err := op.Start(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO operations (id, owner_id, kind, status, progress, message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.db.ExecContext(ctx, query,
		op.ID,
		op.OwnerID,
		op.Kind,
		op.Status,
		op.Progress,
		op.Message,
		op.CreatedAt,
		op.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			log.Debug("operation slot already held",
				"owner_id", ownerID,
				"kind", kind)
			return nil, nil
		}
		log.Error("failed to acquire operation slot",
			"owner_id", ownerID,
			"kind", kind,
			"error", err)
		return nil, fmt.Errorf("failed to acquire operation slot: %w", MapError(err))
	}

	return op, nil
}

// UpdateProgress updates the running record for (ownerID, kind), refreshing
// its heartbeat. An empty message leaves the previous message in place.
func (s *PostgresOperationStore) UpdateProgress(
	ctx context.Context,
	ownerID uuid.UUID,
	kind domain.OperationKind,
	progress int,
	message string,
) error {
	log := logger.FromContext(ctx)

	// Reject out-of-range progress before touching the database; the CHECK
	// constraint would catch it anyway, but this keeps the error typed.
	if progress < 0 || progress > 99 {
		return domain.ErrInvalidProgress
	}

	query := `
		UPDATE operations
		SET progress = $1,
		    message = CASE WHEN $2 = '' THEN message ELSE $2 END,
		    updated_at = $3
		WHERE owner_id = $4 AND kind = $5 AND status = $6
	`

	result, err := s.db.ExecContext(ctx, query,
		progress,
		message,
		time.Now().UTC(),
		ownerID,
		kind,
		domain.OperationStatusRunning,
	)
	if err != nil {
		log.Error("failed to update operation progress",
			"owner_id", ownerID,
			"kind", kind,
			"progress", progress,
			"error", err)
		return fmt.Errorf("failed to update operation progress: %w", MapError(err))
	}

	return CheckRowsAffected(result, store.ErrOperationNotRunning)
}

// Complete transitions the running record for (ownerID, kind) to its terminal
// state, implicitly releasing the single-flight slot.
func (s *PostgresOperationStore) Complete(
	ctx context.Context,
	ownerID uuid.UUID,
	kind domain.OperationKind,
	succeeded bool,
	message string,
) error {
	log := logger.FromContext(ctx)

	status := domain.OperationStatusFailed
	progress := 0
	if succeeded {
		status = domain.OperationStatusSucceeded
		progress = 100
	}

	query := `
		UPDATE operations
		SET status = $1, progress = $2, message = $3, updated_at = $4
		WHERE owner_id = $5 AND kind = $6 AND status = $7
	`

	result, err := s.db.ExecContext(ctx, query,
		status,
		progress,
		message,
		time.Now().UTC(),
		ownerID,
		kind,
		domain.OperationStatusRunning,
	)
	if err != nil {
		log.Error("failed to complete operation",
			"owner_id", ownerID,
			"kind", kind,
			"succeeded", succeeded,
			"error", err)
		return fmt.Errorf("failed to complete operation: %w", MapError(err))
	}

	return CheckRowsAffected(result, store.ErrOperationNotRunning)
}

// GetStatus returns the most recent operation record for (ownerID, kind).
// History rows are retained after completion, so ties are broken by creation
// time with the newest record winning.
func (s *PostgresOperationStore) GetStatus(
	ctx context.Context,
	ownerID uuid.UUID,
	kind domain.OperationKind,
) (*domain.Operation, error) {
	query := `
		SELECT id, owner_id, kind, status, progress, message, created_at, updated_at
		FROM operations
		WHERE owner_id = $1 AND kind = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	op, err := scanOperation(s.db.QueryRowContext(ctx, query, ownerID, kind))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, store.ErrOperationNotFound
		}
		return nil, fmt.Errorf("failed to get operation status: %w", err)
	}

	return op, nil
}

// ListStale returns running operations whose heartbeat is older than olderThan.
func (s *PostgresOperationStore) ListStale(
	ctx context.Context,
	olderThan time.Duration,
) ([]*domain.Operation, error) {
	log := logger.FromContext(ctx)

	query := `
		SELECT id, owner_id, kind, status, progress, message, created_at, updated_at
		FROM operations
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
	`

	cutoff := time.Now().UTC().Add(-olderThan)

	rows, err := s.db.QueryContext(ctx, query, domain.OperationStatusRunning, cutoff)
	if err != nil {
		log.Error("failed to list stale operations", "error", err)
		return nil, fmt.Errorf("failed to list stale operations: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var stale []*domain.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			log.Error("failed to scan operation row", "error", err)
			return nil, fmt.Errorf("failed to scan operation row: %w", err)
		}
		stale = append(stale, op)
	}

	if err := rows.Err(); err != nil {
		log.Error("error iterating operation rows", "error", err)
		return nil, fmt.Errorf("error iterating operation rows: %w", err)
	}

	return stale, nil
}

// ForceFail fails the operation with the given ID if it is still running at
// commit time. The status predicate makes the write optimistic: a worker that
// completed between the reclaimer's read and this update wins, and the
// reclaimer's write affects zero rows.
func (s *PostgresOperationStore) ForceFail(
	ctx context.Context,
	id uuid.UUID,
	message string,
) (bool, error) {
	log := logger.FromContext(ctx)

	query := `
		UPDATE operations
		SET status = $1, progress = 0, message = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.OperationStatusFailed,
		message,
		time.Now().UTC(),
		id,
		domain.OperationStatusRunning,
	)
	if err != nil {
		log.Error("failed to force-fail operation",
			"operation_id", id,
			"error", err)
		return false, fmt.Errorf("failed to force-fail operation: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// PurgeTerminal deletes terminal records older than olderThan and returns the
// number of rows removed.
func (s *PostgresOperationStore) PurgeTerminal(
	ctx context.Context,
	olderThan time.Duration,
) (int64, error) {
	log := logger.FromContext(ctx)

	query := `
		DELETE FROM operations
		WHERE status IN ($1, $2) AND updated_at < $3
	`

	cutoff := time.Now().UTC().Add(-olderThan)

	result, err := s.db.ExecContext(ctx, query,
		domain.OperationStatusSucceeded,
		domain.OperationStatusFailed,
		cutoff,
	)
	if err != nil {
		log.Error("failed to purge terminal operations", "error", err)
		return 0, fmt.Errorf("failed to purge terminal operations: %w", MapError(err))
	}

	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return purged, nil
}

// WithTx returns a new PostgresOperationStore that uses the provided
// transaction for all operations.
func (s *PostgresOperationStore) WithTx(tx *sql.Tx) store.OperationStore {
	return &PostgresOperationStore{
		db: tx,
	}
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanOperation reads one operation record from a row.
func scanOperation(row rowScanner) (*domain.Operation, error) {
	var op domain.Operation
	err := row.Scan(
		&op.ID,
		&op.OwnerID,
		&op.Kind,
		&op.Status,
		&op.Progress,
		&op.Message,
		&op.CreatedAt,
		&op.UpdatedAt,
	)
	if err != nil {
		return nil, MapError(err)
	}
	return &op, nil
}
