package oplock

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mailpilot/mailpilot-api/internal/domain"
	"github.com/mailpilot/mailpilot-api/internal/store"
)

// lockKey scopes single-flight to one (owner, kind) pair.
type lockKey struct {
	ownerID uuid.UUID
	kind    domain.OperationKind
}

// MemoryStore implements store.OperationStore with a mutex-guarded map.
// The mutex plays the role the partial unique index plays in postgres: a
// single writer decides every acquire, so exactly one concurrent caller wins.
// Used by tests and local development.
type MemoryStore struct {
	mutex   sync.Mutex
	running map[lockKey]*domain.Operation  // at most one per key
	history map[uuid.UUID]*domain.Operation

	// Now is replaceable in tests to age heartbeats artificially.
	Now func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		running: make(map[lockKey]*domain.Operation),
		history: make(map[uuid.UUID]*domain.Operation),
		Now:     time.Now,
	}
}

// Acquire attempts to claim the running slot for (ownerID, kind).
// Returns (nil, nil) when another running record already holds it.
func (s *MemoryStore) Acquire(ctx context.Context, ownerID uuid.UUID, kind domain.OperationKind) (*domain.Operation, error) {
	op, err := domain.NewOperation(ownerID, kind)
	if err != nil {
		return nil, err
	}
	if err := op.Start(); err != nil {
		return nil, err
	}
	op.CreatedAt = s.Now().UTC()
	op.UpdatedAt = op.CreatedAt

	key := lockKey{ownerID, kind}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, held := s.running[key]; held {
		return nil, nil
	}

	s.running[key] = op
	s.history[op.ID] = op
	return s.snapshot(op), nil
}

// UpdateProgress updates the running record for (ownerID, kind), refreshing
// the heartbeat.
func (s *MemoryStore) UpdateProgress(ctx context.Context, ownerID uuid.UUID, kind domain.OperationKind, progress int, message string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	op, held := s.running[lockKey{ownerID, kind}]
	if !held {
		return store.ErrOperationNotRunning
	}

	if err := op.SetProgress(progress, message); err != nil {
		return err
	}
	op.UpdatedAt = s.Now().UTC()
	return nil
}

// Complete transitions the running record for (ownerID, kind) to a terminal
// state, releasing the slot.
func (s *MemoryStore) Complete(ctx context.Context, ownerID uuid.UUID, kind domain.OperationKind, succeeded bool, message string) error {
	key := lockKey{ownerID, kind}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	op, held := s.running[key]
	if !held {
		return store.ErrOperationNotRunning
	}

	if err := op.Complete(succeeded, message); err != nil {
		return err
	}
	op.UpdatedAt = s.Now().UTC()
	delete(s.running, key)
	return nil
}

// GetStatus returns the most recent record for (ownerID, kind).
func (s *MemoryStore) GetStatus(ctx context.Context, ownerID uuid.UUID, kind domain.OperationKind) (*domain.Operation, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if op, held := s.running[lockKey{ownerID, kind}]; held {
		return s.snapshot(op), nil
	}

	var newest *domain.Operation
	for _, op := range s.history {
		if op.OwnerID != ownerID || op.Kind != kind {
			continue
		}
		if newest == nil || op.CreatedAt.After(newest.CreatedAt) {
			newest = op
		}
	}
	if newest == nil {
		return nil, store.ErrOperationNotFound
	}
	return s.snapshot(newest), nil
}

// ListStale returns running operations whose heartbeat is older than olderThan.
func (s *MemoryStore) ListStale(ctx context.Context, olderThan time.Duration) ([]*domain.Operation, error) {
	cutoff := s.Now().UTC().Add(-olderThan)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	var stale []*domain.Operation
	for _, op := range s.running {
		if op.UpdatedAt.Before(cutoff) {
			stale = append(stale, s.snapshot(op))
		}
	}
	return stale, nil
}

// ForceFail fails the operation with the given ID if it is still running.
func (s *MemoryStore) ForceFail(ctx context.Context, id uuid.UUID, message string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	op, ok := s.history[id]
	if !ok || op.Status != domain.OperationStatusRunning {
		// Lost the race to the owning worker; not an error.
		return false, nil
	}

	if err := op.Complete(false, message); err != nil {
		return false, err
	}
	op.UpdatedAt = s.Now().UTC()
	delete(s.running, lockKey{op.OwnerID, op.Kind})
	return true, nil
}

// PurgeTerminal deletes terminal records older than olderThan.
func (s *MemoryStore) PurgeTerminal(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.Now().UTC().Add(-olderThan)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	var purged int64
	for id, op := range s.history {
		if op.IsTerminal() && op.UpdatedAt.Before(cutoff) {
			delete(s.history, id)
			purged++
		}
	}
	return purged, nil
}

// WithTx returns the store unchanged; the in-memory store has no
// transactions.
func (s *MemoryStore) WithTx(tx *sql.Tx) store.OperationStore {
	return s
}

// snapshot copies an operation so callers cannot mutate stored state.
// Caller holds s.mutex.
func (s *MemoryStore) snapshot(op *domain.Operation) *domain.Operation {
	copied := *op
	return &copied
}

var _ store.OperationStore = (*MemoryStore)(nil)
