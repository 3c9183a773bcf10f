package oplock

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailpilot/mailpilot-api/internal/domain"
)

func TestWaiter_ObservesTerminalState(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	ownerID := uuid.New()

	_, err := s.Acquire(ctx, ownerID, domain.OperationKindDailyReport)
	require.NoError(t, err)

	// The owning worker completes shortly after the wait begins.
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = s.Complete(ctx, ownerID, domain.OperationKindDailyReport, true, "report ready")
	}()

	w := NewWaiter(s, 10*time.Millisecond)
	op, err := w.WaitForTerminal(ctx, ownerID, domain.OperationKindDailyReport, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.Equal(t, domain.OperationStatusSucceeded, op.Status)
	assert.Equal(t, "report ready", op.Message)
}

func TestWaiter_TimeoutReturnsNil(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	ownerID := uuid.New()

	_, err := s.Acquire(ctx, ownerID, domain.OperationKindDailyReport)
	require.NoError(t, err)

	w := NewWaiter(s, 10*time.Millisecond)
	op, err := w.WaitForTerminal(ctx, ownerID, domain.OperationKindDailyReport, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, op, "a timed-out wait is not an error, the operation is simply still running")

	// The record itself must be untouched.
	got, err := s.GetStatus(ctx, ownerID, domain.OperationKindDailyReport)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationStatusRunning, got.Status)
}

func TestWaiter_ToleratesMissingRecord(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	ownerID := uuid.New()

	// No operation exists yet; the waiter polls through not-found until the
	// record appears and finishes.
	go func() {
		time.Sleep(30 * time.Millisecond)
		if _, err := s.Acquire(ctx, ownerID, domain.OperationKindInboxSync); err != nil {
			return
		}
		_ = s.Complete(ctx, ownerID, domain.OperationKindInboxSync, false, "mailbox unreachable")
	}()

	w := NewWaiter(s, 10*time.Millisecond)
	op, err := w.WaitForTerminal(ctx, ownerID, domain.OperationKindInboxSync, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.Equal(t, domain.OperationStatusFailed, op.Status)
}

func TestWaiter_ContextCancellation(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ownerID := uuid.New()

	_, err := s.Acquire(context.Background(), ownerID, domain.OperationKindDailyReport)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	w := NewWaiter(s, 10*time.Millisecond)
	_, err = w.WaitForTerminal(ctx, ownerID, domain.OperationKindDailyReport, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
