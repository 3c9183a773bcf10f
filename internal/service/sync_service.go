package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mailpilot/mailpilot-api/internal/cache"
	"github.com/mailpilot/mailpilot-api/internal/domain"
	"github.com/mailpilot/mailpilot-api/internal/oplock"
	"github.com/mailpilot/mailpilot-api/internal/platform/gmailapi"
	"github.com/mailpilot/mailpilot-api/internal/retry"
	"github.com/mailpilot/mailpilot-api/internal/store"
)

// SyncService runs inbox syncs under the single-flight operation lock and
// keeps the latest snapshot per owner in the bounded cache. The snapshot is
// what report generation and the chat surface read; they never touch the
// mailbox directly.
type SyncService struct {
	runner      *oplock.Runner
	waiter      *oplock.Waiter
	ops         store.OperationStore
	mailbox     gmailapi.Mailbox
	inboxes     *cache.Cache[[]domain.EmailSummary]
	maxMessages int64
	policy      retry.Policy
	logger      *slog.Logger
}

// NewSyncService creates a SyncService.
func NewSyncService(
	runner *oplock.Runner,
	waiter *oplock.Waiter,
	ops store.OperationStore,
	mailbox gmailapi.Mailbox,
	inboxes *cache.Cache[[]domain.EmailSummary],
	maxMessages int64,
	logger *slog.Logger,
) *SyncService {
	return &SyncService{
		runner:      runner,
		waiter:      waiter,
		ops:         ops,
		mailbox:     mailbox,
		inboxes:     inboxes,
		maxMessages: maxMessages,
		policy:      retry.DefaultPolicy(),
		logger:      logger.With("component", "sync_service"),
	}
}

// Start launches an inbox sync for the user. Returns the operation record and
// whether this call started it; (record, false) means a sync is already in
// flight and the caller should poll its status instead.
func (s *SyncService) Start(ctx context.Context, userID uuid.UUID) (*domain.Operation, bool, error) {
	if s.mailbox == nil {
		return nil, false, gmailapi.ErrNotConfigured
	}

	return s.runner.Start(ctx, userID, domain.OperationKindInboxSync, func(ctx context.Context, progress oplock.ProgressFunc) error {
		return s.sync(ctx, userID, progress)
	})
}

// Status returns the most recent sync operation record for the user.
func (s *SyncService) Status(ctx context.Context, userID uuid.UUID) (*domain.Operation, error) {
	return s.ops.GetStatus(ctx, userID, domain.OperationKindInboxSync)
}

// Wait blocks until the user's sync reaches a terminal state or maxWait
// elapses. A timed-out wait returns (nil, nil): the sync is simply still
// running.
func (s *SyncService) Wait(ctx context.Context, userID uuid.UUID, maxWait time.Duration) (*domain.Operation, error) {
	return s.waiter.WaitForTerminal(ctx, userID, domain.OperationKindInboxSync, maxWait)
}

// Inbox returns the synced snapshot for the user. Returns ErrInboxNotReady
// when no sync has completed yet; callers treat that as a temporary failure.
func (s *SyncService) Inbox(ctx context.Context, userID uuid.UUID) ([]domain.EmailSummary, error) {
	emails, ok := s.inboxes.Get(inboxKey(userID))
	if !ok {
		return nil, ErrInboxNotReady
	}
	return emails, nil
}

// sync is the operation payload: list the mailbox, reporting progress per
// message, and replace the cached snapshot.
func (s *SyncService) sync(ctx context.Context, userID uuid.UUID, progress oplock.ProgressFunc) error {
	if err := progress(ctx, 1, "listing mailbox"); err != nil {
		return err
	}

	total := s.maxMessages
	if total <= 0 {
		total = 100
	}

	// A transient Gmail failure (429, 5xx, reset connection) retries under
	// the policy instead of failing the whole sync; non-retryable failures
	// surface immediately.
	emails, err := retry.DoValue(ctx, s.policy, func(ctx context.Context) ([]domain.EmailSummary, error) {
		return s.mailbox.ListRecent(ctx, total, func(fetched int) {
			// Fetch covers 1-95%; the snapshot swap is the rest. Progress failures
			// here are heartbeat noise, not sync failures.
			pct := 1 + int(int64(fetched)*94/total)
			if pct > 95 {
				pct = 95
			}
			if err := progress(ctx, pct, fmt.Sprintf("fetched %d messages", fetched)); err != nil {
				s.logger.Warn("failed to report sync progress", "error", err, "user_id", userID)
			}
		})
	})
	if err != nil {
		return fmt.Errorf("mailbox listing failed: %w", err)
	}

	if err := progress(ctx, 95, "storing snapshot"); err != nil {
		return err
	}

	// Replace the snapshot. Remove first so GetOrCreate's factory runs even
	// when an older snapshot is still fresh.
	key := inboxKey(userID)
	s.inboxes.Remove(key)
	if _, err := s.inboxes.GetOrCreate(ctx, key, func(ctx context.Context) ([]domain.EmailSummary, error) {
		return emails, nil
	}); err != nil {
		return fmt.Errorf("failed to store inbox snapshot: %w", err)
	}

	s.logger.Info("inbox sync complete", "user_id", userID, "messages", len(emails))
	return nil
}

// inboxKey scopes cached snapshots per owner.
func inboxKey(userID uuid.UUID) string {
	return "inbox:" + userID.String()
}
