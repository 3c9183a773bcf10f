package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailpilot/mailpilot-api/internal/cache"
	"github.com/mailpilot/mailpilot-api/internal/domain"
	"github.com/mailpilot/mailpilot-api/internal/oplock"
)

type reportFixture struct {
	svc       *ReportService
	syncs     *SyncService
	generator *fakeGenerator
	inboxes   *cache.Cache[[]domain.EmailSummary]
}

func newReportFixture(t *testing.T, generator *fakeGenerator) *reportFixture {
	t.Helper()

	ops := oplock.NewMemoryStore()
	runner := oplock.NewRunner(ops, discardLogger())
	t.Cleanup(runner.Stop)
	waiter := oplock.NewWaiter(ops, 5*time.Millisecond)

	inboxes := cache.New[[]domain.EmailSummary](10, time.Hour)
	reports := cache.New[string](10, time.Hour)

	syncs := NewSyncService(runner, waiter, ops, &fakeMailbox{}, inboxes, 100, discardLogger())
	svc := NewReportService(runner, waiter, ops, syncs, generator, reports, discardLogger())

	return &reportFixture{svc: svc, syncs: syncs, generator: generator, inboxes: inboxes}
}

// seedInbox stores a snapshot directly, standing in for a completed sync.
func (f *reportFixture) seedInbox(t *testing.T, userID uuid.UUID, emails []domain.EmailSummary) {
	t.Helper()
	_, err := f.inboxes.GetOrCreate(context.Background(), inboxKey(userID), func(ctx context.Context) ([]domain.EmailSummary, error) {
		return emails, nil
	})
	require.NoError(t, err)
}

func TestReportService_GeneratesFromSnapshot(t *testing.T) {
	t.Parallel()

	generator := &fakeGenerator{report: "Two messages, nothing urgent."}
	f := newReportFixture(t, generator)
	userID := uuid.New()

	f.seedInbox(t, userID, []domain.EmailSummary{
		{ID: "m1", Subject: "Hello"},
		{ID: "m2", Subject: "Invoice"},
	})

	_, started, err := f.svc.Start(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, started)

	final, err := f.svc.Wait(context.Background(), userID, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, final)
	assert.Equal(t, domain.OperationStatusSucceeded, final.Status)

	report, err := f.svc.Latest(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "Two messages, nothing urgent.", report)
	assert.Equal(t, int64(1), generator.reportCalls.Load())
}

func TestReportService_EmptyInboxSkipsModel(t *testing.T) {
	t.Parallel()

	generator := &fakeGenerator{report: "should not be used"}
	f := newReportFixture(t, generator)
	userID := uuid.New()

	f.seedInbox(t, userID, []domain.EmailSummary{})

	_, started, err := f.svc.Start(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, started)

	final, err := f.svc.Wait(context.Background(), userID, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, final)
	assert.Equal(t, domain.OperationStatusSucceeded, final.Status)

	report, err := f.svc.Latest(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, emptyInboxReport, report)
	assert.Equal(t, int64(0), generator.reportCalls.Load(), "empty inbox must not reach the model")
}

func TestReportService_CachedPerDay(t *testing.T) {
	t.Parallel()

	generator := &fakeGenerator{report: "Daily digest."}
	f := newReportFixture(t, generator)
	userID := uuid.New()

	f.seedInbox(t, userID, []domain.EmailSummary{{ID: "m1"}})

	for i := 0; i < 2; i++ {
		_, started, err := f.svc.Start(context.Background(), userID)
		require.NoError(t, err)
		require.True(t, started)

		final, err := f.svc.Wait(context.Background(), userID, 2*time.Second)
		require.NoError(t, err)
		require.NotNil(t, final)
		require.Equal(t, domain.OperationStatusSucceeded, final.Status)
	}

	assert.Equal(t, int64(1), generator.reportCalls.Load(), "same-day regeneration must reuse the cached report")
}

func TestReportService_FailsBeforeFirstSync(t *testing.T) {
	t.Parallel()

	f := newReportFixture(t, &fakeGenerator{report: "unused"})
	userID := uuid.New()

	_, started, err := f.svc.Start(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, started)

	final, err := f.svc.Wait(context.Background(), userID, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, final)
	assert.Equal(t, domain.OperationStatusFailed, final.Status)

	_, err = f.svc.Latest(context.Background(), userID)
	assert.ErrorIs(t, err, ErrReportNotReady)
}
