package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mailpilot/mailpilot-api/internal/cache"
	"github.com/mailpilot/mailpilot-api/internal/domain"
	"github.com/mailpilot/mailpilot-api/internal/generation"
	"github.com/mailpilot/mailpilot-api/internal/oplock"
	"github.com/mailpilot/mailpilot-api/internal/store"
)

// emptyInboxReport is returned without calling the model when there is
// nothing to summarize.
const emptyInboxReport = "No new messages to report."

// ReportService generates daily inbox reports under the single-flight
// operation lock. Generated reports are cached per owner and day, so repeated
// requests within a day reuse the text instead of paying for a new
// generation.
type ReportService struct {
	runner    *oplock.Runner
	waiter    *oplock.Waiter
	ops       store.OperationStore
	syncs     *SyncService
	generator generation.Generator
	reports   *cache.Cache[string]
	logger    *slog.Logger

	// now is replaceable in tests; the report cache key contains the date.
	now func() time.Time
}

// NewReportService creates a ReportService.
func NewReportService(
	runner *oplock.Runner,
	waiter *oplock.Waiter,
	ops store.OperationStore,
	syncs *SyncService,
	generator generation.Generator,
	reports *cache.Cache[string],
	logger *slog.Logger,
) *ReportService {
	return &ReportService{
		runner:    runner,
		waiter:    waiter,
		ops:       ops,
		syncs:     syncs,
		generator: generator,
		reports:   reports,
		logger:    logger.With("component", "report_service"),
		now:       time.Now,
	}
}

// Start launches daily-report generation for the user. Returns the operation
// record and whether this call started it.
func (s *ReportService) Start(ctx context.Context, userID uuid.UUID) (*domain.Operation, bool, error) {
	return s.runner.Start(ctx, userID, domain.OperationKindDailyReport, func(ctx context.Context, progress oplock.ProgressFunc) error {
		return s.generate(ctx, userID, progress)
	})
}

// Status returns the most recent report operation record for the user.
func (s *ReportService) Status(ctx context.Context, userID uuid.UUID) (*domain.Operation, error) {
	return s.ops.GetStatus(ctx, userID, domain.OperationKindDailyReport)
}

// Wait blocks until the user's report generation reaches a terminal state or
// maxWait elapses; (nil, nil) on timeout.
func (s *ReportService) Wait(ctx context.Context, userID uuid.UUID, maxWait time.Duration) (*domain.Operation, error) {
	return s.waiter.WaitForTerminal(ctx, userID, domain.OperationKindDailyReport, maxWait)
}

// Latest returns today's generated report for the user, or ErrReportNotReady
// if none has been generated yet.
func (s *ReportService) Latest(ctx context.Context, userID uuid.UUID) (string, error) {
	report, ok := s.reports.Get(s.reportKey(userID))
	if !ok {
		return "", ErrReportNotReady
	}
	return report, nil
}

// generate is the operation payload: read the synced snapshot and produce the
// report. The cache's singleflight makes the generation exactly-once per
// owner and day even if two payloads race.
func (s *ReportService) generate(ctx context.Context, userID uuid.UUID, progress oplock.ProgressFunc) error {
	if err := progress(ctx, 5, "loading inbox snapshot"); err != nil {
		return err
	}

	emails, err := s.syncs.Inbox(ctx, userID)
	if err != nil {
		return err
	}

	if err := progress(ctx, 20, "generating report"); err != nil {
		return err
	}

	_, err = s.reports.GetOrCreate(ctx, s.reportKey(userID), func(ctx context.Context) (string, error) {
		if len(emails) == 0 {
			return emptyInboxReport, nil
		}
		return s.generator.GenerateReport(ctx, emails)
	})
	if err != nil {
		return fmt.Errorf("report generation failed: %w", err)
	}

	if err := progress(ctx, 95, "report ready"); err != nil {
		return err
	}

	s.logger.Info("daily report generated", "user_id", userID, "messages", len(emails))
	return nil
}

// reportKey scopes cached reports per owner and day.
func (s *ReportService) reportKey(userID uuid.UUID) string {
	return "report:" + userID.String() + ":" + s.now().UTC().Format("2006-01-02")
}
