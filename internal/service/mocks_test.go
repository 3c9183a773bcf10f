package service

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/mailpilot/mailpilot-api/internal/domain"
	"github.com/mailpilot/mailpilot-api/internal/generation"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// fakeMailbox implements gmailapi.Mailbox with canned results.
type fakeMailbox struct {
	emails []domain.EmailSummary
	err    error

	listCalls atomic.Int64
}

func (f *fakeMailbox) ListRecent(
	ctx context.Context,
	max int64,
	onFetched func(fetched int),
) ([]domain.EmailSummary, error) {
	f.listCalls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if onFetched != nil {
		for i := range f.emails {
			onFetched(i + 1)
		}
	}
	return f.emails, nil
}

// fakeGenerator implements generation.Generator with canned output.
type fakeGenerator struct {
	report    string
	reportErr error

	chunks    []string
	streamErr error

	reportCalls atomic.Int64
	streamCalls atomic.Int64

	// lastHistory records the history passed to the most recent StreamReply.
	lastHistory []generation.Turn
}

func (f *fakeGenerator) GenerateReport(ctx context.Context, emails []domain.EmailSummary) (string, error) {
	f.reportCalls.Add(1)
	if f.reportErr != nil {
		return "", f.reportErr
	}
	return f.report, nil
}

func (f *fakeGenerator) StreamReply(
	ctx context.Context,
	history []generation.Turn,
	prompt string,
	emit func(chunk string) error,
) error {
	f.streamCalls.Add(1)
	f.lastHistory = history
	if f.streamErr != nil {
		return f.streamErr
	}
	for _, chunk := range f.chunks {
		if err := emit(chunk); err != nil {
			return err
		}
	}
	return nil
}
