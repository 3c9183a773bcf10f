package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailpilot/mailpilot-api/internal/cache"
	"github.com/mailpilot/mailpilot-api/internal/domain"
	"github.com/mailpilot/mailpilot-api/internal/generation"
	"github.com/mailpilot/mailpilot-api/internal/oplock"
)

func newChatFixture(t *testing.T, generator generation.Generator) (*ChatService, *oplock.MemoryStore) {
	t.Helper()

	ops := oplock.NewMemoryStore()
	sessions := cache.New[*ChatSession](10, time.Hour)
	// Tiny min chunk so every generator chunk flows straight through.
	svc := NewChatService(ops, sessions, generator, 1, time.Second, discardLogger())
	return svc, ops
}

func TestChatService_StreamsReply(t *testing.T) {
	t.Parallel()

	generator := &fakeGenerator{chunks: []string{"Hello, ", "you have ", "two unread messages."}}
	svc, ops := newChatFixture(t, generator)
	userID := uuid.New()

	var batches []string
	err := svc.Reply(context.Background(), userID, "Anything new?", func(chunk string) error {
		batches = append(batches, chunk)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello, you have two unread messages.", strings.Join(batches, ""))

	// The operation record went through a full lifecycle.
	op, err := ops.GetStatus(context.Background(), userID, domain.OperationKindChatResponse)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationStatusSucceeded, op.Status)
}

func TestChatService_SessionHistoryGrows(t *testing.T) {
	t.Parallel()

	generator := &fakeGenerator{chunks: []string{"Reply one."}}
	svc, _ := newChatFixture(t, generator)
	userID := uuid.New()

	require.NoError(t, svc.Reply(context.Background(), userID, "First question", func(string) error { return nil }))

	generator.chunks = []string{"Reply two."}
	require.NoError(t, svc.Reply(context.Background(), userID, "Second question", func(string) error { return nil }))

	// The second call saw the first exchange as history.
	require.Len(t, generator.lastHistory, 2)
	assert.Equal(t, "user", generator.lastHistory[0].Role)
	assert.Equal(t, "First question", generator.lastHistory[0].Text)
	assert.Equal(t, "model", generator.lastHistory[1].Role)
	assert.Equal(t, "Reply one.", generator.lastHistory[1].Text)
}

func TestChatService_RejectsConcurrentReplies(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	generator := &blockingGenerator{started: started, release: release}
	svc, _ := newChatFixture(t, generator)
	userID := uuid.New()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = svc.Reply(context.Background(), userID, "slow question", func(string) error { return nil })
	}()

	<-started
	err := svc.Reply(context.Background(), userID, "eager question", func(string) error { return nil })
	assert.ErrorIs(t, err, ErrReplyInProgress)

	close(release)
	wg.Wait()
}

func TestChatService_EmptyMessage(t *testing.T) {
	t.Parallel()

	svc, _ := newChatFixture(t, &fakeGenerator{})
	err := svc.Reply(context.Background(), uuid.New(), "   ", func(string) error { return nil })
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestChatService_GeneratorFailureReleasesSlot(t *testing.T) {
	t.Parallel()

	generator := &fakeGenerator{streamErr: errors.New("model unavailable")}
	svc, ops := newChatFixture(t, generator)
	userID := uuid.New()

	err := svc.Reply(context.Background(), userID, "question", func(string) error { return nil })
	require.Error(t, err)

	op, err := ops.GetStatus(context.Background(), userID, domain.OperationKindChatResponse)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationStatusFailed, op.Status)

	// The slot is free: a new reply can start immediately.
	generator.streamErr = nil
	generator.chunks = []string{"Recovered."}
	assert.NoError(t, svc.Reply(context.Background(), userID, "again?", func(string) error { return nil }))
}

func TestChatService_CompletesAfterClientDisconnect(t *testing.T) {
	t.Parallel()

	mem := oplock.NewMemoryStore()
	ops := &ctxHonoringOpStore{MemoryStore: mem}
	sessions := cache.New[*ChatSession](10, time.Hour)
	generator := &fakeGenerator{chunks: []string{"Hello, world."}}
	svc := NewChatService(ops, sessions, generator, 1, time.Second, discardLogger())
	userID := uuid.New()

	// The client vanishes mid-stream: the request context dies while the
	// reply is being delivered. The record must still go terminal instead of
	// holding the slot until the reclaimer sweeps it.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := svc.Reply(ctx, userID, "question", func(chunk string) error {
		cancel()
		return nil
	})
	require.NoError(t, err)

	op, err := mem.GetStatus(context.Background(), userID, domain.OperationKindChatResponse)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationStatusSucceeded, op.Status)
}

// ctxHonoringOpStore refuses writes on a dead context, the way the durable
// store's ExecContext does.
type ctxHonoringOpStore struct {
	*oplock.MemoryStore
}

func (s *ctxHonoringOpStore) Complete(
	ctx context.Context,
	ownerID uuid.UUID,
	kind domain.OperationKind,
	succeeded bool,
	message string,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.Complete(ctx, ownerID, kind, succeeded, message)
}

// blockingGenerator blocks StreamReply until released.
type blockingGenerator struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingGenerator) GenerateReport(ctx context.Context, emails []domain.EmailSummary) (string, error) {
	return "", nil
}

func (b *blockingGenerator) StreamReply(
	ctx context.Context,
	history []generation.Turn,
	prompt string,
	emit func(chunk string) error,
) error {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return emit("done")
	case <-ctx.Done():
		return ctx.Err()
	}
}
