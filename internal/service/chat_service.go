package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mailpilot/mailpilot-api/internal/cache"
	"github.com/mailpilot/mailpilot-api/internal/domain"
	"github.com/mailpilot/mailpilot-api/internal/failure"
	"github.com/mailpilot/mailpilot-api/internal/generation"
	"github.com/mailpilot/mailpilot-api/internal/store"
	"github.com/mailpilot/mailpilot-api/internal/stream"
)

// maxSessionTurns bounds how much conversation history a session retains.
// Older turns fall off; the assistant only needs recent context.
const maxSessionTurns = 20

// ChatSession is the cached per-owner conversation context.
type ChatSession struct {
	mu    sync.Mutex
	turns []generation.Turn
}

// snapshot returns a copy of the conversation history.
func (s *ChatSession) snapshot() []generation.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := make([]generation.Turn, len(s.turns))
	copy(turns, s.turns)
	return turns
}

// record appends a completed exchange, trimming history to maxSessionTurns.
func (s *ChatSession) record(message, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns,
		generation.Turn{Role: "user", Text: message},
		generation.Turn{Role: "model", Text: reply},
	)
	if len(s.turns) > maxSessionTurns {
		s.turns = s.turns[len(s.turns)-maxSessionTurns:]
	}
}

// ChatService streams assistant replies. Unlike sync and report generation,
// a reply cannot run detached: its output is the HTTP response. The service
// therefore holds the single-flight slot itself for the duration of the
// stream, and the operation record doubles as the busy signal for concurrent
// requests.
type ChatService struct {
	ops          store.OperationStore
	sessions     *cache.Cache[*ChatSession]
	generator    generation.Generator
	minChunkSize int
	maxChunkWait time.Duration
	logger       *slog.Logger
}

// NewChatService creates a ChatService. minChunkSize and maxChunkWait tune
// the response accumulator.
func NewChatService(
	ops store.OperationStore,
	sessions *cache.Cache[*ChatSession],
	generator generation.Generator,
	minChunkSize int,
	maxChunkWait time.Duration,
	logger *slog.Logger,
) *ChatService {
	return &ChatService{
		ops:          ops,
		sessions:     sessions,
		generator:    generator,
		minChunkSize: minChunkSize,
		maxChunkWait: maxChunkWait,
		logger:       logger.With("component", "chat_service"),
	}
}

// Reply generates an assistant reply to message and delivers it to emit in
// accumulated batches. Returns ErrReplyInProgress when the owner's previous
// reply is still streaming.
func (s *ChatService) Reply(
	ctx context.Context,
	userID uuid.UUID,
	message string,
	emit func(chunk string) error,
) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: message cannot be empty", domain.ErrValidation)
	}

	op, err := s.ops.Acquire(ctx, userID, domain.OperationKindChatResponse)
	if err != nil {
		return fmt.Errorf("failed to acquire chat slot: %w", err)
	}
	if op == nil {
		return ErrReplyInProgress
	}

	completed := false
	defer func() {
		// Whatever path leaves this function, the slot must be released.
		// A fresh context: request cancellation must not leave a zombie.
		if !completed {
			if cerr := s.ops.Complete(context.Background(), userID, domain.OperationKindChatResponse, false, "cancelled"); cerr != nil {
				s.logger.Error("failed to release chat slot", "error", cerr, "user_id", userID)
			}
		}
	}()

	session, err := s.sessions.GetOrCreate(ctx, sessionKey(userID), func(ctx context.Context) (*ChatSession, error) {
		return &ChatSession{}, nil
	})
	if err != nil {
		return fmt.Errorf("failed to load chat session: %w", err)
	}

	if err := s.ops.UpdateProgress(ctx, userID, domain.OperationKindChatResponse, 10, "generating reply"); err != nil {
		s.logger.Warn("failed to report chat progress", "error", err, "user_id", userID)
	}

	acc := stream.NewAccumulator(s.minChunkSize, s.maxChunkWait)
	var reply strings.Builder

	streamErr := s.generator.StreamReply(ctx, session.snapshot(), message, func(chunk string) error {
		reply.WriteString(chunk)
		if batch, ok := acc.Add(chunk); ok {
			return emit(batch)
		}
		return nil
	})
	if streamErr != nil {
		classified := failure.Classify(streamErr)
		s.logger.Error("chat reply failed",
			"category", classified.Category,
			"error", streamErr,
			"user_id", userID)
		if cerr := s.ops.Complete(context.Background(), userID, domain.OperationKindChatResponse, false, classified.UserMessage); cerr != nil {
			s.logger.Error("failed to release chat slot", "error", cerr, "user_id", userID)
		}
		completed = true
		return streamErr
	}

	if batch, ok := acc.Flush(); ok {
		if err := emit(batch); err != nil {
			return fmt.Errorf("failed to deliver final batch: %w", err)
		}
	}

	session.record(message, reply.String())

	// Fresh context here too: a client that disconnects just as the stream
	// ends must not leave the record running until the reclaimer sweeps it.
	if err := s.ops.Complete(context.Background(), userID, domain.OperationKindChatResponse, true, "reply delivered"); err != nil {
		s.logger.Error("failed to complete chat operation", "error", err, "user_id", userID)
	}
	completed = true

	s.logger.Debug("chat reply delivered",
		"user_id", userID,
		"batches", acc.EmittedBatches(),
		"reply_bytes", reply.Len())
	return nil
}

// ResetSession drops the owner's cached conversation context.
func (s *ChatService) ResetSession(userID uuid.UUID) {
	s.sessions.Remove(sessionKey(userID))
}

// sessionKey scopes cached sessions per owner.
func sessionKey(userID uuid.UUID) string {
	return "chat:" + userID.String()
}
