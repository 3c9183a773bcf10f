package generation

import (
	"context"

	"github.com/mailpilot/mailpilot-api/internal/domain"
)

// Turn is one exchange in a conversation, kept so the assistant can answer
// follow-up questions with context.
type Turn struct {
	Role string `json:"role"` // "user" or "model"
	Text string `json:"text"`
}

// Generator defines the interface for LLM-backed content generation.
// This interface serves as the boundary between the application core and
// external AI services; services never see provider-specific types.
type Generator interface {
	// GenerateReport produces a prose digest of the given email summaries.
	// Returns the report text or an error if generation fails (see errors.go
	// for the specific sentinel types).
	GenerateReport(ctx context.Context, emails []domain.EmailSummary) (string, error)

	// StreamReply generates an assistant reply to prompt, given prior
	// conversation turns, and delivers the raw model chunks to emit as they
	// arrive. A non-nil error from emit aborts the stream and is returned
	// unchanged.
	StreamReply(ctx context.Context, history []Turn, prompt string, emit func(chunk string) error) error
}
