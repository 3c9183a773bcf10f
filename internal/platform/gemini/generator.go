package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/mailpilot/mailpilot-api/internal/config"
	"github.com/mailpilot/mailpilot-api/internal/domain"
	"github.com/mailpilot/mailpilot-api/internal/failure"
	"github.com/mailpilot/mailpilot-api/internal/generation"
	"github.com/mailpilot/mailpilot-api/internal/retry"
)

// reportSystemPrompt frames the daily-report generation request.
const reportSystemPrompt = `You are an email assistant. Summarize the user's inbox
into a short daily report: group related messages, call out anything urgent,
and keep the whole report under 300 words. Respond with plain prose.`

// chatSystemPrompt frames assistant replies in the chat surface.
const chatSystemPrompt = `You are a helpful email assistant. Answer questions about
the user's inbox concisely and do not invent messages that were not mentioned.`

// Generator implements the generation.Generator interface using the Gemini
// API.
type Generator struct {
	logger *slog.Logger
	client *genai.Client
	model  string
	policy retry.Policy
}

// NewGenerator creates a Gemini-backed Generator with the provided
// dependencies. Returns generation.ErrInvalidConfig if the configuration is
// incomplete.
func NewGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	policy := retry.DefaultPolicy()
	if cfg.MaxRetries > 0 {
		policy.MaxAttempts = cfg.MaxRetries
	}

	return &Generator{
		logger: logger,
		client: client,
		model:  cfg.ModelName,
		policy: policy,
	}, nil
}

// Ensure Generator implements generation.Generator
var _ generation.Generator = (*Generator)(nil)

// GenerateReport produces a prose digest of the given email summaries.
func (g *Generator) GenerateReport(ctx context.Context, emails []domain.EmailSummary) (string, error) {
	if len(emails) == 0 {
		return "", generation.ErrEmptyPrompt
	}

	prompt := buildReportPrompt(emails)
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(reportSystemPrompt, genai.RoleUser),
	}

	g.logger.DebugContext(ctx, "generating daily report",
		"model", g.model,
		"email_count", len(emails))

	resp, err := retry.DoValue(ctx, g.policy,
		func(ctx context.Context) (*genai.GenerateContentResponse, error) {
			resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
			if err != nil {
				return nil, err
			}
			return resp, checkResponse(resp)
		})
	if err != nil {
		return "", fmt.Errorf("%w: %w", generation.ErrGenerationFailed, err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty report text", generation.ErrInvalidResponse)
	}

	return text, nil
}

// StreamReply generates an assistant reply and hands each raw model chunk to
// emit as it arrives. Streams are not retried: once chunks have been
// delivered the call is no longer idempotent, and a broken stream surfaces
// to the caller as a classified failure.
func (g *Generator) StreamReply(
	ctx context.Context,
	history []generation.Turn,
	prompt string,
	emit func(chunk string) error,
) error {
	if prompt == "" {
		return generation.ErrEmptyPrompt
	}

	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		role := genai.Role(genai.RoleUser)
		if turn.Role == "model" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}
	contents = append(contents, genai.NewContentFromText(prompt, genai.RoleUser))

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(chatSystemPrompt, genai.RoleUser),
	}

	g.logger.DebugContext(ctx, "streaming assistant reply",
		"model", g.model,
		"history_turns", len(history))

	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, cfg) {
		if err != nil {
			return fmt.Errorf("%w: %w", generation.ErrGenerationFailed, err)
		}
		if blockErr := checkResponse(resp); blockErr != nil {
			return blockErr
		}
		chunk := resp.Text()
		if chunk == "" {
			continue
		}
		if emitErr := emit(chunk); emitErr != nil {
			return emitErr
		}
	}

	return nil
}

// checkResponse validates a model response, returning a permanent classified
// failure for malformed or safety-blocked content so the retry policy does
// not repeat a call that will fail the same way again.
func checkResponse(resp *genai.GenerateContentResponse) error {
	if resp == nil || len(resp.Candidates) == 0 {
		return failure.New(failure.CategoryValidation,
			fmt.Errorf("%w: no candidates in response", generation.ErrInvalidResponse))
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return failure.New(failure.CategoryValidation,
			fmt.Errorf("%w: finish reason safety", generation.ErrContentBlocked)).
			WithMessage("The assistant could not answer this request.")
	}
	if candidate.Content == nil {
		return failure.New(failure.CategoryValidation,
			fmt.Errorf("%w: candidate carries no content", generation.ErrInvalidResponse))
	}

	return nil
}

// buildReportPrompt renders the email summaries into the report request.
func buildReportPrompt(emails []domain.EmailSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here are %d messages from the inbox:\n\n", len(emails))

	for i, email := range emails {
		status := "read"
		if email.Unread {
			status = "unread"
		}
		fmt.Fprintf(&b, "%d. [%s] From: %s\n   Subject: %s\n   %s\n",
			i+1, status, email.From, email.Subject, email.Snippet)
	}

	b.WriteString("\nWrite the daily report.")
	return b.String()
}
