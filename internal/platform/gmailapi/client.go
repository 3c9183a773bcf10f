package gmailapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/mailpilot/mailpilot-api/internal/config"
	"github.com/mailpilot/mailpilot-api/internal/domain"
)

// ErrNotConfigured is returned when Gmail credentials are missing from the
// configuration. Sync endpoints surface this as a validation failure rather
// than crashing at startup.
var ErrNotConfigured = errors.New("gmail credentials not configured")

// Mailbox is the read-only view of a user's inbox that the sync payload
// consumes. Tests substitute a fake.
type Mailbox interface {
	// ListRecent fetches up to max recent inbox messages as summaries.
	// onFetched, when non-nil, is invoked after each message with the running
	// count, so callers can report progress.
	ListRecent(ctx context.Context, max int64, onFetched func(fetched int)) ([]domain.EmailSummary, error)
}

// Client implements Mailbox against the Gmail REST API.
type Client struct {
	logger *slog.Logger
	svc    *gmail.Service
}

// listPageSize bounds one Messages.List page.
const listPageSize = 50

// NewClient creates a Gmail client authenticated with the configured OAuth2
// refresh token. Returns ErrNotConfigured when credentials are absent.
func NewClient(ctx context.Context, logger *slog.Logger, cfg config.GmailConfig) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, ErrNotConfigured
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}
	tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	svc, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	return &Client{
		logger: logger,
		svc:    svc,
	}, nil
}

// Ensure Client implements Mailbox
var _ Mailbox = (*Client)(nil)

// ListRecent fetches up to max recent inbox messages as summaries, paging
// through Messages.List and resolving each ID to its metadata.
func (c *Client) ListRecent(
	ctx context.Context,
	max int64,
	onFetched func(fetched int),
) ([]domain.EmailSummary, error) {
	if max <= 0 {
		max = listPageSize
	}

	var summaries []domain.EmailSummary
	pageToken := ""

	for {
		call := c.svc.Users.Messages.List("me").
			LabelIds("INBOX").
			MaxResults(listPageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list messages: %w", err)
		}

		for _, ref := range page.Messages {
			msg, err := c.svc.Users.Messages.Get("me", ref.Id).
				Format("metadata").
				MetadataHeaders("From", "Subject").
				Context(ctx).
				Do()
			if err != nil {
				return nil, fmt.Errorf("failed to fetch message %s: %w", ref.Id, err)
			}

			summaries = append(summaries, toSummary(msg))
			if onFetched != nil {
				onFetched(len(summaries))
			}

			if int64(len(summaries)) >= max {
				c.logger.DebugContext(ctx, "message limit reached", "fetched", len(summaries))
				return summaries, nil
			}
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}

	c.logger.DebugContext(ctx, "inbox listing complete", "fetched", len(summaries))
	return summaries, nil
}

// toSummary maps a Gmail message to the domain summary.
func toSummary(msg *gmail.Message) domain.EmailSummary {
	summary := domain.EmailSummary{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		Unread:   hasLabel(msg, "UNREAD"),
	}

	if msg.InternalDate > 0 {
		summary.ReceivedAt = time.UnixMilli(msg.InternalDate).UTC()
	}

	if msg.Payload != nil {
		for _, header := range msg.Payload.Headers {
			switch header.Name {
			case "From":
				summary.From = header.Value
			case "Subject":
				summary.Subject = header.Value
			}
		}
	}

	return summary
}

// hasLabel reports whether the message carries the given label ID.
func hasLabel(msg *gmail.Message, label string) bool {
	for _, id := range msg.LabelIds {
		if id == label {
			return true
		}
	}
	return false
}
