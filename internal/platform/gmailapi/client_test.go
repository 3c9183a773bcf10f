package gmailapi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/gmail/v1"

	"github.com/mailpilot/mailpilot-api/internal/config"
	"github.com/mailpilot/mailpilot-api/internal/platform/logger"
)

func TestNewClient_RequiresCredentials(t *testing.T) {
	t.Parallel()

	log := logger.Setup("error")

	tests := []struct {
		name string
		cfg  config.GmailConfig
	}{
		{name: "all empty", cfg: config.GmailConfig{}},
		{name: "missing secret", cfg: config.GmailConfig{ClientID: "id", RefreshToken: "tok"}},
		{name: "missing refresh token", cfg: config.GmailConfig{ClientID: "id", ClientSecret: "secret"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewClient(context.Background(), log, tc.cfg)
			assert.ErrorIs(t, err, ErrNotConfigured)
		})
	}
}

func TestToSummary(t *testing.T) {
	t.Parallel()

	msg := &gmail.Message{
		Id:           "msg-1",
		ThreadId:     "thread-1",
		Snippet:      "Attached are the Q3 figures",
		LabelIds:     []string{"INBOX", "UNREAD"},
		InternalDate: 1735689600000, // 2025-01-01T00:00:00Z
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "alice@example.com"},
				{Name: "Subject", Value: "Quarterly numbers"},
				{Name: "Date", Value: "Wed, 01 Jan 2025 00:00:00 +0000"},
			},
		},
	}

	summary := toSummary(msg)

	assert.Equal(t, "msg-1", summary.ID)
	assert.Equal(t, "thread-1", summary.ThreadID)
	assert.Equal(t, "alice@example.com", summary.From)
	assert.Equal(t, "Quarterly numbers", summary.Subject)
	assert.Equal(t, "Attached are the Q3 figures", summary.Snippet)
	assert.True(t, summary.Unread)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), summary.ReceivedAt)
}

func TestToSummary_MinimalMessage(t *testing.T) {
	t.Parallel()

	summary := toSummary(&gmail.Message{Id: "msg-2"})

	assert.Equal(t, "msg-2", summary.ID)
	assert.False(t, summary.Unread)
	assert.True(t, summary.ReceivedAt.IsZero())
	assert.Empty(t, summary.From)
}
