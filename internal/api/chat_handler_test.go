package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailpilot/mailpilot-api/internal/cache"
	"github.com/mailpilot/mailpilot-api/internal/oplock"
	"github.com/mailpilot/mailpilot-api/internal/service"
)

func newChatHandlerFixture(t *testing.T, generator *fakeGenerator) *ChatHandler {
	t.Helper()

	ops := oplock.NewMemoryStore()
	sessions := cache.New[*service.ChatSession](10, time.Hour)
	chats := service.NewChatService(ops, sessions, generator, 1, time.Second, discardLogger())
	return NewChatHandler(chats)
}

func postChat(t *testing.T, handler *ChatHandler, userID uuid.UUID, message string) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(ChatRequest{Message: message})
	require.NoError(t, err)

	r := authedRequest(http.MethodPost, "/api/chat", bytes.NewReader(body), userID)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.Reply(w, r)
	return w
}

// decodeStream parses the NDJSON response body into events.
func decodeStream(t *testing.T, body *bytes.Buffer) []ChatStreamEvent {
	t.Helper()

	var events []ChatStreamEvent
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event ChatStreamEvent
		require.NoError(t, json.Unmarshal([]byte(line), &event))
		events = append(events, event)
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestChatHandler_StreamsReply(t *testing.T) {
	t.Parallel()

	handler := newChatHandlerFixture(t, &fakeGenerator{
		chunks: []string{"You have ", "two unread ", "messages."},
	})

	w := postChat(t, handler, uuid.New(), "Anything new?")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))

	events := decodeStream(t, w.Body)
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.True(t, last.Done)
	assert.Empty(t, last.Error)

	var reply strings.Builder
	for _, event := range events[:len(events)-1] {
		reply.WriteString(event.Chunk)
	}
	assert.Equal(t, "You have two unread messages.", reply.String())
}

func TestChatHandler_EmptyMessage(t *testing.T) {
	t.Parallel()

	handler := newChatHandlerFixture(t, &fakeGenerator{})

	w := postChat(t, handler, uuid.New(), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatHandler_GeneratorFailureBeforeFirstChunk(t *testing.T) {
	t.Parallel()

	handler := newChatHandlerFixture(t, &fakeGenerator{
		streamErr: errors.New("model unavailable"),
	})

	w := postChat(t, handler, uuid.New(), "question")
	assert.GreaterOrEqual(t, w.Code, http.StatusBadRequest)
	assert.NotContains(t, w.Body.String(), "model unavailable")
}

func TestChatHandler_ResetSession(t *testing.T) {
	t.Parallel()

	handler := newChatHandlerFixture(t, &fakeGenerator{chunks: []string{"Hi."}})
	userID := uuid.New()

	w := postChat(t, handler, userID, "hello")
	require.Equal(t, http.StatusOK, w.Code)

	reset := httptest.NewRecorder()
	handler.ResetSession(reset, authedRequest(http.MethodPost, "/api/chat/reset", nil, userID))
	assert.Equal(t, http.StatusNoContent, reset.Code)
}
