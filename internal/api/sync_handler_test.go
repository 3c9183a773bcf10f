package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailpilot/mailpilot-api/internal/cache"
	"github.com/mailpilot/mailpilot-api/internal/domain"
	"github.com/mailpilot/mailpilot-api/internal/oplock"
	"github.com/mailpilot/mailpilot-api/internal/service"
)

func newSyncHandlerFixture(t *testing.T, mailbox *fakeMailbox) *SyncHandler {
	t.Helper()

	ops := oplock.NewMemoryStore()
	runner := oplock.NewRunner(ops, discardLogger())
	t.Cleanup(runner.Stop)
	waiter := oplock.NewWaiter(ops, 5*time.Millisecond)
	inboxes := cache.New[[]domain.EmailSummary](10, time.Hour)

	syncs := service.NewSyncService(runner, waiter, ops, mailbox, inboxes, 100, discardLogger())
	return NewSyncHandler(syncs)
}

func TestSyncHandler_StartWaitInbox(t *testing.T) {
	t.Parallel()

	handler := newSyncHandlerFixture(t, &fakeMailbox{
		emails: []domain.EmailSummary{
			{ID: "m1", From: "alice@example.com", Subject: "Hello"},
			{ID: "m2", From: "bob@example.com", Subject: "Re: Hello"},
		},
	})
	userID := uuid.New()

	// Start returns 202 with the freshly created record.
	w := httptest.NewRecorder()
	handler.Start(w, authedRequest(http.MethodPost, "/api/sync", nil, userID))
	require.Equal(t, http.StatusAccepted, w.Code)

	var started OperationResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&started))
	assert.Equal(t, string(domain.OperationKindInboxSync), started.Kind)

	// Wait blocks until the sync finishes.
	w = httptest.NewRecorder()
	handler.Wait(w, authedRequest(http.MethodGet, "/api/sync/wait?timeout_seconds=2", nil, userID))
	require.Equal(t, http.StatusOK, w.Code)

	var final OperationResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&final))
	assert.Equal(t, string(domain.OperationStatusSucceeded), final.Status)
	assert.Equal(t, 100, final.Progress)

	// The snapshot is served from the cache.
	w = httptest.NewRecorder()
	handler.Inbox(w, authedRequest(http.MethodGet, "/api/inbox", nil, userID))
	require.Equal(t, http.StatusOK, w.Code)

	var inbox InboxResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&inbox))
	require.Len(t, inbox.Emails, 2)
	assert.Equal(t, "m1", inbox.Emails[0].ID)
}

func TestSyncHandler_InboxBeforeSync(t *testing.T) {
	t.Parallel()

	handler := newSyncHandlerFixture(t, &fakeMailbox{})

	w := httptest.NewRecorder()
	handler.Inbox(w, authedRequest(http.MethodGet, "/api/inbox", nil, uuid.New()))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSyncHandler_StatusBeforeAnySync(t *testing.T) {
	t.Parallel()

	handler := newSyncHandlerFixture(t, &fakeMailbox{})

	w := httptest.NewRecorder()
	handler.Status(w, authedRequest(http.MethodGet, "/api/sync/status", nil, uuid.New()))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSyncHandler_RequiresAuthentication(t *testing.T) {
	t.Parallel()

	handler := newSyncHandlerFixture(t, &fakeMailbox{})

	w := httptest.NewRecorder()
	handler.Start(w, httptest.NewRequest(http.MethodPost, "/api/sync", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
