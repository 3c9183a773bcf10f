package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/mailpilot/mailpilot-api/internal/api/shared"
	"github.com/mailpilot/mailpilot-api/internal/service"
)

// defaultWaitTimeout bounds how long a /wait request blocks before returning
// the still-running operation. Clients can ask for less but not more.
const defaultWaitTimeout = 30 * time.Second

// SyncHandler handles inbox sync API requests.
type SyncHandler struct {
	syncs *service.SyncService
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(syncs *service.SyncService) *SyncHandler {
	return &SyncHandler{syncs: syncs}
}

// Start handles POST /api/sync requests. A fresh sync returns 202; a sync
// already in flight for this user returns 200 with its current record.
func (h *SyncHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	op, started, err := h.syncs.Start(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	status := http.StatusOK
	if started {
		status = http.StatusAccepted
	}
	shared.RespondWithJSON(w, r, status, operationToResponse(op))
}

// Status handles GET /api/sync/status requests.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	op, err := h.syncs.Status(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, operationToResponse(op))
}

// Wait handles GET /api/sync/wait requests. Blocks until the user's sync
// reaches a terminal state (200) or the timeout elapses (202 with the
// still-running record).
func (h *SyncHandler) Wait(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	op, err := h.syncs.Wait(r.Context(), userID, waitTimeout(r))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if op != nil {
		shared.RespondWithJSON(w, r, http.StatusOK, operationToResponse(op))
		return
	}

	// Timed out: report the in-flight record instead.
	current, err := h.syncs.Status(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, operationToResponse(current))
}

// Inbox handles GET /api/inbox requests, returning the synced snapshot.
func (h *SyncHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	emails, err := h.syncs.Inbox(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, InboxResponse{Emails: emails})
}

// waitTimeout reads the optional timeout_seconds query parameter, capped at
// defaultWaitTimeout.
func waitTimeout(r *http.Request) time.Duration {
	raw := r.URL.Query().Get("timeout_seconds")
	if raw == "" {
		return defaultWaitTimeout
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return defaultWaitTimeout
	}
	timeout := time.Duration(seconds) * time.Second
	if timeout > defaultWaitTimeout {
		return defaultWaitTimeout
	}
	return timeout
}
