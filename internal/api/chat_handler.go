package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/mailpilot/mailpilot-api/internal/api/shared"
	"github.com/mailpilot/mailpilot-api/internal/service"
)

// ChatHandler handles chat API requests. Replies stream to the client as
// newline-delimited JSON events while the model is still generating.
type ChatHandler struct {
	chats     *service.ChatService
	validator *validator.Validate
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(chats *service.ChatService) *ChatHandler {
	return &ChatHandler{
		chats:     chats,
		validator: validator.New(),
	}
}

// Reply handles POST /api/chat requests. The response body is a stream of
// ChatStreamEvent lines: chunk events while generating, then a done event.
// Failures before the first chunk produce a normal JSON error response; a
// failure mid-stream is delivered as a final error event since the status
// line is already on the wire.
func (h *ChatHandler) Reply(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req ChatRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	streamed := false

	writeEvent := func(event ChatStreamEvent) error {
		if !streamed {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			streamed = true
		}
		if err := enc.Encode(event); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	err := h.chats.Reply(r.Context(), userID, req.Message, func(chunk string) error {
		return writeEvent(ChatStreamEvent{Chunk: chunk})
	})
	if err != nil {
		if !streamed {
			HandleAPIError(w, r, err, "")
			return
		}
		// Headers are gone; the error rides the stream.
		_ = writeEvent(ChatStreamEvent{Error: GetSafeErrorMessage(err)})
		return
	}

	_ = writeEvent(ChatStreamEvent{Done: true})
}

// ResetSession handles POST /api/chat/reset requests, dropping the user's
// conversation context.
func (h *ChatHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	h.chats.ResetSession(userID)
	w.WriteHeader(http.StatusNoContent)
}
