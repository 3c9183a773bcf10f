package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/mailpilot/mailpilot-api/internal/domain"
)

// Common request/response structures

// RegisterRequest defines the payload for the user registration endpoint.
type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=12,max=72"`
}

// LoginRequest defines the payload for the user login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// AuthResponse defines the successful response for authentication endpoints.
type AuthResponse struct {
	UserID uuid.UUID `json:"user_id"`
	Token  string    `json:"token"`
}

// OperationResponse is the wire representation of an operation record.
type OperationResponse struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// operationToResponse converts a domain.Operation to its wire form.
func operationToResponse(op *domain.Operation) OperationResponse {
	return OperationResponse{
		ID:        op.ID,
		Kind:      string(op.Kind),
		Status:    string(op.Status),
		Progress:  op.Progress,
		Message:   op.Message,
		CreatedAt: op.CreatedAt,
		UpdatedAt: op.UpdatedAt,
	}
}

// InboxResponse carries the synced inbox snapshot.
type InboxResponse struct {
	Emails []domain.EmailSummary `json:"emails"`
}

// ReportResponse carries a generated daily report.
type ReportResponse struct {
	Report string `json:"report"`
}

// ChatRequest defines the payload for the chat endpoint.
type ChatRequest struct {
	Message string `json:"message" validate:"required,min=1"`
}

// ChatStreamEvent is one newline-delimited JSON event of a streamed chat
// reply. Exactly one of the fields is set per event.
type ChatStreamEvent struct {
	Chunk string `json:"chunk,omitempty"`
	Done  bool   `json:"done,omitempty"`
	Error string `json:"error,omitempty"`
}
