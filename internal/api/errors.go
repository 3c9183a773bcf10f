package api

import (
	"errors"
	"net/http"

	"github.com/mailpilot/mailpilot-api/internal/api/shared"
	"github.com/mailpilot/mailpilot-api/internal/domain"
	"github.com/mailpilot/mailpilot-api/internal/failure"
	"github.com/mailpilot/mailpilot-api/internal/platform/gmailapi"
	"github.com/mailpilot/mailpilot-api/internal/service"
	"github.com/mailpilot/mailpilot-api/internal/service/auth"
	"github.com/mailpilot/mailpilot-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes. Sentinel
// errors are matched first; everything else falls back to the failure
// taxonomy so unknown errors still land on a sensible code.
func MapErrorToStatusCode(err error) int {
	if err == nil {
		return http.StatusInternalServerError
	}

	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized

	// Single-flight rejections
	case errors.Is(err, service.ErrReplyInProgress):
		return http.StatusConflict

	// Resources that do not exist yet for this owner
	case errors.Is(err, service.ErrInboxNotReady),
		errors.Is(err, service.ErrReportNotReady):
		return http.StatusNotFound

	// Not found errors
	case errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrOperationNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, store.ErrEmailExists):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidEmail),
		errors.Is(err, domain.ErrInvalidPassword),
		errors.Is(err, domain.ErrPasswordTooShort),
		errors.Is(err, domain.ErrPasswordTooLong),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Missing deployment configuration
	case errors.Is(err, gmailapi.ErrNotConfigured):
		return http.StatusServiceUnavailable
	}

	// Fall back to the failure taxonomy.
	switch failure.Classify(err).Category {
	case failure.CategoryValidation:
		return http.StatusBadRequest
	case failure.CategoryAuthentication:
		return http.StatusUnauthorized
	case failure.CategoryTemporary:
		return http.StatusServiceUnavailable
	case failure.CategoryNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-facing message for an error.
// Raw internal error text is never returned to clients.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		return "Invalid token"
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "Invalid credentials"
	case errors.Is(err, service.ErrReplyInProgress):
		return "A reply is already being generated"
	case errors.Is(err, service.ErrInboxNotReady):
		return "Inbox has not been synced yet"
	case errors.Is(err, service.ErrReportNotReady):
		return "No report has been generated yet"
	case errors.Is(err, store.ErrUserNotFound):
		return "User not found"
	case errors.Is(err, store.ErrOperationNotFound):
		return "No operation found"
	case errors.Is(err, store.ErrEmailExists):
		return "Email already exists"
	case errors.Is(err, domain.ErrPasswordTooShort):
		return "Password must be at least 12 characters long"
	case errors.Is(err, domain.ErrPasswordTooLong):
		return "Password must be at most 72 characters long"
	case errors.Is(err, domain.ErrInvalidEmail):
		return "Invalid email format"
	case errors.Is(err, gmailapi.ErrNotConfigured):
		return "Mailbox access is not configured"
	}

	// The taxonomy's per-category messages are safe by construction.
	return failure.UserMessage(err)
}

// HandleAPIError writes a sanitized error response for err. fallbackMessage
// overrides the derived message when non-empty.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallbackMessage string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if fallbackMessage != "" {
		message = fallbackMessage
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}
