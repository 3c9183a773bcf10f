// Package failure maps arbitrary errors into a closed taxonomy of failure
// categories. The retry executor consults the taxonomy to decide whether an
// attempt is worth repeating, and the API layer uses it to pick a safe
// user-facing message. Raw internal error text is never shown to users.
package failure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-playground/validator/v10"
	"google.golang.org/api/googleapi"

	"github.com/mailpilot/mailpilot-api/internal/domain"
	"github.com/mailpilot/mailpilot-api/internal/store"
)

// Category identifies a failure class. The set is closed: classification
// always lands on exactly one of these values.
type Category string

// Failure categories
const (
	CategoryTemporary      Category = "temporary"
	CategoryAuthentication Category = "authentication"
	CategoryValidation     Category = "validation"
	CategorySystem         Category = "system"
	CategoryNetwork        Category = "network"
	CategoryDatabase       Category = "database"
	CategoryUnknown        Category = "unknown"
)

// ErrSessionNotReady marks a missing-key failure for an owner whose session
// or mailbox context has not been initialized yet. It classifies as
// temporary: the session will exist once the owning flow has built it.
var ErrSessionNotReady = errors.New("owner session not initialized")

// defaultRetryable holds the default retryable flag per category.
// Unknown and system failures default to retryable: misclassification must
// not silently drop a legitimate transient failure.
var defaultRetryable = map[Category]bool{
	CategoryTemporary:      true,
	CategoryAuthentication: false,
	CategoryValidation:     false,
	CategorySystem:         true,
	CategoryNetwork:        true,
	CategoryDatabase:       false, // retryable only under the stricter storage policy
	CategoryUnknown:        true,
}

// defaultUserMessage holds the default user-facing message per category.
var defaultUserMessage = map[Category]string{
	CategoryTemporary:      "The service is briefly unavailable. Please try again.",
	CategoryAuthentication: "Authentication failed. Please sign in again.",
	CategoryValidation:     "The request contains invalid data.",
	CategorySystem:         "An internal error occurred. Please try again later.",
	CategoryNetwork:        "A network error occurred. Please try again.",
	CategoryDatabase:       "A storage error occurred. Please try again later.",
	CategoryUnknown:        "An unexpected error occurred.",
}

// Classified wraps an error with its failure category, retryability and a
// safe user-facing message. It satisfies the error interface and unwraps to
// the original failure.
type Classified struct {
	Category    Category
	Retryable   bool
	UserMessage string
	Details     map[string]any
	Err         error
}

// Error implements the error interface.
func (c *Classified) Error() string {
	if c.Err != nil {
		return fmt.Sprintf("%s: %v", c.Category, c.Err)
	}
	return string(c.Category)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (c *Classified) Unwrap() error {
	return c.Err
}

// New builds a Classified for the given category with its default retryable
// flag and user message, wrapping err.
func New(category Category, err error) *Classified {
	return &Classified{
		Category:    category,
		Retryable:   defaultRetryable[category],
		UserMessage: defaultUserMessage[category],
		Err:         err,
	}
}

// WithMessage overrides the user-facing message and returns the receiver.
func (c *Classified) WithMessage(msg string) *Classified {
	c.UserMessage = msg
	return c
}

// WithDetail attaches a structured detail and returns the receiver.
func (c *Classified) WithDetail(key string, value any) *Classified {
	if c.Details == nil {
		c.Details = make(map[string]any)
	}
	c.Details[key] = value
	return c
}

// Classify maps an arbitrary error into the taxonomy. Already-classified
// errors pass through unchanged. Returns nil for a nil error.
func Classify(err error) *Classified {
	if err == nil {
		return nil
	}

	var classified *Classified
	if errors.As(err, &classified) {
		return classified
	}

	switch {
	// Missing-key failure for an uninitialized owner session: the resource
	// will exist shortly, so this is temporary rather than a bad request.
	case errors.Is(err, ErrSessionNotReady):
		return New(CategoryTemporary, err)

	case isNotFoundSessionLike(err):
		return New(CategoryTemporary, err)

	// Any other missing-key failure is a bad reference from the caller.
	case store.IsNotFoundError(err):
		return New(CategoryValidation, err)

	case isNetworkError(err):
		return New(CategoryNetwork, err)

	case isAuthError(err):
		return New(CategoryAuthentication, err)

	case isValidationError(err):
		return New(CategoryValidation, err)

	case isDatabaseError(err):
		return New(CategoryDatabase, err)

	default:
		return New(CategoryUnknown, err).WithDetail("error_type", fmt.Sprintf("%T", err))
	}
}

// IsRetryable reports whether the error classifies as retryable under
// category defaults.
func IsRetryable(err error) bool {
	c := Classify(err)
	return c != nil && c.Retryable
}

// UserMessage returns the safe user-facing message for an error.
func UserMessage(err error) string {
	c := Classify(err)
	if c == nil {
		return ""
	}
	return c.UserMessage
}

// isNotFoundSessionLike reports whether a not-found style error refers to an
// owner session or mailbox context that has not been built yet.
func isNotFoundSessionLike(err error) bool {
	if !store.IsNotFoundError(err) {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "session") || strings.Contains(msg, "mailbox context")
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "no such host")
}

func isAuthError(err error) bool {
	if errors.Is(err, domain.ErrUnauthorized) {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 401 || apiErr.Code == 403
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "invalid credential") ||
		strings.Contains(msg, "invalid token") ||
		strings.Contains(msg, "authentication")
}

func isValidationError(err error) bool {
	if errors.Is(err, domain.ErrValidation) || errors.Is(err, store.ErrInvalidEntity) {
		return true
	}

	// Completing or updating a record that is not running is a lifecycle
	// misuse, never a transient condition worth repeating.
	if errors.Is(err, store.ErrOperationNotRunning) || errors.Is(err, domain.ErrOperationNotRunning) {
		return true
	}

	var valErrs validator.ValidationErrors
	if errors.As(err, &valErrs) {
		return true
	}

	// Domain entity validation sentinels
	return errors.Is(err, domain.ErrInvalidProgress) ||
		errors.Is(err, domain.ErrInvalidOperationKind) ||
		errors.Is(err, domain.ErrInvalidOperationStatus) ||
		errors.Is(err, domain.ErrInvalidEmail) ||
		errors.Is(err, domain.ErrInvalidPassword)
}

func isDatabaseError(err error) bool {
	if errors.Is(err, store.ErrTransactionFailed) {
		return true
	}

	var storeErr *store.StoreError
	return errors.As(err, &storeErr)
}
