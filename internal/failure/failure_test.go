package failure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/mailpilot/mailpilot-api/internal/domain"
	"github.com/mailpilot/mailpilot-api/internal/store"
)

// timeoutError mimics a net.Error timeout.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func TestClassify(t *testing.T) {
	t.Parallel()

	t.Run("nil error", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, Classify(nil))
	})

	t.Run("uninitialized session is temporary and retryable", func(t *testing.T) {
		t.Parallel()

		c := Classify(fmt.Errorf("building reply: %w", ErrSessionNotReady))
		require.NotNil(t, c)
		assert.Equal(t, CategoryTemporary, c.Category)
		assert.True(t, c.Retryable)
	})

	t.Run("not-found mentioning session is temporary", func(t *testing.T) {
		t.Parallel()

		err := fmt.Errorf("%w: chat session for owner", store.ErrNotFound)
		c := Classify(err)
		assert.Equal(t, CategoryTemporary, c.Category)
		assert.True(t, c.Retryable)
	})

	t.Run("other not-found is validation, not retryable", func(t *testing.T) {
		t.Parallel()

		c := Classify(store.ErrUserNotFound)
		assert.Equal(t, CategoryValidation, c.Category)
		assert.False(t, c.Retryable)
	})

	t.Run("network timeout is retryable", func(t *testing.T) {
		t.Parallel()

		c := Classify(timeoutError{})
		assert.Equal(t, CategoryNetwork, c.Category)
		assert.True(t, c.Retryable)
	})

	t.Run("context deadline is network", func(t *testing.T) {
		t.Parallel()

		c := Classify(fmt.Errorf("gmail list: %w", context.DeadlineExceeded))
		assert.Equal(t, CategoryNetwork, c.Category)
	})

	t.Run("googleapi 503 is network", func(t *testing.T) {
		t.Parallel()

		c := Classify(&googleapi.Error{Code: 503, Message: "backend error"})
		assert.Equal(t, CategoryNetwork, c.Category)
		assert.True(t, c.Retryable)
	})

	t.Run("googleapi 401 is authentication, not retryable", func(t *testing.T) {
		t.Parallel()

		c := Classify(&googleapi.Error{Code: 401, Message: "invalid credentials"})
		assert.Equal(t, CategoryAuthentication, c.Category)
		assert.False(t, c.Retryable)
	})

	t.Run("auth message is authentication", func(t *testing.T) {
		t.Parallel()

		c := Classify(errors.New("request rejected: invalid token"))
		assert.Equal(t, CategoryAuthentication, c.Category)
		assert.False(t, c.Retryable)
	})

	t.Run("domain validation error is validation", func(t *testing.T) {
		t.Parallel()

		c := Classify(domain.ErrInvalidProgress)
		assert.Equal(t, CategoryValidation, c.Category)
		assert.False(t, c.Retryable)
	})

	t.Run("store error is database, not retryable by default", func(t *testing.T) {
		t.Parallel()

		err := store.NewStoreError("operation", "acquire", "exec failed", errors.New("broken pipe to pg"))
		c := Classify(err)
		assert.Equal(t, CategoryDatabase, c.Category)
		assert.False(t, c.Retryable)
	})

	t.Run("unrecognized error is unknown, retryable, carries type name", func(t *testing.T) {
		t.Parallel()

		c := Classify(errors.New("what even is this"))
		assert.Equal(t, CategoryUnknown, c.Category)
		assert.True(t, c.Retryable)
		assert.Equal(t, "*errors.errorString", c.Details["error_type"])
	})

	t.Run("already classified passes through", func(t *testing.T) {
		t.Parallel()

		orig := New(CategoryValidation, errors.New("bad input")).WithMessage("custom message")
		wrapped := fmt.Errorf("handler: %w", orig)

		c := Classify(wrapped)
		assert.Same(t, orig, c)
		assert.Equal(t, "custom message", c.UserMessage)
	})
}

func TestClassified_ErrorAndUnwrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("boom")
	c := New(CategoryNetwork, inner)

	assert.Contains(t, c.Error(), "network")
	assert.Contains(t, c.Error(), "boom")
	assert.ErrorIs(t, c, inner)
}

func TestUserMessage(t *testing.T) {
	t.Parallel()

	// Raw internal text never leaks to users.
	msg := UserMessage(errors.New("pq: duplicate key value violates unique constraint"))
	assert.NotContains(t, msg, "pq:")
	assert.NotEmpty(t, msg)
}

func TestDefaultsCoverEveryCategory(t *testing.T) {
	t.Parallel()

	categories := []Category{
		CategoryTemporary, CategoryAuthentication, CategoryValidation,
		CategorySystem, CategoryNetwork, CategoryDatabase, CategoryUnknown,
	}
	for _, cat := range categories {
		assert.NotEmpty(t, defaultUserMessage[cat], "category %s needs a default message", cat)
		_, ok := defaultRetryable[cat]
		assert.True(t, ok, "category %s needs a retryable default", cat)
	}
}

func TestClassifyDeadlineWrappedDeep(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("outer: %w", fmt.Errorf("inner after %s: %w", 5*time.Second, context.DeadlineExceeded))
	assert.Equal(t, CategoryNetwork, Classify(err).Category)
}
