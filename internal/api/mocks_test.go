package api

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/google/uuid"

	"github.com/mailpilot/mailpilot-api/internal/api/shared"
	"github.com/mailpilot/mailpilot-api/internal/domain"
	"github.com/mailpilot/mailpilot-api/internal/generation"
	"github.com/mailpilot/mailpilot-api/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// authedRequest builds a request carrying userID the way the auth middleware
// would, so handlers can be exercised without real tokens.
func authedRequest(method, target string, body io.Reader, userID uuid.UUID) *http.Request {
	r := httptest.NewRequest(method, target, body)
	ctx := context.WithValue(r.Context(), shared.UserIDContextKey, userID)
	return r.WithContext(ctx)
}

// memoryUserStore is an in-memory store.UserStore for handler tests.
type memoryUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{users: make(map[uuid.UUID]*domain.User)}
}

func (m *memoryUserStore) Create(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return store.ErrEmailExists
		}
	}
	copied := *user
	m.users[user.ID] = &copied
	return nil
}

func (m *memoryUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (m *memoryUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (m *memoryUserStore) WithTx(tx *sql.Tx) store.UserStore {
	return m
}

// fakeMailbox implements gmailapi.Mailbox with canned results.
type fakeMailbox struct {
	emails []domain.EmailSummary
	err    error
}

func (f *fakeMailbox) ListRecent(
	ctx context.Context,
	max int64,
	onFetched func(fetched int),
) ([]domain.EmailSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	if onFetched != nil {
		for i := range f.emails {
			onFetched(i + 1)
		}
	}
	return f.emails, nil
}

// fakeGenerator implements generation.Generator with canned output.
type fakeGenerator struct {
	report    string
	reportErr error

	chunks    []string
	streamErr error
}

func (f *fakeGenerator) GenerateReport(ctx context.Context, emails []domain.EmailSummary) (string, error) {
	if f.reportErr != nil {
		return "", f.reportErr
	}
	return f.report, nil
}

func (f *fakeGenerator) StreamReply(
	ctx context.Context,
	history []generation.Turn,
	prompt string,
	emit func(chunk string) error,
) error {
	if f.streamErr != nil {
		return f.streamErr
	}
	for _, chunk := range f.chunks {
		if err := emit(chunk); err != nil {
			return err
		}
	}
	return nil
}
