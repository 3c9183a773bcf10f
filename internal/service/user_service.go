package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mailpilot/mailpilot-api/internal/domain"
	"github.com/mailpilot/mailpilot-api/internal/service/auth"
	"github.com/mailpilot/mailpilot-api/internal/store"
)

// UserService provides user registration, login and lookup.
type UserService struct {
	users  store.UserStore
	db     *sql.DB
	hasher *auth.BcryptHasher
	jwt    auth.JWTService
	logger *slog.Logger
}

// NewUserService creates a new UserService. db may be nil when the backing
// store is non-transactional (in-memory mode); writes then go straight to the
// store.
func NewUserService(
	users store.UserStore,
	db *sql.DB,
	jwtService auth.JWTService,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:  users,
		db:     db,
		hasher: auth.NewBcryptHasher(),
		jwt:    jwtService,
		logger: logger.With("component", "user_service"),
	}
}

// Register creates a new user and returns it with a signed access token.
func (s *UserService) Register(ctx context.Context, email, password string) (*domain.User, string, error) {
	user, err := domain.NewUser(email, password)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Error("failed to hash password", "error", err)
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}
	user.HashedPassword = hashed
	user.Password = ""

	err = s.createUser(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			s.logger.Debug("attempted to register existing email", "email", email)
		} else {
			s.logger.Error("failed to save user", "error", err, "email", email)
		}
		return nil, "", fmt.Errorf("failed to register user: %w", err)
	}

	token, err := s.jwt.GenerateToken(ctx, user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue token: %w", err)
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return user, token, nil
}

// Login verifies the credentials and returns the user with a signed access
// token. Unknown email and wrong password are indistinguishable to callers.
func (s *UserService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, "", auth.ErrInvalidCredentials
		}
		s.logger.Error("failed to look up user for login", "error", err)
		return nil, "", fmt.Errorf("failed to look up user: %w", err)
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return nil, "", auth.ErrInvalidCredentials
	}

	token, err := s.jwt.GenerateToken(ctx, user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue token: %w", err)
	}

	s.logger.Debug("user logged in", "user_id", user.ID)
	return user, token, nil
}

// GetUser retrieves a user by their ID.
func (s *UserService) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve user: %w", err)
	}
	return user, nil
}

// createUser writes the user, transactionally when a database handle exists.
func (s *UserService) createUser(ctx context.Context, user *domain.User) error {
	if s.db == nil {
		return s.users.Create(ctx, user)
	}

	return store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		return s.users.WithTx(tx).Create(ctx, user)
	})
}
