package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/attendance-tracker/internal/persistence"
)

// UserRepository captures the persistence operations needed by the user service.
type UserRepository interface {
	CreateUser(ctx context.Context, user persistence.User) error
	EnsureUser(ctx context.Context, user persistence.User) (persistence.User, error)
	GetUser(ctx context.Context, id string) (persistence.User, error)
	GetUserByUsername(ctx context.Context, username string) (persistence.User, error)
}

// UserService records identities handed over by the identity provider.
type UserService struct {
	users       UserRepository
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewUserService wires dependencies for the user service. A nil idGenerator
// produces random UUIDs.
func NewUserService(users UserRepository, idGenerator func() string, now func() time.Time) *UserService {
	return NewUserServiceWithLogger(users, idGenerator, now, nil)
}

// NewUserServiceWithLogger wires dependencies for the user service with a specified logger.
func NewUserServiceWithLogger(users UserRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *UserService {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &UserService{users: users, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *UserService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "UserService", operation, attrs...)
}

// Register creates a user with a fresh id. Usernames are unique ignoring case.
func (s *UserService) Register(ctx context.Context, input RegisterUserInput) (user persistence.User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}

	normalized := RegisterUserInput{
		Username:    strings.TrimSpace(input.Username),
		DisplayName: strings.TrimSpace(input.DisplayName),
	}
	logger := s.loggerWith(ctx, "Register", "username", normalized.Username)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to register user", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", user.ID).InfoContext(ctx, "user registered")
	}()

	if vErr := validateStruct(normalized); vErr.HasErrors() {
		err = vErr
		return
	}

	if _, lookupErr := s.users.GetUserByUsername(ctx, normalized.Username); lookupErr == nil {
		err = fmt.Errorf("%w: username %q is taken", ErrConflict, normalized.Username)
		return
	} else if !errors.Is(lookupErr, persistence.ErrNotFound) {
		err = mapRepoError(lookupErr)
		return
	}

	displayName := normalized.DisplayName
	if displayName == "" {
		displayName = normalized.Username
	}
	username := normalized.Username
	user = persistence.User{
		ID:          s.idGenerator(),
		Username:    &username,
		DisplayName: displayName,
		CreatedAt:   s.now(),
	}

	if err = s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			err = fmt.Errorf("%w: username %q is taken", ErrConflict, normalized.Username)
			return
		}
		err = mapRepoError(err)
		return
	}

	user, err = s.users.GetUser(ctx, user.ID)
	err = mapRepoError(err)
	return
}

// Ensure records an identity the provider already knows, refreshing the
// display label when one is supplied.
func (s *UserService) Ensure(ctx context.Context, id, displayName string) (user persistence.User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}

	id = strings.TrimSpace(id)
	logger := s.loggerWith(ctx, "Ensure", "user_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to ensure user", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "user ensured")
	}()

	if id == "" {
		err = validationFailure("id", "id is required")
		return
	}

	user, err = s.users.EnsureUser(ctx, persistence.User{
		ID:          id,
		DisplayName: strings.TrimSpace(displayName),
		CreatedAt:   s.now(),
	})
	err = mapRepoError(err)
	return
}

// Get returns the user with the given id.
func (s *UserService) Get(ctx context.Context, id string) (persistence.User, error) {
	if s == nil {
		return persistence.User{}, fmt.Errorf("UserService is nil")
	}
	user, err := s.users.GetUser(ctx, strings.TrimSpace(id))
	if err != nil {
		return persistence.User{}, mapRepoError(err)
	}
	return user, nil
}
