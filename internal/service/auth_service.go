package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/mmynk/storefront/internal/apperr"
	"github.com/mmynk/storefront/internal/auth"
	"github.com/mmynk/storefront/internal/models"
	"github.com/mmynk/storefront/internal/storage"
)

var errUserAbsent = apperr.NotFound(apperr.CodeUserNotFound, "user not found")

// TokenIssuer signs session tokens for authenticated users.
type TokenIssuer interface {
	Generate(user *models.User) (string, error)
}

// AuthService handles accounts: registration, login and role management.
type AuthService struct {
	store         storage.Store
	authenticator auth.Authenticator
	tokens        TokenIssuer
	logger        *slog.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(store storage.Store, authenticator auth.Authenticator, tokens TokenIssuer, logger *slog.Logger) *AuthService {
	return &AuthService{
		store:         store,
		authenticator: authenticator,
		tokens:        tokens,
		logger:        logger,
	}
}

// Register creates a new Client account.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	s.logger.Info("Register request", "username", username, "email", email)

	// Validate input
	if strings.TrimSpace(username) == "" {
		return nil, apperr.Invalid(apperr.CodeInvalidInput, "username is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Invalid(apperr.CodeInvalidInput, "a valid email is required")
	}

	user, err := s.authenticator.Register(ctx, username, email, password)
	switch {
	case errors.Is(err, auth.ErrEmailExists):
		return nil, apperr.Conflict(apperr.CodeEmailTaken, err.Error())
	case errors.Is(err, auth.ErrWeakPassword):
		return nil, apperr.Invalid(apperr.CodeInvalidInput, err.Error())
	case err != nil:
		return nil, apperr.Internal("register user", err)
	}

	s.logger.Info("User registered successfully", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// Login authenticates a user by username or email and returns a token.
func (s *AuthService) Login(ctx context.Context, login, password string) (string, *models.User, error) {
	s.logger.Info("Login request", "login", login)

	if login == "" || password == "" {
		return "", nil, apperr.Invalid(apperr.CodeInvalidInput, auth.ErrInvalidCredentials.Error())
	}

	user, err := s.authenticator.Authenticate(ctx, login, password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		s.logger.Warn("Login failed", "login", login)
		return "", nil, apperr.Unauthorized(auth.ErrInvalidCredentials.Error())
	}
	if err != nil {
		return "", nil, apperr.Internal("authenticate", err)
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		return "", nil, apperr.Internal("generate token", err)
	}

	s.logger.Info("User logged in successfully", "user_id", user.ID)
	return token, user, nil
}

// IsUserAdmin reports whether the user currently holds the Admin role.
// The role is read from the store, so promotions and demotions apply to
// tokens issued earlier.
func (s *AuthService) IsUserAdmin(ctx context.Context, userID string) (bool, error) {
	var user *models.User
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		user, err = tx.GetUser(ctx, userID)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.IsAdmin(), nil
}

// GetUser returns an account by ID.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user *models.User
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		user, err = tx.GetUser(ctx, userID)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errUserAbsent
	}
	if err != nil {
		return nil, classify("get user", err)
	}
	return user, nil
}

// SetRole promotes or demotes a user. The last admin cannot be demoted.
func (s *AuthService) SetRole(ctx context.Context, userID string, role models.Role) error {
	if !role.Valid() {
		return apperr.Invalid(apperr.CodeInvalidInput, "unknown role")
	}

	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if user.Role == role {
			return nil
		}
		if user.IsAdmin() {
			if err := requireAnotherAdmin(ctx, tx); err != nil {
				return err
			}
		}
		return tx.SetUserRole(ctx, userID, role)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return errUserAbsent
	}
	if err != nil {
		return classify("set role", err)
	}

	s.logger.Info("User role changed", "user_id", userID, "role", role)
	return nil
}

// DeleteUser removes an account and its carts. Users may delete
// themselves; admins may delete anyone.
func (s *AuthService) DeleteUser(ctx context.Context, actorID, userID string) error {
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		if err := requireSelfOrAdmin(ctx, tx, actorID, userID); err != nil {
			return err
		}

		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if user.IsAdmin() {
			if err := requireAnotherAdmin(ctx, tx); err != nil {
				return err
			}
		}
		return tx.DeleteUser(ctx, userID)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return errUserAbsent
	}
	if err != nil {
		return classify("delete user", err)
	}

	s.logger.Info("User deleted", "user_id", userID, "by", actorID)
	return nil
}

// UserUpdate holds the editable account fields. Empty fields are left
// unchanged.
type UserUpdate struct {
	Username string
	Email    string
}

// ModifyUser changes a user's username or email. Users may edit
// themselves; admins may edit anyone.
func (s *AuthService) ModifyUser(ctx context.Context, actorID, userID string, in UserUpdate) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, apperr.Invalid(apperr.CodeInvalidInput, "a valid email is required")
		}
	}

	var user *models.User
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		if err := requireSelfOrAdmin(ctx, tx, actorID, userID); err != nil {
			return err
		}

		var err error
		if user, err = tx.GetUser(ctx, userID); err != nil {
			return err
		}
		if username != "" {
			user.Username = username
		}
		if email != "" {
			user.Email = email
		}
		return tx.UpdateUser(ctx, user)
	})
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, errUserAbsent
	case errors.Is(err, storage.ErrConflict):
		return nil, apperr.Conflict(apperr.CodeEmailTaken, auth.ErrEmailExists.Error())
	case err != nil:
		return nil, classify("modify user", err)
	}

	s.logger.Info("User modified", "user_id", userID, "by", actorID)
	return user, nil
}

// ChangePassword replaces the caller's own password. The current password
// must match and the new one must be entered twice.
func (s *AuthService) ChangePassword(ctx context.Context, actorID, userID, current, next, confirm string) error {
	if actorID != userID {
		return apperr.Forbidden("users can only change their own password")
	}
	if next != confirm {
		return apperr.Invalid(apperr.CodeInvalidInput, "new passwords do not match")
	}

	err := s.authenticator.ChangeCredential(ctx, userID, current, next)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return apperr.Invalid(apperr.CodeInvalidInput, "current password is incorrect")
	case errors.Is(err, auth.ErrWeakPassword):
		return apperr.Invalid(apperr.CodeInvalidInput, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		return errUserAbsent
	case err != nil:
		return apperr.Internal("change password", err)
	}

	s.logger.Info("Password changed", "user_id", userID)
	return nil
}

func requireSelfOrAdmin(ctx context.Context, tx storage.Tx, actorID, userID string) error {
	if actorID == userID {
		return nil
	}
	actor, err := tx.GetUser(ctx, actorID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if !actor.IsAdmin() {
		return apperr.Forbidden("only admins can change other users")
	}
	return nil
}

func requireAnotherAdmin(ctx context.Context, tx storage.Tx) error {
	n, err := tx.CountAdmins(ctx)
	if err != nil {
		return err
	}
	if n <= 1 {
		return apperr.Conflict(apperr.CodeLastAdmin, "cannot remove the last admin")
	}
	return nil
}

// EnsureAdmin makes sure an admin account exists for email, registering it
// with password if needed. Used to bootstrap a fresh database.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) (*models.User, error) {
	username, _, _ := strings.Cut(email, "@")

	user, err := s.authenticator.Register(ctx, username, email, password)
	if errors.Is(err, auth.ErrEmailExists) {
		err = s.store.View(ctx, func(tx storage.Tx) error {
			var err error
			user, err = tx.GetUserByLogin(ctx, strings.ToLower(email))
			return err
		})
	}
	if err != nil {
		return nil, apperr.Internal("bootstrap admin", err)
	}

	if !user.IsAdmin() {
		if err := s.store.InTx(ctx, func(tx storage.Tx) error {
			return tx.SetUserRole(ctx, user.ID, models.RoleAdmin)
		}); err != nil {
			return nil, apperr.Internal("bootstrap admin", err)
		}
		user.Role = models.RoleAdmin
		s.logger.Info("Admin account ready", "user_id", user.ID, "email", user.Email)
	}
	return user, nil
}
