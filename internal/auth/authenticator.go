package auth

import (
	"context"

	"github.com/mmynk/storefront/internal/models"
)

// Authenticator defines the interface for authentication implementations.
// This abstraction allows swapping between different auth methods (password, OAuth, etc.)
// without changing the service layer code.
type Authenticator interface {
	// Register creates a new Client account with the given username, email
	// and credential. Returns ErrEmailExists when the email is taken.
	Register(ctx context.Context, username, email, credential string) (*models.User, error)

	// Authenticate verifies the credential for a username or email and
	// returns the user if successful.
	Authenticate(ctx context.Context, login, credential string) (*models.User, error)

	// ChangeCredential replaces the user's credential after checking the
	// current one. Returns ErrInvalidCredentials when current does not match.
	ChangeCredential(ctx context.Context, userID, current, next string) error

	// ValidateCredential checks if the credential meets the implementation's requirements.
	ValidateCredential(credential string) error
}

// TokenVerifier checks bearer tokens presented by clients.
type TokenVerifier interface {
	Verify(token string) (*Claims, error)
}
