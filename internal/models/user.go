package models

// Role is the authorization level of a user.
type Role string

const (
	RoleClient Role = "Client"
	RoleAdmin  Role = "Admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleAdmin
}

// User represents a registered storefront account.
type User struct {
	// ID is the unique identifier for the user (UUID format).
	ID string

	// Username is the public handle. Login accepts username or email.
	Username string

	// Email is the user's email address (unique).
	Email string

	// PasswordHash is the bcrypt hash of the user's password.
	// Never serialized to clients.
	PasswordHash string

	// Role is Client for shoppers and Admin for back-office users.
	Role Role

	// CreatedAt is the Unix timestamp when the account was created.
	CreatedAt int64
}

// IsAdmin reports whether the user holds the Admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
