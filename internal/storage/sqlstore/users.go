package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/storefront/internal/models"
	"github.com/mmynk/storefront/internal/storage"
)

const userColumns = "id, username, email, password_hash, role, created_at"

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	user := &models.User{}
	var role string
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&role,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}
	user.Role = models.Role(role)
	return user, nil
}

// CreateUser inserts a new user into the database.
func (t *txn) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt == 0 {
		user.CreatedAt = time.Now().Unix()
	}
	if user.Role == "" {
		user.Role = models.RoleClient
	}

	_, err := t.exec(ctx,
		`INSERT INTO users (id, username, email, password_hash, role, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.PasswordHash, string(user.Role), user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (t *txn) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := scanUser(t.queryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return user, nil
}

// GetUserByLogin retrieves a user by username or email.
func (t *txn) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	user, err := scanUser(t.queryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = ? OR username = ? ORDER BY created_at LIMIT 1",
		login, login))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", login, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by login: %w", err)
	}
	return user, nil
}

// GetUsersByIDs retrieves multiple users by their IDs.
// Users that don't exist are omitted from the result.
func (t *txn) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error) {
	users := make(map[string]*models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := t.query(ctx,
		"SELECT "+userColumns+" FROM users WHERE id IN ("+placeholders(len(ids))+")",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get users by IDs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users[user.ID] = user
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// SetUserRole changes the user's role.
func (t *txn) SetUserRole(ctx context.Context, id string, role models.Role) error {
	res, err := t.exec(ctx, "UPDATE users SET role = ? WHERE id = ?", string(role), id)
	if err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// UpdateUser saves the user's username and email.
func (t *txn) UpdateUser(ctx context.Context, user *models.User) error {
	res, err := t.exec(ctx, "UPDATE users SET username = ?, email = ? WHERE id = ?",
		user.Username, user.Email, user.ID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", user.ID, storage.ErrNotFound)
	}
	return nil
}

// SetPasswordHash replaces the user's password hash.
func (t *txn) SetPasswordHash(ctx context.Context, id, hash string) error {
	res, err := t.exec(ctx, "UPDATE users SET password_hash = ? WHERE id = ?", hash, id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// DeleteUser removes the user, their carts and the carts' lines.
func (t *txn) DeleteUser(ctx context.Context, id string) error {
	if _, err := t.exec(ctx,
		"DELETE FROM cart_lines WHERE cart_id IN (SELECT id FROM carts WHERE user_id = ?)", id); err != nil {
		return fmt.Errorf("failed to delete user cart lines: %w", err)
	}
	if _, err := t.exec(ctx, "DELETE FROM carts WHERE user_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete user carts: %w", err)
	}
	res, err := t.exec(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// CountAdmins returns the number of users with the Admin role.
func (t *txn) CountAdmins(ctx context.Context) (int, error) {
	var n int
	if err := t.queryRow(ctx, "SELECT COUNT(*) FROM users WHERE role = ?", string(models.RoleAdmin)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return n, nil
}
