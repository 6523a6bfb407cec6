// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/storefront/internal/models"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write violates a unique constraint,
	// e.g. a second open cart for the same user or a duplicate email.
	ErrConflict = errors.New("unique constraint conflict")
)

// Store is the entry point to the database. Every multi-statement
// operation runs through InTx so that it commits or rolls back as a unit.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL)
// without changing the service layer.
type Store interface {
	// InTx runs fn in a read-write transaction. The transaction commits
	// when fn returns nil and rolls back otherwise, including when ctx is
	// cancelled.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// View runs fn in a transaction used only for reads. It gives a
	// consistent snapshot on backends that support it.
	View(ctx context.Context, fn func(tx Tx) error) error

	// Ping checks that the database is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Tx is the set of operations available inside a transaction.
type Tx interface {
	UserStore
	CatalogStore
	CartStore
}

// UserStore persists accounts.
type UserStore interface {
	// CreateUser inserts a user, assigning ID and CreatedAt when empty.
	// Returns ErrConflict when the email is taken.
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	// GetUserByLogin finds a user by username or email.
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	// GetUsersByIDs returns the users that exist among ids, keyed by ID.
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)
	SetUserRole(ctx context.Context, id string, role models.Role) error
	// UpdateUser saves the username and email. Returns ErrConflict when
	// the email belongs to another account.
	UpdateUser(ctx context.Context, user *models.User) error
	SetPasswordHash(ctx context.Context, id, hash string) error
	// DeleteUser removes the user and, by cascade, their carts.
	DeleteUser(ctx context.Context, id string) error
	CountAdmins(ctx context.Context) (int, error)
}

// CatalogStore persists products and categories.
type CatalogStore interface {
	CreateProduct(ctx context.Context, product *models.Product) error
	UpdateProduct(ctx context.Context, product *models.Product) error
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	// DeleteProduct removes the product together with its cart lines and
	// category links.
	DeleteProduct(ctx context.Context, id string) error

	CreateCategory(ctx context.Context, category *models.Category) error
	UpdateCategory(ctx context.Context, category *models.Category) error
	GetCategory(ctx context.Context, id string) (*models.Category, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	DeleteCategory(ctx context.Context, id string) error
}

// CartStore persists carts and their lines.
type CartStore interface {
	// FindOpenCart returns the user's unpaid cart or ErrNotFound.
	FindOpenCart(ctx context.Context, userID string) (*models.Cart, error)
	// CreateCart inserts an open cart. Returns ErrConflict if the user
	// already has one.
	CreateCart(ctx context.Context, cart *models.Cart) error
	GetCart(ctx context.Context, id string) (*models.Cart, error)
	// LockCart reads the cart and holds a write lock on it until the
	// transaction ends.
	LockCart(ctx context.Context, id string) (*models.Cart, error)
	// MarkPaid sets paid_at on an open cart. Reports false when the cart
	// was not open.
	MarkPaid(ctx context.Context, id string, paidAt int64) (bool, error)
	// DeleteCart removes the cart and its lines. Reports false when absent.
	DeleteCart(ctx context.Context, id string) (bool, error)
	// ListPaidCarts returns every paid cart, most recent payment first.
	ListPaidCarts(ctx context.Context) ([]models.Cart, error)

	// SetLineQuantity creates the line or overwrites its quantity.
	SetLineQuantity(ctx context.Context, cartID, productID string, quantity int) error
	// IncrementLine adds one to the line, creating it with quantity 1,
	// and returns the resulting quantity.
	IncrementLine(ctx context.Context, cartID, productID string) (int, error)
	// DeleteLine removes the line. Reports false when it did not exist.
	DeleteLine(ctx context.Context, cartID, productID string) (bool, error)
	// ListLineDetails returns the cart's lines joined with their products.
	ListLineDetails(ctx context.Context, cartID string) ([]models.LineDetail, error)
	// SumQuantities returns the total number of items in the cart.
	SumQuantities(ctx context.Context, cartID string) (int, error)
}
