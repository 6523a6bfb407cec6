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

const cartColumns = "id, user_id, created_at, paid_at"

func scanCart(row interface{ Scan(...any) error }) (*models.Cart, error) {
	cart := &models.Cart{}
	var paidAt sql.NullInt64
	if err := row.Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &paidAt); err != nil {
		return nil, err
	}
	if paidAt.Valid {
		v := paidAt.Int64
		cart.PaidAt = &v
	}
	return cart, nil
}

// FindOpenCart returns the user's unpaid cart. The partial unique index on
// carts(user_id) guarantees there is at most one.
func (t *txn) FindOpenCart(ctx context.Context, userID string) (*models.Cart, error) {
	cart, err := scanCart(t.queryRow(ctx,
		"SELECT "+cartColumns+" FROM carts WHERE user_id = ? AND paid_at IS NULL", userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("open cart for user %s: %w", userID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open cart: %w", err)
	}
	return cart, nil
}

// CreateCart inserts a new open cart.
func (t *txn) CreateCart(ctx context.Context, cart *models.Cart) error {
	if cart.ID == "" {
		cart.ID = uuid.New().String()
	}
	if cart.CreatedAt == 0 {
		cart.CreatedAt = time.Now().Unix()
	}
	cart.PaidAt = nil

	if _, err := t.exec(ctx,
		"INSERT INTO carts (id, user_id, created_at, paid_at) VALUES (?, ?, ?, NULL)",
		cart.ID, cart.UserID, cart.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create cart: %w", err)
	}
	return nil
}

// GetCart retrieves a cart by ID.
func (t *txn) GetCart(ctx context.Context, id string) (*models.Cart, error) {
	return t.getCart(ctx, "SELECT "+cartColumns+" FROM carts WHERE id = ?", id)
}

// LockCart retrieves a cart and locks its row for the rest of the
// transaction.
func (t *txn) LockCart(ctx context.Context, id string) (*models.Cart, error) {
	return t.getCart(ctx, "SELECT "+cartColumns+" FROM carts WHERE id = ?"+t.dialect.ForUpdate, id)
}

func (t *txn) getCart(ctx context.Context, query, id string) (*models.Cart, error) {
	cart, err := scanCart(t.queryRow(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cart %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return cart, nil
}

// MarkPaid seals an open cart.
func (t *txn) MarkPaid(ctx context.Context, id string, paidAt int64) (bool, error) {
	res, err := t.exec(ctx,
		"UPDATE carts SET paid_at = ? WHERE id = ? AND paid_at IS NULL", paidAt, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark cart paid: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteCart removes a cart and its lines.
func (t *txn) DeleteCart(ctx context.Context, id string) (bool, error) {
	if _, err := t.exec(ctx, "DELETE FROM cart_lines WHERE cart_id = ?", id); err != nil {
		return false, fmt.Errorf("failed to delete cart lines: %w", err)
	}
	res, err := t.exec(ctx, "DELETE FROM carts WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete cart: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListPaidCarts returns all paid carts, most recently paid first.
func (t *txn) ListPaidCarts(ctx context.Context) ([]models.Cart, error) {
	rows, err := t.query(ctx,
		"SELECT "+cartColumns+" FROM carts WHERE paid_at IS NOT NULL ORDER BY paid_at DESC, created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list paid carts: %w", err)
	}
	defer rows.Close()

	var carts []models.Cart
	for rows.Next() {
		cart, err := scanCart(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart: %w", err)
		}
		carts = append(carts, *cart)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating carts: %w", err)
	}
	return carts, nil
}

// SetLineQuantity upserts the line with an absolute quantity.
func (t *txn) SetLineQuantity(ctx context.Context, cartID, productID string, quantity int) error {
	if _, err := t.exec(ctx,
		`INSERT INTO cart_lines (id, cart_id, product_id, quantity) VALUES (?, ?, ?, ?)
		 ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = excluded.quantity`,
		uuid.New().String(), cartID, productID, quantity,
	); err != nil {
		return fmt.Errorf("failed to set line quantity: %w", err)
	}
	return nil
}

// IncrementLine adds one unit in a single statement so concurrent
// increments never lose an update.
func (t *txn) IncrementLine(ctx context.Context, cartID, productID string) (int, error) {
	var quantity int
	err := t.queryRow(ctx,
		`INSERT INTO cart_lines (id, cart_id, product_id, quantity) VALUES (?, ?, ?, 1)
		 ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = cart_lines.quantity + 1
		 RETURNING quantity`,
		uuid.New().String(), cartID, productID,
	).Scan(&quantity)
	if err != nil {
		return 0, fmt.Errorf("failed to increment line: %w", t.dialect.wrap(err))
	}
	return quantity, nil
}

// DeleteLine removes a line from the cart.
func (t *txn) DeleteLine(ctx context.Context, cartID, productID string) (bool, error) {
	res, err := t.exec(ctx, "DELETE FROM cart_lines WHERE cart_id = ? AND product_id = ?", cartID, productID)
	if err != nil {
		return false, fmt.Errorf("failed to delete line: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListLineDetails returns the cart's lines with current product data,
// ordered by product name.
func (t *txn) ListLineDetails(ctx context.Context, cartID string) ([]models.LineDetail, error) {
	rows, err := t.query(ctx,
		`SELECT l.id, l.cart_id, l.product_id, l.quantity,
		        p.id, p.name, p.price, p.image, p.description, p.created_at
		 FROM cart_lines l
		 JOIN products p ON p.id = l.product_id
		 WHERE l.cart_id = ?
		 ORDER BY p.name, l.id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart lines: %w", err)
	}
	defer rows.Close()

	var details []models.LineDetail
	for rows.Next() {
		var d models.LineDetail
		if err := rows.Scan(
			&d.Line.ID, &d.Line.CartID, &d.Line.ProductID, &d.Line.Quantity,
			&d.Product.ID, &d.Product.Name, &d.Product.Price, &d.Product.Image, &d.Product.Description, &d.Product.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart lines: %w", err)
	}
	return details, nil
}

// SumQuantities returns the number of items in the cart.
func (t *txn) SumQuantities(ctx context.Context, cartID string) (int, error) {
	var total int
	if err := t.queryRow(ctx,
		"SELECT COALESCE(SUM(quantity), 0) FROM cart_lines WHERE cart_id = ?", cartID,
	).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum quantities: %w", err)
	}
	return total, nil
}
