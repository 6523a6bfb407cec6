package models

// Cart is a user's shopping cart.
//
// A cart is open while PaidAt is nil. Once PaidAt is set the cart is
// terminal: its lines can no longer change.
type Cart struct {
	// ID is the unique identifier for the cart (UUID format).
	ID string

	// UserID is the owner of the cart.
	UserID string

	// CreatedAt is the Unix timestamp when the cart was created.
	CreatedAt int64

	// PaidAt is the Unix timestamp of checkout, nil while the cart is open.
	PaidAt *int64
}

// IsOpen reports whether the cart can still be mutated.
func (c *Cart) IsOpen() bool {
	return c.PaidAt == nil
}

// MaxLineQuantity is the largest quantity a cart line can hold. It is
// the range of the INTEGER quantity column.
const MaxLineQuantity = 1<<31 - 1

// CartLine associates a product and a quantity with a cart.
// (CartID, ProductID) is unique and Quantity is always at least 1.
type CartLine struct {
	ID        string
	CartID    string
	ProductID string
	Quantity  int
}

// LineDetail is a cart line joined with the product it references.
type LineDetail struct {
	Line    CartLine
	Product Product
}
