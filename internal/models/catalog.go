package models

import "github.com/shopspring/decimal"

// Product is a catalog entry that can be placed in carts.
type Product struct {
	// ID is the unique identifier for the product (UUID format).
	ID string

	// Name is the display name of the product.
	Name string

	// Price is the current unit price. Carts are always priced with the
	// price at read time, never a snapshot taken when the line was added.
	Price decimal.Decimal

	// Image is an opaque reference to the product image (URL or file name).
	Image string

	// Description is free-form product text.
	Description string

	// CategoryIDs lists the categories the product belongs to.
	CategoryIDs []string

	// CreatedAt is the Unix timestamp when the product was created.
	CreatedAt int64
}

// Category groups products.
type Category struct {
	ID   string
	Name string
}
