// Package models defines the core domain models for the storefront.
//
// # Models
//
//   - User: a registered account, either a Client or an Admin
//   - Product, Category: the catalog, linked many-to-many
//   - Cart, CartLine: a user's shopping cart and its product lines
//
// # Cart lifecycle
//
// A user has at most one open cart (PaidAt == nil) at any time. The open
// cart is created lazily on the first mutating cart action, filled through
// line mutations and sealed by checkout, which sets PaidAt. A paid cart is
// immutable; the next mutating action allocates a fresh open cart.
//
// # Conventions
//
//  1. IDs are UUID strings assigned by the store
//  2. Timestamps are Unix seconds
//  3. Money is a decimal.Decimal, never a float
//  4. Relationships are expressed with ID strings, not pointers
package models
