package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mmynk/storefront/internal/apperr"
	"github.com/mmynk/storefront/internal/metrics"
	"github.com/mmynk/storefront/internal/models"
	"github.com/mmynk/storefront/internal/pricing"
	"github.com/mmynk/storefront/internal/storage"
)

// maxResolveAttempts bounds retries when concurrent requests race to
// create the same user's open cart.
const maxResolveAttempts = 3

// errCartRaced is returned inside a transaction when the open cart was
// sealed between lookup and lock. The resolve loop retries on it.
var errCartRaced = errors.New("open cart sealed concurrently")

// CartService owns the cart lifecycle: resolving the open cart, mutating
// its lines, pricing and checkout.
type CartService struct {
	store   storage.Store
	policy  pricing.Policy
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewCartService creates a cart service. m may be nil.
func NewCartService(store storage.Store, policy pricing.Policy, logger *slog.Logger, m *metrics.Metrics) *CartService {
	return &CartService{
		store:   store,
		policy:  policy,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// CartSummary is the user's open cart priced at read time.
type CartSummary struct {
	// Cart is nil when the user has no open cart.
	Cart  *models.Cart
	Lines []models.LineDetail
	Quote pricing.Quote
}

// Policy returns the discount policy used for pricing.
func (s *CartService) Policy() pricing.Policy {
	return s.policy
}

// ResolveOpenCart returns the ID of the user's open cart, creating it if
// needed. It never returns a paid cart.
func (s *CartService) ResolveOpenCart(ctx context.Context, userID string) (string, error) {
	cart, err := s.withOpenCart(ctx, userID, nil)
	if err != nil {
		return "", err
	}
	return cart.ID, nil
}

// OpenCart returns the user's open cart without creating one.
func (s *CartService) OpenCart(ctx context.Context, userID string) (*models.Cart, bool, error) {
	var cart *models.Cart
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		cart, err = tx.FindOpenCart(ctx, userID)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Internal("find open cart", err)
	}
	return cart, true, nil
}

// withOpenCart finds or creates the user's open cart, locks it and runs fn
// in the same transaction. A lost creation race is retried so the caller
// ends up on the winner's cart.
func (s *CartService) withOpenCart(ctx context.Context, userID string, fn func(tx storage.Tx, cart *models.Cart) error) (*models.Cart, error) {
	for attempt := 1; ; attempt++ {
		var cart *models.Cart
		created := false

		err := s.store.InTx(ctx, func(tx storage.Tx) error {
			found, err := tx.FindOpenCart(ctx, userID)
			switch {
			case errors.Is(err, storage.ErrNotFound):
				if _, err := tx.GetUser(ctx, userID); err != nil {
					if errors.Is(err, storage.ErrNotFound) {
						return apperr.NotFound(apperr.CodeUserNotFound, "user not found")
					}
					return err
				}
				found = &models.Cart{UserID: userID, CreatedAt: s.now().Unix()}
				if err := tx.CreateCart(ctx, found); err != nil {
					return err
				}
				created = true
			case err != nil:
				return err
			default:
				locked, err := tx.LockCart(ctx, found.ID)
				if err != nil {
					return err
				}
				if !locked.IsOpen() {
					return errCartRaced
				}
				found = locked
			}

			cart = found
			if fn == nil {
				return nil
			}
			return fn(tx, found)
		})

		if (errors.Is(err, storage.ErrConflict) || errors.Is(err, errCartRaced)) && attempt < maxResolveAttempts {
			s.metrics.OpenCartConflict()
			s.logger.Debug("Open cart race, retrying", "user_id", userID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, classify("resolve open cart", err)
		}

		if created {
			s.metrics.CartCreated()
			s.logger.Info("Cart created", "cart_id", cart.ID, "user_id", userID)
		}
		return cart, nil
	}
}

// SetLineQuantity sets the quantity of a product in an open cart.
func (s *CartService) SetLineQuantity(ctx context.Context, cartID, productID string, quantity int) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}
	return s.withLockedCart(ctx, cartID, func(tx storage.Tx, cart *models.Cart) error {
		return setLine(ctx, tx, cart, productID, quantity)
	})
}

// IncrementLine adds one unit of a product to an open cart.
func (s *CartService) IncrementLine(ctx context.Context, cartID, productID string) (int, error) {
	var quantity int
	err := s.withLockedCart(ctx, cartID, func(tx storage.Tx, cart *models.Cart) error {
		var err error
		quantity, err = incrementLine(ctx, tx, cart, productID)
		return err
	})
	return quantity, err
}

// RemoveLine deletes a product from an open cart. Removing an absent line
// succeeds.
func (s *CartService) RemoveLine(ctx context.Context, cartID, productID string) error {
	return s.withLockedCart(ctx, cartID, func(tx storage.Tx, cart *models.Cart) error {
		_, err := tx.DeleteLine(ctx, cart.ID, productID)
		return err
	})
}

// Finalize seals an open, non-empty cart.
func (s *CartService) Finalize(ctx context.Context, cartID string) error {
	var cart *models.Cart
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		if cart, err = lockCart(ctx, tx, cartID); err != nil {
			return err
		}
		return s.finalizeLocked(ctx, tx, cart)
	})
	if err != nil {
		return classify("finalize cart", err)
	}
	s.finalized(cart)
	return nil
}

// withLockedCart locks an existing cart, rejects it if paid and runs fn.
func (s *CartService) withLockedCart(ctx context.Context, cartID string, fn func(tx storage.Tx, cart *models.Cart) error) error {
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		cart, err := lockCart(ctx, tx, cartID)
		if err != nil {
			return err
		}
		if !cart.IsOpen() {
			return apperr.ErrCartSealed
		}
		return fn(tx, cart)
	})
	if err != nil {
		return classify("update cart", err)
	}
	return nil
}

func lockCart(ctx context.Context, tx storage.Tx, cartID string) (*models.Cart, error) {
	cart, err := tx.LockCart(ctx, cartID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.ErrCartNotFound
	}
	return cart, err
}

func (s *CartService) finalizeLocked(ctx context.Context, tx storage.Tx, cart *models.Cart) error {
	if !cart.IsOpen() {
		return apperr.ErrCartSealed
	}
	total, err := tx.SumQuantities(ctx, cart.ID)
	if err != nil {
		return err
	}
	if total == 0 {
		return apperr.ErrEmptyCart
	}
	ok, err := tx.MarkPaid(ctx, cart.ID, s.now().Unix())
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrCartSealed
	}
	return nil
}

func (s *CartService) finalized(cart *models.Cart) {
	s.metrics.CartFinalized()
	s.logger.Info("Cart finalized", "cart_id", cart.ID, "user_id", cart.UserID)
}

func validateQuantity(quantity int) error {
	switch {
	case quantity < 1:
		return apperr.ErrInvalidQuantity
	case quantity > models.MaxLineQuantity:
		return apperr.ErrQuantityTooLarge
	}
	return nil
}

func setLine(ctx context.Context, tx storage.Tx, cart *models.Cart, productID string, quantity int) error {
	if err := requireProduct(ctx, tx, productID); err != nil {
		return err
	}
	return tx.SetLineQuantity(ctx, cart.ID, productID, quantity)
}

func incrementLine(ctx context.Context, tx storage.Tx, cart *models.Cart, productID string) (int, error) {
	if err := requireProduct(ctx, tx, productID); err != nil {
		return 0, err
	}
	return tx.IncrementLine(ctx, cart.ID, productID)
}

func requireProduct(ctx context.Context, tx storage.Tx, productID string) error {
	_, err := tx.GetProduct(ctx, productID)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.ErrProductNotFound
	}
	return err
}

// PriceCart prices a cart with current product prices.
func (s *CartService) PriceCart(ctx context.Context, cartID string) (pricing.Quote, error) {
	var quote pricing.Quote
	err := s.store.View(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetCart(ctx, cartID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperr.ErrCartNotFound
			}
			return err
		}
		lines, err := tx.ListLineDetails(ctx, cartID)
		if err != nil {
			return err
		}
		quote = s.quote(lines)
		return nil
	})
	if err != nil {
		return pricing.Quote{}, classify("price cart", err)
	}
	return quote, nil
}

func (s *CartService) quote(lines []models.LineDetail) pricing.Quote {
	priced := make([]pricing.Line, len(lines))
	for i, l := range lines {
		priced[i] = pricing.Line{UnitPrice: l.Product.Price, Quantity: l.Line.Quantity}
	}
	return s.policy.Price(priced)
}

// The methods below are keyed by user and back the /cart routes. Mutations
// resolve (and if needed create) the open cart in the same transaction.

// AffectProduct sets the quantity of a product in the user's open cart.
func (s *CartService) AffectProduct(ctx context.Context, userID, productID string, quantity int) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}
	_, err := s.withOpenCart(ctx, userID, func(tx storage.Tx, cart *models.Cart) error {
		return setLine(ctx, tx, cart, productID, quantity)
	})
	return err
}

// IncreaseProduct adds one unit of a product to the user's open cart.
func (s *CartService) IncreaseProduct(ctx context.Context, userID, productID string) (int, error) {
	var quantity int
	_, err := s.withOpenCart(ctx, userID, func(tx storage.Tx, cart *models.Cart) error {
		var err error
		quantity, err = incrementLine(ctx, tx, cart, productID)
		return err
	})
	return quantity, err
}

// RemoveProduct deletes a product from the user's open cart. A user with
// no open cart has nothing to remove, so this succeeds without creating one.
func (s *CartService) RemoveProduct(ctx context.Context, userID, productID string) error {
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		cart, err := tx.FindOpenCart(ctx, userID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if cart, err = lockCart(ctx, tx, cart.ID); err != nil {
			return err
		}
		if !cart.IsOpen() {
			// Sealed after lookup; the paid cart keeps its lines and
			// there is no open cart to remove from.
			return nil
		}
		_, err = tx.DeleteLine(ctx, cart.ID, productID)
		return err
	})
	if err != nil {
		return classify("remove product", err)
	}
	return nil
}

// FinalizeForUser seals the user's open cart. A user without an open cart
// has nothing to pay for.
func (s *CartService) FinalizeForUser(ctx context.Context, userID string) (string, error) {
	var cart *models.Cart
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		found, err := tx.FindOpenCart(ctx, userID)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.ErrEmptyCart
		}
		if err != nil {
			return err
		}
		if cart, err = lockCart(ctx, tx, found.ID); err != nil {
			return err
		}
		return s.finalizeLocked(ctx, tx, cart)
	})
	if err != nil {
		return "", classify("pay cart", err)
	}
	s.finalized(cart)
	return cart.ID, nil
}

// CartDetails returns the user's open cart with its lines and quote. A
// user without an open cart gets an empty summary; no cart is created.
func (s *CartService) CartDetails(ctx context.Context, userID string) (*CartSummary, error) {
	summary := &CartSummary{}
	err := s.store.View(ctx, func(tx storage.Tx) error {
		cart, err := tx.FindOpenCart(ctx, userID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		lines, err := tx.ListLineDetails(ctx, cart.ID)
		if err != nil {
			return err
		}
		summary.Cart = cart
		summary.Lines = lines
		return nil
	})
	if err != nil {
		return nil, classify("cart details", err)
	}
	summary.Quote = s.quote(summary.Lines)
	return summary, nil
}

// TotalProducts returns the number of items in the user's open cart.
func (s *CartService) TotalProducts(ctx context.Context, userID string) (int, error) {
	var total int
	err := s.store.View(ctx, func(tx storage.Tx) error {
		cart, err := tx.FindOpenCart(ctx, userID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		total, err = tx.SumQuantities(ctx, cart.ID)
		return err
	})
	if err != nil {
		return 0, classify("count cart products", err)
	}
	return total, nil
}

// DeleteCart removes a cart and its lines. Admin only.
func (s *CartService) DeleteCart(ctx context.Context, cartID string) error {
	var deleted bool
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		deleted, err = tx.DeleteCart(ctx, cartID)
		return err
	})
	if err != nil {
		return classify("delete cart", err)
	}
	if !deleted {
		return apperr.ErrCartNotFound
	}
	s.logger.Info("Cart deleted", "cart_id", cartID)
	return nil
}

// classify passes business errors through and wraps anything else as an
// internal failure.
func classify(op string, err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Internal(op, err)
}
