package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/storefront/internal/apperr"
	"github.com/mmynk/storefront/internal/models"
	"github.com/mmynk/storefront/internal/pricing"
	"github.com/mmynk/storefront/internal/storage"
)

func TestResolveOpenCart(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice")

	t.Run("no cart is created by reads", func(t *testing.T) {
		_, found, err := env.carts.OpenCart(ctx, user.ID)
		require.NoError(t, err)
		assert.False(t, found)

		summary, err := env.carts.CartDetails(ctx, user.ID)
		require.NoError(t, err)
		assert.Nil(t, summary.Cart)
		assert.Empty(t, summary.Lines)
		assert.True(t, summary.Quote.Total.IsZero())

		total, err := env.carts.TotalProducts(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, total)

		_, found, err = env.carts.OpenCart(ctx, user.ID)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("creates once and is idempotent", func(t *testing.T) {
		first, err := env.carts.ResolveOpenCart(ctx, user.ID)
		require.NoError(t, err)
		second, err := env.carts.ResolveOpenCart(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, first, second)

		cart, found, err := env.carts.OpenCart(ctx, user.ID)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, first, cart.ID)
		assert.True(t, cart.IsOpen())
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := env.carts.ResolveOpenCart(ctx, "no-such-user")
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})
}

func TestResolveOpenCart_Concurrent(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "bob")

	const n = 20
	ids := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			id, err := env.carts.ResolveOpenCart(ctx, user.ID)
			ids[i] = id
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, id := range ids {
		assert.Equal(t, ids[0], id, "every caller must land on the same open cart")
	}
	assert.Equal(t, 1.0, env.counter(t, "storefront_carts_created_total"))
}

func TestLineMutations(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "carol")
	lamp := env.createProduct(t, "Lamp", "20")

	cartID, err := env.carts.ResolveOpenCart(ctx, user.ID)
	require.NoError(t, err)

	t.Run("set overwrites", func(t *testing.T) {
		require.NoError(t, env.carts.SetLineQuantity(ctx, cartID, lamp.ID, 4))
		require.NoError(t, env.carts.SetLineQuantity(ctx, cartID, lamp.ID, 2))

		total, err := env.carts.TotalProducts(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
	})

	t.Run("invalid quantities are rejected", func(t *testing.T) {
		for _, q := range []int{0, -1, -100} {
			err := env.carts.SetLineQuantity(ctx, cartID, lamp.ID, q)
			assert.ErrorIs(t, err, apperr.ErrInvalidQuantity, "quantity %d", q)

			err = env.carts.AffectProduct(ctx, user.ID, lamp.ID, q)
			assert.ErrorIs(t, err, apperr.ErrInvalidQuantity, "quantity %d", q)
		}

		tooLarge := models.MaxLineQuantity + 1
		assert.ErrorIs(t, env.carts.SetLineQuantity(ctx, cartID, lamp.ID, tooLarge), apperr.ErrQuantityTooLarge)
		err := env.carts.AffectProduct(ctx, user.ID, lamp.ID, tooLarge)
		assert.ErrorIs(t, err, apperr.ErrQuantityTooLarge)
		assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

		total, err := env.carts.TotalProducts(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, total, "rejected writes must not change the cart")
	})

	t.Run("increment returns the new quantity", func(t *testing.T) {
		q, err := env.carts.IncrementLine(ctx, cartID, lamp.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, q)
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		require.NoError(t, env.carts.RemoveLine(ctx, cartID, lamp.ID))
		require.NoError(t, env.carts.RemoveLine(ctx, cartID, lamp.ID))
		require.NoError(t, env.carts.RemoveProduct(ctx, user.ID, lamp.ID))

		total, err := env.carts.TotalProducts(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, total)
	})

	t.Run("unknown product and cart", func(t *testing.T) {
		assert.ErrorIs(t, env.carts.SetLineQuantity(ctx, cartID, "no-such-product", 1), apperr.ErrProductNotFound)
		_, err := env.carts.IncreaseProduct(ctx, user.ID, "no-such-product")
		assert.ErrorIs(t, err, apperr.ErrProductNotFound)

		assert.ErrorIs(t, env.carts.SetLineQuantity(ctx, "no-such-cart", lamp.ID, 1), apperr.ErrCartNotFound)
		assert.ErrorIs(t, env.carts.RemoveLine(ctx, "no-such-cart", lamp.ID), apperr.ErrCartNotFound)
		assert.ErrorIs(t, env.carts.Finalize(ctx, "no-such-cart"), apperr.ErrCartNotFound)
		_, err = env.carts.PriceCart(ctx, "no-such-cart")
		assert.ErrorIs(t, err, apperr.ErrCartNotFound)
	})

	t.Run("remove without an open cart succeeds", func(t *testing.T) {
		other := env.createUser(t, "dave")
		require.NoError(t, env.carts.RemoveProduct(ctx, other.ID, lamp.ID))
		_, found, err := env.carts.OpenCart(ctx, other.ID)
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestIncreaseProduct_Concurrent(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "erin")
	mug := env.createProduct(t, "Mug", "4.5")

	require.NoError(t, env.carts.AffectProduct(ctx, user.ID, mug.ID, 3))

	var g errgroup.Group
	for i := 0; i < 5; i++ {
		g.Go(func() error {
			_, err := env.carts.IncreaseProduct(ctx, user.ID, mug.ID)
			return err
		})
	}
	require.NoError(t, g.Wait())

	summary, err := env.carts.CartDetails(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, summary.Lines, 1)
	assert.Equal(t, 8, summary.Lines[0].Line.Quantity)
}

func TestFinalize(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "frank")
	lamp := env.createProduct(t, "Lamp", "55")

	t.Run("empty cart cannot be paid", func(t *testing.T) {
		_, err := env.carts.FinalizeForUser(ctx, user.ID)
		assert.ErrorIs(t, err, apperr.ErrEmptyCart)

		cartID, err := env.carts.ResolveOpenCart(ctx, user.ID)
		require.NoError(t, err)
		assert.ErrorIs(t, env.carts.Finalize(ctx, cartID), apperr.ErrEmptyCart)

		_, found, err := env.carts.OpenCart(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, found, "a rejected payment leaves the cart open")
	})

	require.NoError(t, env.carts.AffectProduct(ctx, user.ID, lamp.ID, 2))
	paidID, err := env.carts.FinalizeForUser(ctx, user.ID)
	require.NoError(t, err)

	t.Run("paid cart is sealed", func(t *testing.T) {
		assert.ErrorIs(t, env.carts.SetLineQuantity(ctx, paidID, lamp.ID, 5), apperr.ErrCartSealed)
		_, err := env.carts.IncrementLine(ctx, paidID, lamp.ID)
		assert.ErrorIs(t, err, apperr.ErrCartSealed)
		assert.ErrorIs(t, env.carts.RemoveLine(ctx, paidID, lamp.ID), apperr.ErrCartSealed)
		assert.ErrorIs(t, env.carts.Finalize(ctx, paidID), apperr.ErrCartSealed)
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(env.carts.Finalize(ctx, paidID)))

		quote, err := env.carts.PriceCart(ctx, paidID)
		require.NoError(t, err)
		assert.Equal(t, "110.000", pricing.Fixed(quote.Subtotal))
	})

	t.Run("next mutation starts a fresh cart", func(t *testing.T) {
		_, found, err := env.carts.OpenCart(ctx, user.ID)
		require.NoError(t, err)
		assert.False(t, found)

		newID, err := env.carts.ResolveOpenCart(ctx, user.ID)
		require.NoError(t, err)
		assert.NotEqual(t, paidID, newID)

		total, err := env.carts.TotalProducts(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, total)
	})

	assert.Equal(t, 1.0, env.counter(t, "storefront_carts_finalized_total"))
}

func TestFinalize_ConcurrentPayments(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "grace")
	lamp := env.createProduct(t, "Lamp", "10")

	cartID, err := env.carts.ResolveOpenCart(ctx, user.ID)
	require.NoError(t, err)
	require.NoError(t, env.carts.SetLineQuantity(ctx, cartID, lamp.ID, 1))

	const n = 8
	errs := make([]error, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			errs[i] = env.carts.Finalize(ctx, cartID)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var ok, sealed int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrCartSealed):
			sealed++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, sealed)
}

func TestPayDuringIncrements(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "heidi")
	pen := env.createProduct(t, "Pen", "1")

	require.NoError(t, env.carts.AffectProduct(ctx, user.ID, pen.ID, 1))

	const increments = 10
	var g errgroup.Group
	for i := 0; i < increments; i++ {
		g.Go(func() error {
			_, err := env.carts.IncreaseProduct(ctx, user.ID, pen.ID)
			return err
		})
	}
	var paidID string
	g.Go(func() error {
		var err error
		paidID, err = env.carts.FinalizeForUser(ctx, user.ID)
		return err
	})
	require.NoError(t, g.Wait())

	var paidTotal int
	err := env.store.View(ctx, func(tx storage.Tx) error {
		var err error
		paidTotal, err = tx.SumQuantities(ctx, paidID)
		return err
	})
	require.NoError(t, err)

	openTotal, err := env.carts.TotalProducts(ctx, user.ID)
	require.NoError(t, err)

	assert.Equal(t, 1+increments, paidTotal+openTotal, "every increment lands in exactly one cart")
}

func TestPricing_UsesCurrentPrices(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "ivan")
	chair := env.createProduct(t, "Chair", "30")
	desk := env.createProduct(t, "Desk", "50")

	require.NoError(t, env.carts.AffectProduct(ctx, user.ID, chair.ID, 2))
	require.NoError(t, env.carts.AffectProduct(ctx, user.ID, desk.ID, 1))

	summary, err := env.carts.CartDetails(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "110.000", pricing.Fixed(summary.Quote.Subtotal))
	assert.Equal(t, "82.500", pricing.Fixed(summary.Quote.Total))
	assert.True(t, summary.Quote.DiscountApplied)

	// Lower the chair price; the open cart follows.
	_, err = env.catalog.UpdateProduct(ctx, chair.ID, ProductInput{
		Name:  chair.Name,
		Price: decimal.RequireFromString("20"),
		Image: chair.Image,
	})
	require.NoError(t, err)

	quote, err := env.carts.PriceCart(ctx, summary.Cart.ID)
	require.NoError(t, err)
	assert.Equal(t, "90.000", pricing.Fixed(quote.Subtotal))
	assert.Equal(t, "90.000", pricing.Fixed(quote.Total))
	assert.False(t, quote.DiscountApplied)
}

func TestDeleteCart(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "judy")

	cartID, err := env.carts.ResolveOpenCart(ctx, user.ID)
	require.NoError(t, err)

	require.NoError(t, env.carts.DeleteCart(ctx, cartID))
	assert.ErrorIs(t, env.carts.DeleteCart(ctx, cartID), apperr.ErrCartNotFound)

	_, found, err := env.carts.OpenCart(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListPaidCarts(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	lamp := env.createProduct(t, "Lamp", "60")
	mug := env.createProduct(t, "Mug", "5")

	require.NoError(t, env.carts.AffectProduct(ctx, alice.ID, lamp.ID, 2))
	alicePaid, err := env.carts.FinalizeForUser(ctx, alice.ID)
	require.NoError(t, err)

	require.NoError(t, env.carts.AffectProduct(ctx, bob.ID, mug.ID, 3))
	bobPaid, err := env.carts.FinalizeForUser(ctx, bob.ID)
	require.NoError(t, err)

	// Open carts are not reported.
	require.NoError(t, env.carts.AffectProduct(ctx, alice.ID, mug.ID, 1))

	reports, err := env.carts.ListPaidCarts(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, bobPaid, reports[0].Cart.ID, "newest payment first")
	assert.Equal(t, alicePaid, reports[1].Cart.ID)

	require.NotNil(t, reports[0].Owner)
	assert.Equal(t, "bob", reports[0].Owner.Username)
	assert.Equal(t, "15.000", pricing.Fixed(reports[0].Quote.Total))

	require.Len(t, reports[1].Lines, 1)
	assert.Equal(t, 2, reports[1].Lines[0].Line.Quantity)
	assert.Equal(t, "120.000", pricing.Fixed(reports[1].Quote.Subtotal))
	assert.Equal(t, "90.000", pricing.Fixed(reports[1].Quote.Total))
	for _, r := range reports {
		assert.NotNil(t, r.Cart.PaidAt)
	}
}

func TestResolveOpenCart_LostCreationRace(t *testing.T) {
	ctx := context.Background()

	t.Run("retry lands on the committed cart", func(t *testing.T) {
		env := setupTestEnv(t)
		user := env.createUser(t, "dora")

		var conflicts atomic.Int32
		conflicts.Store(1)
		carts := env.cartsOver(&hookedStore{Store: env.store, wrap: func(tx storage.Tx) storage.Tx {
			return conflictTx{Tx: tx, conflicts: &conflicts}
		}})

		cartID, err := carts.ResolveOpenCart(ctx, user.ID)
		require.NoError(t, err)

		cart, found, err := env.carts.OpenCart(ctx, user.ID)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, cartID, cart.ID)
		assert.Equal(t, 1.0, env.counter(t, "storefront_open_cart_conflicts_total"))
		assert.Equal(t, 1.0, env.counter(t, "storefront_carts_created_total"))
	})

	t.Run("gives up after bounded attempts", func(t *testing.T) {
		env := setupTestEnv(t)
		user := env.createUser(t, "ed")

		var conflicts atomic.Int32
		conflicts.Store(maxResolveAttempts)
		carts := env.cartsOver(&hookedStore{Store: env.store, wrap: func(tx storage.Tx) storage.Tx {
			return conflictTx{Tx: tx, conflicts: &conflicts}
		}})

		_, err := carts.ResolveOpenCart(ctx, user.ID)
		assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
		assert.ErrorIs(t, err, storage.ErrConflict)
		assert.Equal(t, float64(maxResolveAttempts-1), env.counter(t, "storefront_open_cart_conflicts_total"))

		_, found, err := env.carts.OpenCart(ctx, user.ID)
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestCartSealedBetweenLookupAndLock(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "fay")
	lamp := env.createProduct(t, "Lamp", "20")

	require.NoError(t, env.carts.AffectProduct(ctx, user.ID, lamp.ID, 2))
	snapshot, found, err := env.carts.OpenCart(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, found)
	paidID, err := env.carts.FinalizeForUser(ctx, user.ID)
	require.NoError(t, err)

	var stale atomic.Int32
	carts := env.cartsOver(&hookedStore{Store: env.store, wrap: func(tx storage.Tx) storage.Tx {
		return staleTx{Tx: tx, cart: *snapshot, stale: &stale}
	}})

	paidQuantity := func(t *testing.T) int {
		t.Helper()
		reports, err := env.carts.ListPaidCarts(ctx)
		require.NoError(t, err)
		require.Len(t, reports, 1)
		require.Len(t, reports[0].Lines, 1)
		return reports[0].Lines[0].Line.Quantity
	}

	t.Run("remove leaves the paid cart untouched", func(t *testing.T) {
		stale.Store(1)
		require.NoError(t, carts.RemoveProduct(ctx, user.ID, lamp.ID))
		assert.Equal(t, 2, paidQuantity(t))

		_, found, err := env.carts.OpenCart(ctx, user.ID)
		require.NoError(t, err)
		assert.False(t, found, "remove must not open a cart")
	})

	t.Run("increment retries onto a fresh cart", func(t *testing.T) {
		stale.Store(1)
		q, err := carts.IncreaseProduct(ctx, user.ID, lamp.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, q)
		assert.Equal(t, 2, paidQuantity(t))

		cart, found, err := env.carts.OpenCart(ctx, user.ID)
		require.NoError(t, err)
		require.True(t, found)
		assert.NotEqual(t, paidID, cart.ID)
		assert.Equal(t, 1.0, env.counter(t, "storefront_open_cart_conflicts_total"))
	})
}
