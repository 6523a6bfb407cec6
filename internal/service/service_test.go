package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/storefront/internal/auth"
	"github.com/mmynk/storefront/internal/metrics"
	"github.com/mmynk/storefront/internal/models"
	"github.com/mmynk/storefront/internal/pricing"
	"github.com/mmynk/storefront/internal/storage"
	"github.com/mmynk/storefront/internal/storage/sqlite"
	"github.com/mmynk/storefront/pkg/logging"
)

// testEnv wires the services to a temp-file SQLite database.
type testEnv struct {
	store   storage.Store
	carts   *CartService
	catalog *CatalogService
	auth    *AuthService
	reg     *prometheus.Registry
	metrics *metrics.Metrics
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := logging.Discard()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	carts := NewCartService(store, pricing.DefaultPolicy(), logger, m)

	// Each call advances one second so paid_at ordering is deterministic.
	var clock atomic.Int64
	clock.Store(1_700_000_000)
	carts.now = func() time.Time { return time.Unix(clock.Add(1), 0) }

	authenticator := auth.NewPasswordAuthenticator(store).WithCost(bcrypt.MinCost)
	jwtManager := auth.NewJWTManager("service-test-secret-1234", time.Hour)

	return &testEnv{
		store:   store,
		carts:   carts,
		catalog: NewCatalogService(store, logger),
		auth:    NewAuthService(store, authenticator, jwtManager, logger),
		reg:     reg,
		metrics: m,
	}
}

func (e *testEnv) createUser(t *testing.T, username string) *models.User {
	t.Helper()
	user, err := e.auth.Register(context.Background(), username, username+"@example.com", "password-123")
	require.NoError(t, err)
	return user
}

func (e *testEnv) createProduct(t *testing.T, name, price string) *models.Product {
	t.Helper()
	product, err := e.catalog.CreateProduct(context.Background(), ProductInput{
		Name:  name,
		Price: decimal.RequireFromString(price),
		Image: name + ".png",
	})
	require.NoError(t, err)
	return product
}

// counter reads a counter value from the test registry.
func (e *testEnv) counter(t *testing.T, name string) float64 {
	t.Helper()
	families, err := e.reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name && len(f.GetMetric()) > 0 {
			return f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

// cartsOver returns a cart service sharing env's clock and metrics but
// running its transactions through store.
func (e *testEnv) cartsOver(store storage.Store) *CartService {
	carts := NewCartService(store, e.carts.Policy(), logging.Discard(), e.metrics)
	carts.now = e.carts.now
	return carts
}

// hookedStore hands every transaction to wrap before fn sees it, so tests
// can stand in for a concurrent writer at a precise point.
type hookedStore struct {
	storage.Store
	wrap func(tx storage.Tx) storage.Tx
}

func (s *hookedStore) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.Store.InTx(ctx, func(tx storage.Tx) error { return fn(s.wrap(tx)) })
}

func (s *hookedStore) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.Store.View(ctx, func(tx storage.Tx) error { return fn(s.wrap(tx)) })
}

// conflictTx fails CreateCart with a unique violation while conflicts
// remains positive, as if another request had just inserted the open cart.
type conflictTx struct {
	storage.Tx
	conflicts *atomic.Int32
}

func (t conflictTx) CreateCart(ctx context.Context, cart *models.Cart) error {
	if t.conflicts.Add(-1) >= 0 {
		return fmt.Errorf("failed to create cart: %w", storage.ErrConflict)
	}
	return t.Tx.CreateCart(ctx, cart)
}

// staleTx answers FindOpenCart with a copy of cart taken while it was
// still open, for as many lookups as stale allows.
type staleTx struct {
	storage.Tx
	cart  models.Cart
	stale *atomic.Int32
}

func (t staleTx) FindOpenCart(ctx context.Context, userID string) (*models.Cart, error) {
	if t.stale.Add(-1) >= 0 && userID == t.cart.UserID {
		cart := t.cart
		return &cart, nil
	}
	return t.Tx.FindOpenCart(ctx, userID)
}
