// Package api exposes the storefront over HTTP with gin.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmynk/storefront/internal/auth"
	"github.com/mmynk/storefront/internal/metrics"
	"github.com/mmynk/storefront/internal/middleware"
	"github.com/mmynk/storefront/internal/service"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Carts   *service.CartService
	Catalog *service.CatalogService
	Users   *service.AuthService
	Tokens  auth.TokenVerifier
	Health  Pinger
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
}

// Handler holds the services used by the route handlers.
type Handler struct {
	carts   *service.CartService
	catalog *service.CatalogService
	users   *service.AuthService
	health  Pinger
	logger  *slog.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(d Deps) *gin.Engine {
	h := &Handler{
		carts:   d.Carts,
		catalog: d.Catalog,
		users:   d.Users,
		health:  d.Health,
		logger:  d.Logger,
	}

	r := gin.New()
	r.Use(
		middleware.Logging(d.Logger),
		middleware.Metrics(d.Metrics),
		gin.CustomRecovery(h.recover),
		cors.New(corsConfig(d.CORSOrigins)),
	)

	r.GET("/healthz", h.Healthz)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	requireAuth := middleware.RequireAuth(d.Tokens)
	requireAdmin := middleware.RequireAdmin(d.Users, d.Logger)

	// Public routes (no authentication required)
	r.POST("/user/create", h.CreateUser)
	r.POST("/user/authenticate", h.Authenticate)
	r.GET("/product/find-all", h.ListProducts)

	// Authenticated routes
	authed := r.Group("/", requireAuth)
	{
		authed.PUT("/user/:userId", h.ModifyUser)
		authed.PUT("/user/modify-password/:userId", h.ModifyPassword)
		authed.DELETE("/user/:userId", h.DeleteUser)

		cart := authed.Group("/cart")
		cart.GET("/user", h.GetUserCart)
		cart.POST("/affect-product", h.AffectProduct)
		cart.PUT("/increase-product-quantity/:productId", h.IncreaseProductQuantity)
		cart.DELETE("/remove-product/:productId", h.RemoveProduct)
		cart.GET("/total-products", h.TotalProducts)
		cart.PUT("/pay", h.Pay)
	}

	// Admin routes; the role is checked against the store on every request.
	admin := r.Group("/", requireAuth, requireAdmin)
	{
		admin.GET("/check-admin", h.CheckAdmin)
		admin.PUT("/user/promote-admin/:userId", h.PromoteAdmin)
		admin.PUT("/user/unpromote-admin/:userId", h.UnpromoteAdmin)

		admin.GET("/cart/all", h.ListPaidCarts)
		admin.DELETE("/cart/delete/:cartId", h.DeleteCart)

		admin.POST("/product/add", h.AddProduct)
		admin.PUT("/product/modify/:productId", h.ModifyProduct)
		admin.DELETE("/product/remove/:productId", h.RemoveCatalogProduct)

		admin.POST("/category", h.CreateCategory)
		admin.GET("/categories", h.ListCategories)
		admin.GET("/category/:categoryId", h.GetCategory)
		admin.PUT("/category/:categoryId", h.RenameCategory)
		admin.DELETE("/category/:categoryId", h.DeleteCategory)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// Healthz pings the store.
func (h *Handler) Healthz(c *gin.Context) {
	if err := h.health.Ping(c.Request.Context()); err != nil {
		h.logger.Error("Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
