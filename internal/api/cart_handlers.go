package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mmynk/storefront/internal/middleware"
)

// GetUserCart returns the caller's open cart priced with current prices.
func (h *Handler) GetUserCart(c *gin.Context) {
	userID := middleware.GetUserID(c.Request.Context())

	summary, err := h.carts.CartDetails(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartDetailsResponse(summary, h.carts.Policy()))
}

// AffectProduct sets the quantity of a product in the caller's cart.
func (h *Handler) AffectProduct(c *gin.Context) {
	var req affectProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	userID := middleware.GetUserID(c.Request.Context())
	if err := h.carts.AffectProduct(c.Request.Context(), userID, req.ProductID, *req.Quantity); err != nil {
		h.respondError(c, err)
		return
	}
	ok(c)
}

// IncreaseProductQuantity adds one unit of a product to the caller's cart.
func (h *Handler) IncreaseProductQuantity(c *gin.Context) {
	userID := middleware.GetUserID(c.Request.Context())
	if _, err := h.carts.IncreaseProduct(c.Request.Context(), userID, c.Param("productId")); err != nil {
		h.respondError(c, err)
		return
	}
	ok(c)
}

// RemoveProduct deletes a product line from the caller's cart.
func (h *Handler) RemoveProduct(c *gin.Context) {
	userID := middleware.GetUserID(c.Request.Context())
	if err := h.carts.RemoveProduct(c.Request.Context(), userID, c.Param("productId")); err != nil {
		h.respondError(c, err)
		return
	}
	ok(c)
}

// TotalProducts returns the number of items in the caller's cart.
func (h *Handler) TotalProducts(c *gin.Context) {
	userID := middleware.GetUserID(c.Request.Context())
	total, err := h.carts.TotalProducts(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"totalProducts": total})
}

// Pay seals the caller's open cart.
func (h *Handler) Pay(c *gin.Context) {
	userID := middleware.GetUserID(c.Request.Context())
	if _, err := h.carts.FinalizeForUser(c.Request.Context(), userID); err != nil {
		h.respondError(c, err)
		return
	}
	ok(c)
}

// ListPaidCarts is the admin report of paid carts.
func (h *Handler) ListPaidCarts(c *gin.Context) {
	reports, err := h.carts.ListPaidCarts(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaidCartsResponse(reports))
}

// DeleteCart removes any cart. Admin only.
func (h *Handler) DeleteCart(c *gin.Context) {
	if err := h.carts.DeleteCart(c.Request.Context(), c.Param("cartId")); err != nil {
		h.respondError(c, err)
		return
	}
	ok(c)
}
