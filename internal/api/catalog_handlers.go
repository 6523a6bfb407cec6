package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListProducts returns the catalog. Public.
func (h *Handler) ListProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	out := make([]productJSON, 0, len(products))
	for i := range products {
		out = append(out, toProductJSON(&products[i]))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "products": out})
}

func (h *Handler) AddProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), req.input())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "product": toProductJSON(product)})
}

func (h *Handler) ModifyProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	product, err := h.catalog.UpdateProduct(c.Request.Context(), c.Param("productId"), req.input())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "product": toProductJSON(product)})
}

// RemoveCatalogProduct deletes a product and every cart line holding it.
func (h *Handler) RemoveCatalogProduct(c *gin.Context) {
	if err := h.catalog.DeleteProduct(c.Request.Context(), c.Param("productId")); err != nil {
		h.respondError(c, err)
		return
	}
	ok(c)
}

func (h *Handler) CreateCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	category, err := h.catalog.CreateCategory(c.Request.Context(), req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "category": categoryJSON{ID: category.ID, Name: category.Name}})
}

func (h *Handler) ListCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	out := make([]categoryJSON, 0, len(categories))
	for _, cat := range categories {
		out = append(out, categoryJSON{ID: cat.ID, Name: cat.Name})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "categories": out})
}

func (h *Handler) GetCategory(c *gin.Context) {
	category, err := h.catalog.GetCategory(c.Request.Context(), c.Param("categoryId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "category": categoryJSON{ID: category.ID, Name: category.Name}})
}

func (h *Handler) RenameCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	category, err := h.catalog.RenameCategory(c.Request.Context(), c.Param("categoryId"), req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "category": categoryJSON{ID: category.ID, Name: category.Name}})
}

func (h *Handler) DeleteCategory(c *gin.Context) {
	if err := h.catalog.DeleteCategory(c.Request.Context(), c.Param("categoryId")); err != nil {
		h.respondError(c, err)
		return
	}
	ok(c)
}
