package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmynk/storefront/internal/apperr"
	"github.com/mmynk/storefront/internal/models"
	"github.com/mmynk/storefront/internal/pricing"
	"github.com/mmynk/storefront/internal/storage"
)

var (
	errProductName    = apperr.Invalid(apperr.CodeInvalidInput, "product name is required")
	errProductImage   = apperr.Invalid(apperr.CodeInvalidInput, "product image is required")
	errProductPrice   = apperr.Invalid(apperr.CodeInvalidInput, "price must not be negative")
	errPriceScale     = apperr.Invalid(apperr.CodeInvalidInput, "price must have at most 3 decimal places")
	errCategoryName   = apperr.Invalid(apperr.CodeInvalidInput, "category name is required")
	errCategoryAbsent = apperr.NotFound(apperr.CodeCategoryNotFound, "category not found")
)

// CatalogService manages products and categories.
type CatalogService struct {
	store  storage.Store
	logger *slog.Logger
}

// NewCatalogService creates a catalog service.
func NewCatalogService(store storage.Store, logger *slog.Logger) *CatalogService {
	return &CatalogService{store: store, logger: logger}
}

// ProductInput carries the editable fields of a product.
type ProductInput struct {
	Name        string
	Price       decimal.Decimal
	Image       string
	Description string
	CategoryIDs []string
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return errProductName
	}
	if strings.TrimSpace(in.Image) == "" {
		return errProductImage
	}
	if in.Price.IsNegative() {
		return errProductPrice
	}
	// Postgres stores NUMERIC(14,3); finer prices would be rounded there
	// and kept exactly on SQLite.
	if !in.Price.Equal(in.Price.Round(pricing.Scale)) {
		return errPriceScale
	}
	return nil
}

func (in ProductInput) apply(p *models.Product) {
	p.Name = strings.TrimSpace(in.Name)
	p.Price = in.Price
	p.Image = strings.TrimSpace(in.Image)
	p.Description = in.Description
	p.CategoryIDs = in.CategoryIDs
}

// CreateProduct adds a product to the catalog.
func (s *CatalogService) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	product := &models.Product{}
	in.apply(product)

	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		if err := requireCategories(ctx, tx, in.CategoryIDs); err != nil {
			return err
		}
		return tx.CreateProduct(ctx, product)
	})
	if err != nil {
		return nil, classify("create product", err)
	}

	s.logger.Info("Product created", "product_id", product.ID, "name", product.Name, "price", product.Price.String())
	return product, nil
}

// UpdateProduct replaces a product's fields. Open carts see the new price
// on their next read.
func (s *CatalogService) UpdateProduct(ctx context.Context, id string, in ProductInput) (*models.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	product := &models.Product{ID: id}
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		current, err := tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		if err := requireCategories(ctx, tx, in.CategoryIDs); err != nil {
			return err
		}
		product.CreatedAt = current.CreatedAt
		in.apply(product)
		return tx.UpdateProduct(ctx, product)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.ErrProductNotFound
	}
	if err != nil {
		return nil, classify("update product", err)
	}

	s.logger.Info("Product updated", "product_id", id)
	return product, nil
}

// DeleteProduct removes a product, its category links and every cart line
// referencing it, in one transaction.
func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		return tx.DeleteProduct(ctx, id)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.ErrProductNotFound
	}
	if err != nil {
		return classify("delete product", err)
	}

	s.logger.Info("Product deleted", "product_id", id)
	return nil
}

// GetProduct returns one product.
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var product *models.Product
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		product, err = tx.GetProduct(ctx, id)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.ErrProductNotFound
	}
	if err != nil {
		return nil, classify("get product", err)
	}
	return product, nil
}

// ListProducts returns the whole catalog.
func (s *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		products, err = tx.ListProducts(ctx)
		return err
	})
	if err != nil {
		return nil, classify("list products", err)
	}
	return products, nil
}

func requireCategories(ctx context.Context, tx storage.Tx, ids []string) error {
	for _, id := range ids {
		if _, err := tx.GetCategory(ctx, id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return errCategoryAbsent
			}
			return err
		}
	}
	return nil
}

// CreateCategory adds a category.
func (s *CatalogService) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errCategoryName
	}

	category := &models.Category{Name: name}
	if err := s.store.InTx(ctx, func(tx storage.Tx) error {
		return tx.CreateCategory(ctx, category)
	}); err != nil {
		return nil, classify("create category", err)
	}

	s.logger.Info("Category created", "category_id", category.ID, "name", name)
	return category, nil
}

// RenameCategory changes a category's name.
func (s *CatalogService) RenameCategory(ctx context.Context, id, name string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errCategoryName
	}

	category := &models.Category{ID: id, Name: name}
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		return tx.UpdateCategory(ctx, category)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errCategoryAbsent
	}
	if err != nil {
		return nil, classify("rename category", err)
	}
	return category, nil
}

// DeleteCategory removes a category. Its products stay in the catalog.
func (s *CatalogService) DeleteCategory(ctx context.Context, id string) error {
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		return tx.DeleteCategory(ctx, id)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return errCategoryAbsent
	}
	if err != nil {
		return classify("delete category", err)
	}

	s.logger.Info("Category deleted", "category_id", id)
	return nil
}

// GetCategory returns one category.
func (s *CatalogService) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	var category *models.Category
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		category, err = tx.GetCategory(ctx, id)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errCategoryAbsent
	}
	if err != nil {
		return nil, classify("get category", err)
	}
	return category, nil
}

// ListCategories returns all categories.
func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		categories, err = tx.ListCategories(ctx)
		return err
	})
	if err != nil {
		return nil, classify("list categories", err)
	}
	return categories, nil
}
