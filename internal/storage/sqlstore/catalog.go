package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/storefront/internal/models"
	"github.com/mmynk/storefront/internal/storage"
)

const productColumns = "id, name, price, image, description, created_at"

func scanProduct(row interface{ Scan(...any) error }) (*models.Product, error) {
	p := &models.Product{}
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Image, &p.Description, &p.CreatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

// CreateProduct inserts a product and links it to its categories.
func (t *txn) CreateProduct(ctx context.Context, product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	if product.CreatedAt == 0 {
		product.CreatedAt = time.Now().Unix()
	}

	_, err := t.exec(ctx,
		`INSERT INTO products (id, name, price, image, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		product.ID, product.Name, product.Price.String(), product.Image, product.Description, product.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return t.linkCategories(ctx, product.ID, product.CategoryIDs)
}

// UpdateProduct overwrites the product's fields and category links.
func (t *txn) UpdateProduct(ctx context.Context, product *models.Product) error {
	res, err := t.exec(ctx,
		`UPDATE products SET name = ?, price = ?, image = ?, description = ? WHERE id = ?`,
		product.Name, product.Price.String(), product.Image, product.Description, product.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("product %s: %w", product.ID, storage.ErrNotFound)
	}

	if _, err := t.exec(ctx, "DELETE FROM product_categories WHERE product_id = ?", product.ID); err != nil {
		return fmt.Errorf("failed to clear product categories: %w", err)
	}
	return t.linkCategories(ctx, product.ID, product.CategoryIDs)
}

func (t *txn) linkCategories(ctx context.Context, productID string, categoryIDs []string) error {
	seen := make(map[string]bool, len(categoryIDs))
	for _, categoryID := range categoryIDs {
		if seen[categoryID] {
			continue
		}
		seen[categoryID] = true
		if _, err := t.exec(ctx,
			"INSERT INTO product_categories (product_id, category_id) VALUES (?, ?)",
			productID, categoryID,
		); err != nil {
			return fmt.Errorf("failed to link category %s: %w", categoryID, err)
		}
	}
	return nil
}

// GetProduct retrieves a product and its category IDs.
func (t *txn) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	product, err := scanProduct(t.queryRow(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	rows, err := t.query(ctx,
		"SELECT category_id FROM product_categories WHERE product_id = ? ORDER BY category_id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get product categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var categoryID string
		if err := rows.Scan(&categoryID); err != nil {
			return nil, fmt.Errorf("failed to scan category id: %w", err)
		}
		product.CategoryIDs = append(product.CategoryIDs, categoryID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating product categories: %w", err)
	}
	return product, nil
}

// ListProducts returns every product ordered by name.
func (t *txn) ListProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := t.query(ctx, "SELECT "+productColumns+" FROM products ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	index := make(map[string]int)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		index[p.ID] = len(products)
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}
	rows.Close()

	links, err := t.query(ctx, "SELECT product_id, category_id FROM product_categories ORDER BY category_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list product categories: %w", err)
	}
	defer links.Close()

	for links.Next() {
		var productID, categoryID string
		if err := links.Scan(&productID, &categoryID); err != nil {
			return nil, fmt.Errorf("failed to scan product category: %w", err)
		}
		if i, ok := index[productID]; ok {
			products[i].CategoryIDs = append(products[i].CategoryIDs, categoryID)
		}
	}
	if err := links.Err(); err != nil {
		return nil, fmt.Errorf("error iterating product categories: %w", err)
	}
	return products, nil
}

// DeleteProduct removes the product, its category links and every cart
// line that references it.
func (t *txn) DeleteProduct(ctx context.Context, id string) error {
	if _, err := t.exec(ctx, "DELETE FROM cart_lines WHERE product_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete product cart lines: %w", err)
	}
	if _, err := t.exec(ctx, "DELETE FROM product_categories WHERE product_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete product categories: %w", err)
	}
	res, err := t.exec(ctx, "DELETE FROM products WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("product %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// CreateCategory inserts a category.
func (t *txn) CreateCategory(ctx context.Context, category *models.Category) error {
	if category.ID == "" {
		category.ID = uuid.New().String()
	}
	if _, err := t.exec(ctx, "INSERT INTO categories (id, name) VALUES (?, ?)", category.ID, category.Name); err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

// UpdateCategory renames a category.
func (t *txn) UpdateCategory(ctx context.Context, category *models.Category) error {
	res, err := t.exec(ctx, "UPDATE categories SET name = ? WHERE id = ?", category.Name, category.ID)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("category %s: %w", category.ID, storage.ErrNotFound)
	}
	return nil
}

// GetCategory retrieves a category by ID.
func (t *txn) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	category := &models.Category{}
	err := t.queryRow(ctx, "SELECT id, name FROM categories WHERE id = ?", id).Scan(&category.ID, &category.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return category, nil
}

// ListCategories returns every category ordered by name.
func (t *txn) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := t.query(ctx, "SELECT id, name FROM categories ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}
	return categories, nil
}

// DeleteCategory removes a category and its product links.
func (t *txn) DeleteCategory(ctx context.Context, id string) error {
	if _, err := t.exec(ctx, "DELETE FROM product_categories WHERE category_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete category links: %w", err)
	}
	res, err := t.exec(ctx, "DELETE FROM categories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("category %s: %w", id, storage.ErrNotFound)
	}
	return nil
}
