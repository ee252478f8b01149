package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/electrostore/internal/database"
	"github.com/safar/electrostore/internal/models"
	"github.com/shopspring/decimal"
)

type CreateProductRequest struct {
	SKU          string
	Name         string
	Description  string
	Category     string
	Price        decimal.Decimal
	ShippingCost decimal.Decimal
	Stock        int
	Specs        json.RawMessage
}

const productColumns = `id, sku, name, description, category, price, shipping_cost,
		       stock_quantity, specs, created_at, updated_at, version`

func scanProduct(row interface{ Scan(...any) error }, product *models.Product) error {
	return row.Scan(
		&product.ID,
		&product.SKU,
		&product.Name,
		&product.Description,
		&product.Category,
		&product.Price,
		&product.ShippingCost,
		&product.StockQuantity,
		&product.Specs,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
}

func CreateProduct(ctx context.Context, db *sql.DB, req CreateProductRequest) (*models.Product, error) {
	product := &models.Product{}

	specs := req.Specs
	if len(specs) == 0 {
		specs = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO products (sku, name, description, category, price, shipping_cost,
		                      stock_quantity, specs, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	err := scanProduct(db.QueryRowContext(ctx, query,
		req.SKU, req.Name, req.Description, req.Category,
		req.Price, req.ShippingCost, req.Stock, []byte(specs)), product)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, db *sql.DB, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE id = $1`

	err := scanProduct(db.QueryRowContext(ctx, query, id), product)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// UpdateProduct replaces the catalog fields of a product. Stock is not
// touched here; all stock mutation goes through the conditional paths
// below so it can never go negative.
func UpdateProduct(ctx context.Context, db *sql.DB, id int64, req CreateProductRequest) (*models.Product, error) {
	product := &models.Product{}

	specs := req.Specs
	if len(specs) == 0 {
		specs = json.RawMessage(`{}`)
	}

	query := `
		UPDATE products
		SET sku = $1, name = $2, description = $3, category = $4,
		    price = $5, shipping_cost = $6, specs = $7,
		    updated_at = NOW(), version = version + 1
		WHERE id = $8
		RETURNING ` + productColumns

	err := scanProduct(db.QueryRowContext(ctx, query,
		req.SKU, req.Name, req.Description, req.Category,
		req.Price, req.ShippingCost, []byte(specs), id), product)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("update product: %w", err)
	}

	return product, nil
}

func LockProduct(ctx context.Context, tx *sql.Tx, productID int64) (*models.Product, error) {
	product := &models.Product{}

	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE id = $1
		FOR UPDATE`

	err := scanProduct(tx.QueryRowContext(ctx, query, productID), product)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("lock product: %w", err)
	}

	return product, nil
}

func LockProductNoWait(ctx context.Context, tx *sql.Tx, productID int64) (*models.Product, error) {
	product := &models.Product{}

	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE id = $1
		FOR UPDATE NOWAIT`

	err := scanProduct(tx.QueryRowContext(ctx, query, productID), product)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "55P03" {
			return nil, database.ErrLockTimeout
		}
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("lock product (nowait): %w", err)
	}

	return product, nil
}

func UpdateStockOptimistic(ctx context.Context, db *sql.DB, productID int64, newStock int, version int) error {
	result, err := db.ExecContext(ctx,
		`UPDATE products
		 SET stock_quantity = $1, version = version + 1, updated_at = NOW()
		 WHERE id = $2 AND version = $3`,
		newStock, productID, version)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrOptimisticLockFailed
	}

	return nil
}

// DecrementStock takes quantity out of stock only if enough remains. Zero
// rows affected means another transaction got there first.
func DecrementStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock_quantity >= $1`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrInsufficientStock
	}

	return nil
}

// AdjustStock applies a signed delta from the admin side under the same
// conditional discipline as checkout, so no write path can drive stock
// negative.
func AdjustStock(ctx context.Context, db *sql.DB, productID int64, delta int) (*models.Product, error) {
	product := &models.Product{}

	query := `
		UPDATE products
		SET stock_quantity = stock_quantity + $1,
		    updated_at = NOW(), version = version + 1
		WHERE id = $2
		  AND stock_quantity + $1 >= 0
		RETURNING ` + productColumns

	err := scanProduct(db.QueryRowContext(ctx, query, delta, productID), product)
	if err != nil {
		if err == sql.ErrNoRows {
			if _, getErr := GetProduct(ctx, db, productID); getErr != nil {
				return nil, getErr
			}
			return nil, database.ErrInsufficientStock
		}
		return nil, fmt.Errorf("adjust stock: %w", err)
	}

	return product, nil
}

func ListProducts(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + productColumns + `
		FROM products
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var product models.Product
		if err := scanProduct(rows, &product); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	return &OffsetPage{
		Items:      products,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}
