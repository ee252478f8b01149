package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/safar/electrostore/internal/checkout"
	"github.com/safar/electrostore/internal/database"
	"github.com/safar/electrostore/internal/models"
	"github.com/shopspring/decimal"
)

// GuestUserID is the fallback identity for orders placed without a logged-in
// user. The row is seeded by the initial migration.
const GuestUserID = 1

type PlaceOrderRequest struct {
	UserID int64
	Items  []OrderItemRequest
}

// OrderItemRequest carries what the client submitted. Price is the price
// the customer saw at checkout; it is recorded on the order item for
// display and audit but the charged total is always recomputed from the
// catalog.
type OrderItemRequest struct {
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
}

func generateOrderNumber() string {
	return fmt.Sprintf("ORD-%d", time.Now().UnixNano())
}

// PlaceOrder validates the cart against the catalog, computes the
// authoritative total (catalog prices + shipping + GST) and commits the
// order, its items and every stock decrement as one transaction. Either the
// whole cart commits or nothing does.
func PlaceOrder(ctx context.Context, db *sql.DB, req PlaceOrderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, database.ErrEmptyOrder
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, database.ErrInvalidQuantity
		}
	}

	userID := req.UserID
	if userID == 0 {
		userID = GuestUserID
	}

	pricing, err := checkout.ResolvePricing(ctx, SettingValue(db))
	if err != nil {
		return nil, fmt.Errorf("resolve pricing: %w", err)
	}

	// Aggregate demand per product so a cart listing the same product on
	// several lines is validated and decremented against its combined
	// quantity. Lock products in a stable order so two carts sharing
	// products cannot deadlock.
	required := make(map[int64]int, len(req.Items))
	productIDs := make([]int64, 0, len(req.Items))
	for _, item := range req.Items {
		if _, seen := required[item.ProductID]; !seen {
			productIDs = append(productIDs, item.ProductID)
		}
		required[item.ProductID] += item.Quantity
	}
	sort.Slice(productIDs, func(i, j int) bool { return productIDs[i] < productIDs[j] })

	var order *models.Order

	err = database.WithRetry(ctx, db, database.TxOptions{
		IsolationLevel: sql.LevelReadCommitted,
		MaxRetries:     3,
	}, func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)",
			userID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check user exists: %w", err)
		}
		if !exists {
			return database.ErrUserNotFound
		}

		var subtotal, rawShipping decimal.Decimal

		for _, productID := range productIDs {
			product, err := LockProduct(ctx, tx, productID)
			if err != nil {
				return err
			}

			if product.StockQuantity < required[productID] {
				return &database.StockError{
					ProductID: product.ID,
					Name:      product.Name,
					Requested: required[productID],
					Available: product.StockQuantity,
				}
			}

			quantity := decimal.NewFromInt(int64(required[productID]))
			subtotal = subtotal.Add(product.Price.Mul(quantity))
			rawShipping = rawShipping.Add(product.ShippingCost.Mul(quantity))
		}

		totals := pricing.Compute(subtotal, rawShipping)

		orderNumber := generateOrderNumber()
		var orderID int64
		err = tx.QueryRowContext(ctx,
			`INSERT INTO orders (user_id, order_number, status, total_amount, created_at, updated_at, version)
			 VALUES ($1, $2, $3, $4, NOW(), NOW(), 1)
			 RETURNING id`,
			userID, orderNumber, models.OrderStatusPending, totals.Total).Scan(&orderID)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, item := range req.Items {
			lineTotal := item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))

			_, err = tx.ExecContext(ctx,
				`INSERT INTO order_items (order_id, product_id, quantity, unit_price, subtotal, created_at)
				 VALUES ($1, $2, $3, $4, $5, NOW())`,
				orderID, item.ProductID, item.Quantity, item.Price, lineTotal)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
		}

		for _, productID := range productIDs {
			if err := DecrementStock(ctx, tx, productID, required[productID]); err != nil {
				return err
			}
		}

		order, err = loadOrder(ctx, tx, orderID)
		if err != nil {
			return fmt.Errorf("fetch created order: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return order, nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadOrder(ctx context.Context, q rowQuerier, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `
		SELECT id, user_id, order_number, status, total_amount, tracking_ref,
		       created_at, updated_at, version
		FROM orders
		WHERE id = $1`

	err := q.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.UserID,
		&order.OrderNumber,
		&order.Status,
		&order.TotalAmount,
		&order.TrackingRef,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	itemsQuery := `
		SELECT id, order_id, product_id, quantity, unit_price, subtotal, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`

	rows, err := q.QueryContext(ctx, itemsQuery, id)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	order.Items = items

	return order, nil
}

func GetOrder(ctx context.Context, db *sql.DB, id int64) (*models.Order, error) {
	return loadOrder(ctx, db, id)
}

// UpdateOrderStatus advances an order and optionally records a tracking
// reference. Transitions never move backwards; the line items are immutable
// here.
func UpdateOrderStatus(ctx context.Context, db *sql.DB, id int64, status, trackingRef string) (*models.Order, error) {
	if !models.ValidOrderStatus(status) {
		return nil, database.ErrInvalidStatusTransition
	}

	var order *models.Order

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM orders WHERE id = $1 FOR UPDATE`,
			id).Scan(&current)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}

		if !models.CanTransitionOrderStatus(current, status) {
			return database.ErrInvalidStatusTransition
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE orders
			 SET status = $1,
			     tracking_ref = CASE WHEN $2 <> '' THEN $2 ELSE tracking_ref END,
			     updated_at = NOW(),
			     version = version + 1
			 WHERE id = $3`,
			status, trackingRef, id)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}

		order, err = loadOrder(ctx, tx, id)
		return err
	})

	if err != nil {
		return nil, err
	}

	return order, nil
}

func ListOrdersCursor(ctx context.Context, db *sql.DB, userID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT id, order_number, status, total_amount, tracking_ref, created_at, updated_at, version
		FROM orders
		WHERE user_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := db.QueryContext(ctx, query, userID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		err := rows.Scan(
			&order.ID,
			&order.OrderNumber,
			&order.Status,
			&order.TotalAmount,
			&order.TrackingRef,
			&order.CreatedAt,
			&order.UpdatedAt,
			&order.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// GetNextPendingOrder claims the oldest pending order for a fulfilment
// worker. SKIP LOCKED lets concurrent workers pick distinct orders.
func GetNextPendingOrder(ctx context.Context, tx *sql.Tx) (*models.Order, error) {
	order := &models.Order{}

	query := `
		SELECT id, user_id, order_number, status, total_amount, tracking_ref,
		       created_at, updated_at, version
		FROM orders
		WHERE status = $1
		ORDER BY created_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1`

	err := tx.QueryRowContext(ctx, query, models.OrderStatusPending).Scan(
		&order.ID,
		&order.UserID,
		&order.OrderNumber,
		&order.Status,
		&order.TotalAmount,
		&order.TrackingRef,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get next pending order: %w", err)
	}

	return order, nil
}
