package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

type Product struct {
	ID            int64           `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Category      string          `json:"category,omitempty"`
	Price         decimal.Decimal `json:"price"`
	ShippingCost  decimal.Decimal `json:"shipping_cost"`
	StockQuantity int             `json:"stock_quantity"`
	Specs         json.RawMessage `json:"specs,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Version       int             `json:"version"`
}

type Order struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	OrderNumber string          `json:"order_number"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	TrackingRef string          `json:"tracking_ref,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Version     int             `json:"version"`
	Items       []OrderItem     `json:"items,omitempty"`
}

// OrderItem records the terms of sale at order time. UnitPrice is the price
// the customer saw at checkout and stays fixed even if the catalog price
// changes later; the order's charged total is computed server-side from the
// catalog and stored on the Order.
type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	CreatedAt time.Time       `json:"created_at"`
}

type SystemSetting struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Order status only moves forward: PENDING -> SHIPPED -> DELIVERED.
const (
	OrderStatusPending   = "PENDING"
	OrderStatusShipped   = "SHIPPED"
	OrderStatusDelivered = "DELIVERED"
)

var orderStatusRank = map[string]int{
	OrderStatusPending:   0,
	OrderStatusShipped:   1,
	OrderStatusDelivered: 2,
}

func ValidOrderStatus(status string) bool {
	_, ok := orderStatusRank[status]
	return ok
}

// CanTransitionOrderStatus reports whether an order may move from one
// status to the other. Staying on the same status is allowed so that a
// tracking reference can be set without advancing the order.
func CanTransitionOrderStatus(from, to string) bool {
	fromRank, ok := orderStatusRank[from]
	if !ok {
		return false
	}
	toRank, ok := orderStatusRank[to]
	if !ok {
		return false
	}
	return toRank >= fromRank
}
