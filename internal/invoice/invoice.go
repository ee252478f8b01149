// Package invoice renders a tax invoice for a committed order. The invoice
// is never persisted: it is a pure function of the order, its captured line
// items, the product names as they are in the catalog right now, and the
// store contact settings right now. Re-rendering an old order after a
// product rename or a settings edit shows the new name and contact block;
// the captured unit prices and the charged total never change.
package invoice

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/electrostore/internal/checkout"
	"github.com/safar/electrostore/internal/database"
	"github.com/safar/electrostore/internal/models"
	"github.com/safar/electrostore/internal/store"
	"github.com/shopspring/decimal"
)

// Settings keys for the invoice header, with code-level fallbacks so a
// fresh database still renders a complete document.
const (
	SettingStoreName    = "STORE_NAME"
	SettingStoreAddress = "STORE_ADDRESS"
	SettingStorePhone   = "STORE_PHONE"
	SettingStoreEmail   = "STORE_EMAIL"
)

// StoreInfo is the contact block rendered at the top of every invoice,
// read from settings at render time.
type StoreInfo struct {
	Name    string
	Address string
	Phone   string
	Email   string
}

// Line is one row of the invoice table. UnitPrice is the price captured on
// the order item; Name is the product's current catalog name.
type Line struct {
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// Document is everything Render needs, fully resolved.
type Document struct {
	Order      *models.Order
	Customer   *models.User
	Lines      []Line
	Store      StoreInfo
	GSTPercent decimal.Decimal
}

// LineSubtotal is the sum of the line totals. It is the pre-tax,
// pre-shipping figure and intentionally differs from Order.TotalAmount.
func (d *Document) LineSubtotal() decimal.Decimal {
	var sum decimal.Decimal
	for _, line := range d.Lines {
		sum = sum.Add(line.LineTotal)
	}
	return sum
}

// Build loads and resolves everything the renderer needs. It fails with
// database.ErrOrderNotFound when the order does not exist; a missing
// customer or product row degrades to placeholder text instead of failing
// the render.
func Build(ctx context.Context, db *sql.DB, orderID int64) (*Document, error) {
	order, err := store.GetOrder(ctx, db, orderID)
	if err != nil {
		return nil, err
	}

	customer, err := store.GetUser(ctx, db, order.UserID)
	if err != nil {
		if !errors.Is(err, database.ErrUserNotFound) {
			return nil, err
		}
		customer = &models.User{Name: "Customer", Email: ""}
	}

	lines, err := resolveLines(ctx, db, order)
	if err != nil {
		return nil, err
	}

	info, gstPercent, err := resolveStoreInfo(ctx, db)
	if err != nil {
		return nil, err
	}

	return &Document{
		Order:      order,
		Customer:   customer,
		Lines:      lines,
		Store:      info,
		GSTPercent: gstPercent,
	}, nil
}

func resolveLines(ctx context.Context, db *sql.DB, order *models.Order) ([]Line, error) {
	query := `
		SELECT oi.quantity, oi.unit_price, oi.subtotal, oi.product_id, p.name
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1
		ORDER BY oi.id`

	rows, err := db.QueryContext(ctx, query, order.ID)
	if err != nil {
		return nil, fmt.Errorf("load invoice lines: %w", err)
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var line Line
		var productID int64
		var name sql.NullString
		if err := rows.Scan(&line.Quantity, &line.UnitPrice, &line.LineTotal, &productID, &name); err != nil {
			return nil, fmt.Errorf("scan invoice line: %w", err)
		}
		line.Name = name.String
		if !name.Valid {
			line.Name = fmt.Sprintf("Product #%d", productID)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lines, nil
}

func resolveStoreInfo(ctx context.Context, db *sql.DB) (StoreInfo, decimal.Decimal, error) {
	info := StoreInfo{
		Name:    "ElectroStore",
		Address: "123 Circuit Avenue",
		Phone:   "+1 555 0100",
		Email:   "support@electrostore.local",
	}
	gstPercent := decimal.NewFromInt(18)

	lookup := func(key string, dst *string) error {
		setting, err := store.GetSetting(ctx, db, key)
		if err != nil {
			if errors.Is(err, database.ErrSettingNotFound) {
				return nil
			}
			return err
		}
		*dst = setting.Value
		return nil
	}

	for key, dst := range map[string]*string{
		SettingStoreName:    &info.Name,
		SettingStoreAddress: &info.Address,
		SettingStorePhone:   &info.Phone,
		SettingStoreEmail:   &info.Email,
	} {
		if err := lookup(key, dst); err != nil {
			return StoreInfo{}, decimal.Zero, err
		}
	}

	var raw string
	if err := lookup(checkout.SettingGSTPercentage, &raw); err != nil {
		return StoreInfo{}, decimal.Zero, err
	}
	if raw != "" {
		if percent, err := decimal.NewFromString(raw); err == nil && !percent.IsNegative() {
			gstPercent = percent
		}
	}

	return info, gstPercent, nil
}

// Generate is the one-call form: load the order and render its invoice.
func Generate(ctx context.Context, db *sql.DB, orderID int64) ([]byte, error) {
	doc, err := Build(ctx, db, orderID)
	if err != nil {
		return nil, err
	}
	return Render(doc)
}
