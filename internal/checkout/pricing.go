// Package checkout holds the pricing rules applied when an order is placed:
// free-shipping threshold and GST. The configuration is resolved from the
// settings store once per order so that policy changes apply to orders
// placed after the change, never retroactively.
package checkout

import (
	"context"
	"errors"

	"github.com/safar/electrostore/internal/database"
	"github.com/shopspring/decimal"
)

// Settings keys consulted by the pipeline.
const (
	SettingGSTPercentage         = "GST_PERCENTAGE"
	SettingFreeShippingThreshold = "FREE_SHIPPING_THRESHOLD"
)

const defaultGSTPercent = 18

// SettingLookup returns the raw value for a settings key, or
// database.ErrSettingNotFound when the key is absent.
type SettingLookup func(ctx context.Context, key string) (string, error)

// Pricing is the tax and shipping policy in effect for one order.
type Pricing struct {
	// GSTRate is the tax rate as a fraction (0.18 for 18%).
	GSTRate decimal.Decimal
	// FreeShippingThreshold waives shipping once the subtotal reaches it.
	// Zero disables the waiver.
	FreeShippingThreshold decimal.Decimal
}

// DefaultPricing is 18% GST with the free-shipping waiver disabled.
func DefaultPricing() Pricing {
	return Pricing{
		GSTRate:               decimal.NewFromInt(defaultGSTPercent).Div(decimal.NewFromInt(100)),
		FreeShippingThreshold: decimal.Zero,
	}
}

// ResolvePricing builds the pricing policy from the settings store. Absent,
// unparsable or negative values fall back to the defaults. Lookup failures
// other than a missing key are returned to the caller.
func ResolvePricing(ctx context.Context, lookup SettingLookup) (Pricing, error) {
	pricing := DefaultPricing()

	value, err := lookup(ctx, SettingGSTPercentage)
	switch {
	case err == nil:
		if percent, perr := decimal.NewFromString(value); perr == nil && !percent.IsNegative() {
			pricing.GSTRate = percent.Div(decimal.NewFromInt(100))
		}
	case errors.Is(err, database.ErrSettingNotFound):
	default:
		return Pricing{}, err
	}

	value, err = lookup(ctx, SettingFreeShippingThreshold)
	switch {
	case err == nil:
		if threshold, perr := decimal.NewFromString(value); perr == nil && threshold.IsPositive() {
			pricing.FreeShippingThreshold = threshold
		}
	case errors.Is(err, database.ErrSettingNotFound):
	default:
		return Pricing{}, err
	}

	return pricing, nil
}

// Totals is the authoritative money breakdown for an order.
type Totals struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Compute derives the charged amounts from a catalog-priced subtotal and
// the summed per-item shipping cost. Shipping is waived when the subtotal
// reaches the threshold, then GST applies to goods plus shipping.
func (p Pricing) Compute(subtotal, rawShipping decimal.Decimal) Totals {
	shipping := rawShipping
	if p.FreeShippingThreshold.IsPositive() && subtotal.GreaterThanOrEqual(p.FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	taxable := subtotal.Add(shipping)
	tax := taxable.Mul(p.GSTRate).Round(2)

	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    taxable.Mul(decimal.NewFromInt(1).Add(p.GSTRate)).Round(2),
	}
}
