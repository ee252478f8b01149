package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/safar/electrostore/internal/database"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticLookup(values map[string]string) SettingLookup {
	return func(_ context.Context, key string) (string, error) {
		if v, ok := values[key]; ok {
			return v, nil
		}
		return "", database.ErrSettingNotFound
	}
}

func TestComputeTaxAndShipping(t *testing.T) {
	pricing := Pricing{
		GSTRate:               decimal.RequireFromString("0.18"),
		FreeShippingThreshold: decimal.Zero,
	}

	totals := pricing.Compute(decimal.NewFromInt(1000), decimal.NewFromInt(50))

	assert.Equal(t, "50", totals.Shipping.String())
	assert.Equal(t, "189.00", totals.Tax.StringFixed(2))
	assert.Equal(t, "1239.00", totals.Total.StringFixed(2))
}

func TestComputeFreeShippingThreshold(t *testing.T) {
	pricing := Pricing{
		GSTRate:               decimal.RequireFromString("0.18"),
		FreeShippingThreshold: decimal.NewFromInt(500),
	}

	totals := pricing.Compute(decimal.NewFromInt(1000), decimal.NewFromInt(50))

	assert.True(t, totals.Shipping.IsZero(), "shipping should be waived above the threshold")
	assert.Equal(t, "1180.00", totals.Total.StringFixed(2))
}

func TestComputeThresholdBoundary(t *testing.T) {
	pricing := Pricing{
		GSTRate:               decimal.RequireFromString("0.18"),
		FreeShippingThreshold: decimal.NewFromInt(1000),
	}

	atThreshold := pricing.Compute(decimal.NewFromInt(1000), decimal.NewFromInt(50))
	assert.True(t, atThreshold.Shipping.IsZero(), "subtotal equal to the threshold qualifies")

	belowThreshold := pricing.Compute(decimal.RequireFromString("999.99"), decimal.NewFromInt(50))
	assert.Equal(t, "50", belowThreshold.Shipping.String())
}

func TestComputeZeroThresholdNeverWaives(t *testing.T) {
	totals := DefaultPricing().Compute(decimal.NewFromInt(100000), decimal.NewFromInt(50))
	assert.Equal(t, "50", totals.Shipping.String())
}

func TestResolvePricingFromSettings(t *testing.T) {
	pricing, err := ResolvePricing(context.Background(), staticLookup(map[string]string{
		SettingGSTPercentage:         "12",
		SettingFreeShippingThreshold: "250.50",
	}))
	require.NoError(t, err)

	assert.Equal(t, "0.12", pricing.GSTRate.String())
	assert.Equal(t, "250.5", pricing.FreeShippingThreshold.String())
}

func TestResolvePricingDefaults(t *testing.T) {
	pricing, err := ResolvePricing(context.Background(), staticLookup(nil))
	require.NoError(t, err)

	assert.Equal(t, "0.18", pricing.GSTRate.String())
	assert.True(t, pricing.FreeShippingThreshold.IsZero())
}

func TestResolvePricingUnparsableValues(t *testing.T) {
	pricing, err := ResolvePricing(context.Background(), staticLookup(map[string]string{
		SettingGSTPercentage:         "eighteen",
		SettingFreeShippingThreshold: "-40",
	}))
	require.NoError(t, err)

	assert.Equal(t, "0.18", pricing.GSTRate.String())
	assert.True(t, pricing.FreeShippingThreshold.IsZero())
}

func TestResolvePricingLookupFailure(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := ResolvePricing(context.Background(), func(context.Context, string) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
}
