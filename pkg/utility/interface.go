package utility

import (
	"context"

	"github.com/raterudder/chargeplan/pkg/types"
)

// UtilityPrices is the price feed of a provider.
type UtilityPrices interface {
	// GetCurrentPrice returns the price of the current hour.
	GetCurrentPrice(ctx context.Context) (types.Price, error)

	// GetFuturePrices returns the known prices after the current hour.
	GetFuturePrices(ctx context.Context) ([]types.Price, error)
}

// Utility is a price feed configured for a single site.
type Utility interface {
	UtilityPrices

	// ApplySettings updates the provider using the site's settings.
	ApplySettings(ctx context.Context, settings types.Settings) error
}
