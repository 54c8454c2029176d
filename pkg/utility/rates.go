package utility

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/raterudder/chargeplan/pkg/types"
)

// Forecast returns the current hour followed by the known future prices,
// sorted by start. A future price for the current hour is replaced by the
// current price.
func Forecast(ctx context.Context, u UtilityPrices) ([]types.Price, error) {
	current, err := u.GetCurrentPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current price: %w", err)
	}
	future, err := u.GetFuturePrices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get future prices: %w", err)
	}

	prices := make([]types.Price, 0, len(future)+1)
	prices = append(prices, current)
	for _, p := range future {
		if p.TSStart.Equal(current.TSStart) {
			continue
		}
		prices = append(prices, p)
	}
	sort.SliceStable(prices, func(i, j int) bool {
		return prices[i].TSStart.Before(prices[j].TSStart)
	})
	return prices, nil
}

// Rates converts provider prices into tariff rates. Grid delivery fees are
// included when includeGrid is set.
func Rates(prices []types.Price, includeGrid bool) []types.TariffRate {
	rates := make([]types.TariffRate, 0, len(prices))
	for _, p := range prices {
		if p.TSStart.IsZero() {
			continue
		}
		end := p.TSEnd
		if !end.After(p.TSStart) {
			end = p.TSStart.Add(time.Hour)
		}
		v := p.DollarsPerKWH
		if includeGrid {
			v += p.GridUseDollarsPerKWH
		}
		rates = append(rates, types.TariffRate{
			Start: p.TSStart,
			End:   end,
			Value: v,
		})
	}
	sort.SliceStable(rates, func(i, j int) bool {
		return rates[i].Start.Before(rates[j].Start)
	})
	return rates
}
