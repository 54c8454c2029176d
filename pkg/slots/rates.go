package slots

import (
	"time"

	"github.com/raterudder/chargeplan/pkg/types"
)

// PriceAt returns the value of the rate active at t, or nil when no rate
// covers t. If several rates cover t the one with the latest start wins.
// Callers must treat nil as an unknown tariff, not as a free one.
func PriceAt(t time.Time, rates []types.TariffRate) *float64 {
	var found *types.TariffRate
	for i := range rates {
		r := &rates[i]
		if !r.Covers(t) {
			continue
		}
		if found == nil || r.Start.After(found.Start) {
			found = r
		}
	}
	if found == nil {
		return nil
	}
	v := found.Value
	return &v
}
