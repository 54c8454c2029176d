package utility

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raterudder/chargeplan/pkg/types"
)

// genericTOU prices every hour from a fixed time-of-use schedule.
type genericTOU struct {
	mu       sync.Mutex
	periods  []types.TariffFeePeriod
	location *time.Location
}

func (t *genericTOU) ApplySettings(ctx context.Context, settings types.Settings) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if settings.UtilityRate != RateTOUSample {
		return fmt.Errorf("unsupported tou rate: %s", settings.UtilityRate)
	}

	t.location = etLocation
	if settings.Timezone != "" {
		loc, err := time.LoadLocation(settings.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone %s: %w", settings.Timezone, err)
		}
		t.location = loc
	}
	t.periods = []types.TariffFeePeriod{
		{
			TariffPeriod:  types.TariffPeriod{HourStart: 0, HourEnd: 6},
			DollarsPerKWH: 0.01,
			Description:   "Night",
		},
		{
			TariffPeriod:  types.TariffPeriod{HourStart: 6, HourEnd: 12},
			DollarsPerKWH: 0.02,
			Description:   "Morning",
		},
		{
			TariffPeriod:  types.TariffPeriod{HourStart: 12, HourEnd: 24},
			DollarsPerKWH: 0.10,
			Description:   "Afternoon/Evening",
		},
	}
	return nil
}

func (t *genericTOU) priceForTime(target time.Time) (types.Price, error) {
	t.mu.Lock()
	periods := t.periods
	loc := t.location
	t.mu.Unlock()

	if loc != nil {
		target = target.In(loc)
	}

	// start of the hour in the schedule's location
	start := target.Add(-time.Duration(target.Minute())*time.Minute -
		time.Duration(target.Second())*time.Second -
		time.Duration(target.Nanosecond()))

	p := types.Price{
		Provider: ProviderTOU,
		TSStart:  start,
		TSEnd:    start.Add(time.Hour),
	}
	for _, period := range periods {
		if period.LocationPtr == nil && period.Location == "" {
			period.LocationPtr = loc
		}
		contains, err := period.Contains(p.TSStart)
		if err != nil {
			return p, err
		}
		if !contains {
			continue
		}
		if period.GridAdditional {
			p.GridUseDollarsPerKWH += period.DollarsPerKWH
		} else {
			p.DollarsPerKWH += period.DollarsPerKWH
		}
	}
	return p, nil
}

func (t *genericTOU) GetCurrentPrice(ctx context.Context) (types.Price, error) {
	return t.priceForTime(time.Now())
}

// GetFuturePrices returns the next 48 hourly prices.
func (t *genericTOU) GetFuturePrices(ctx context.Context) ([]types.Price, error) {
	return t.pricesAfter(time.Now(), 48)
}

func (t *genericTOU) pricesAfter(now time.Time, hours int) ([]types.Price, error) {
	current, err := t.priceForTime(now)
	if err != nil {
		return nil, err
	}
	prices := make([]types.Price, 0, hours)
	cursor := current.TSEnd
	for i := 0; i < hours; i++ {
		p, err := t.priceForTime(cursor)
		if err != nil {
			return nil, err
		}
		prices = append(prices, p)
		cursor = p.TSEnd
	}
	return prices, nil
}
