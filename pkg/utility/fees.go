package utility

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raterudder/chargeplan/pkg/types"
)

const (
	ComEdRateClassSingleFamilyResidenceWithoutElectricSpaceHeat = "singleFamilyWithoutElectricHeat"
	ComEdRateClassSingleFamilyResidenceWithElectricSpaceHeat    = "singleFamilyWithElectricHeat"
)

// SiteFees adds a site's delivery and surcharge fees to a provider's prices.
type SiteFees struct {
	base     UtilityPrices
	siteID   string
	provider string

	mu       sync.Mutex
	periods  []types.TariffFeePeriod
	location *time.Location
}

// NewSiteFees wraps base with the fees of the given settings.
func NewSiteFees(ctx context.Context, base UtilityPrices, settings types.Settings) (*SiteFees, error) {
	s := &SiteFees{
		base:     base,
		provider: settings.UtilityProvider,
	}
	if err := s.ApplySettings(ctx, settings); err != nil {
		return nil, err
	}
	return s, nil
}

// ApplySettings implements the Utility interface
func (s *SiteFees) ApplySettings(ctx context.Context, settings types.Settings) error {
	if u, ok := s.base.(Utility); ok {
		if err := u.ApplySettings(ctx, settings); err != nil {
			return err
		}
	}

	periods := settings.AdditionalFeesPeriods
	loc := ctLocation
	// without custom periods use the defaults of the provider
	switch settings.UtilityProvider {
	case ProviderComEd:
		if settings.UtilityRate != RateComEdBESH {
			return fmt.Errorf("invalid utility rate for ComEd: %s", settings.UtilityRate)
		}
		if periods == nil {
			fees, err := comEdAdditionalFees(settings.UtilityRateOptions)
			if err != nil {
				return err
			}
			periods = fees
		}
	case ProviderTOU:
		loc = etLocation
	default:
		return fmt.Errorf("invalid utility provider: %s", settings.UtilityProvider)
	}
	if settings.Timezone != "" {
		tz, err := time.LoadLocation(settings.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone %s: %w", settings.Timezone, err)
		}
		loc = tz
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.periods = periods
	s.location = loc
	return nil
}

func (s *SiteFees) applyFees(p types.Price) (types.Price, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, period := range s.periods {
		if period.LocationPtr == nil && period.Location == "" {
			period.LocationPtr = s.location
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

func (s *SiteFees) GetCurrentPrice(ctx context.Context) (types.Price, error) {
	p, err := s.base.GetCurrentPrice(ctx)
	if err != nil {
		return types.Price{}, err
	}
	return s.applyFees(p)
}

func (s *SiteFees) GetFuturePrices(ctx context.Context) ([]types.Price, error) {
	prices, err := s.base.GetFuturePrices(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.Price, len(prices))
	for i, p := range prices {
		out[i], err = s.applyFees(p)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// comEdAdditionalFees returns the delivery charges of a ComEd residential
// rate class.
func comEdAdditionalFees(opts types.UtilityRateOptions) ([]types.TariffFeePeriod, error) {
	var delivery float64
	switch opts.RateClass {
	case ComEdRateClassSingleFamilyResidenceWithoutElectricSpaceHeat, "":
		delivery = 0.05
	case ComEdRateClassSingleFamilyResidenceWithElectricSpaceHeat:
		delivery = 0.03
	default:
		return nil, fmt.Errorf("invalid comed rate class: %s", opts.RateClass)
	}
	weekdays := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	return []types.TariffFeePeriod{
		{
			TariffPeriod:   types.TariffPeriod{HourStart: 0, HourEnd: 24},
			DollarsPerKWH:  delivery,
			GridAdditional: true,
			Description:    "Distribution Facilities Charge",
		},
		{
			TariffPeriod: types.TariffPeriod{
				HourStart:     13,
				HourEnd:       19,
				DaysOfTheWeek: weekdays,
			},
			DollarsPerKWH:  0.01,
			GridAdditional: true,
			Description:    "Summer Peak Capacity",
		},
		{
			TariffPeriod:  types.TariffPeriod{HourStart: 0, HourEnd: 24},
			DollarsPerKWH: 0.0075,
			Description:   "Purchased Electricity Adjustment",
		},
	}, nil
}
