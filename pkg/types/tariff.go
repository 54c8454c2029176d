package types

import (
	"fmt"
	"time"
)

// UtilityProviderInfo provides metadata about a utility provider.
type UtilityProviderInfo struct {
	ID    string            `json:"id"`
	Name  string            `json:"name"`
	Rates []UtilityRateInfo `json:"rates"`
}

// UtilityRateInfo provides metadata about a specific utility rate.
type UtilityRateInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Price represents the cost of electricity reported by a utility provider for
// a time interval.
type Price struct {
	Provider string    `json:"provider"`
	TSStart  time.Time `json:"tsStart"`
	TSEnd    time.Time `json:"tsEnd"`

	// DollarsPerKWH is the base cost of electricity in the time interval.
	DollarsPerKWH float64 `json:"dollarsPerKWH"`

	// GridUseDollarsPerKWH is the delivery cost added on top of the base price
	// when drawing from the grid.
	GridUseDollarsPerKWH float64 `json:"gridUseDollarsPerKWH"`

	SampleCount int `json:"-"`
}

// TariffRate is a constant unit price over [Start, End). A zero End leaves the
// rate open-ended.
type TariffRate struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Value float64   `json:"value"`
}

// Covers reports whether t falls inside the rate.
func (r TariffRate) Covers(t time.Time) bool {
	if t.Before(r.Start) {
		return false
	}
	return r.End.IsZero() || t.Before(r.End)
}

// TariffPeriod is a recurring wall-clock window (hours of the day, optionally
// limited to weekdays and a date range) used by schedule based tariffs.
type TariffPeriod struct {
	Start         time.Time      `json:"start"`
	End           time.Time      `json:"end"`
	HourStart     int            `json:"hourStart"`
	HourEnd       int            `json:"hourEnd"`
	DaysOfTheWeek []time.Weekday `json:"daysOfTheWeek"`
	Location      string         `json:"location"`
	LocationPtr   *time.Location `json:"-"`
}

// Contains checks if t is within the period. End is exclusive.
func (p *TariffPeriod) Contains(t time.Time) (bool, error) {
	switch {
	case p.LocationPtr != nil:
		t = t.In(p.LocationPtr)
	case p.Location != "":
		loc, err := time.LoadLocation(p.Location)
		if err != nil {
			return false, fmt.Errorf("failed to load location %s: %w", p.Location, err)
		}
		t = t.In(loc)
	}
	if !p.Start.IsZero() && t.Before(p.Start) {
		return false, nil
	}
	if !p.End.IsZero() && !t.Before(p.End) {
		return false, nil
	}
	if h := t.Hour(); h < p.HourStart || h >= p.HourEnd {
		return false, nil
	}
	if len(p.DaysOfTheWeek) == 0 {
		return true, nil
	}
	dow := t.Weekday()
	for _, d := range p.DaysOfTheWeek {
		if d == dow {
			return true, nil
		}
	}
	return false, nil
}

// TariffFeePeriod is a period during which an additional per-kWh fee applies.
type TariffFeePeriod struct {
	TariffPeriod
	DollarsPerKWH float64 `json:"dollarsPerKWH"`
	// GridAdditional adds the fee to GridUseDollarsPerKWH instead of the base
	// price.
	GridAdditional bool   `json:"gridAdditional"`
	Description    string `json:"description"`
}
