package types

import (
	"fmt"
	"time"
)

// PlanSegment is a contiguous period during which the charging plan intends
// to draw power. Value is the price observed when the plan was made and is
// not used to price slots.
type PlanSegment struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Value float64   `json:"value"`
}

// ChargingPlan is the plan stored for a site, produced by an upstream planner.
type ChargingPlan struct {
	TargetTime time.Time     `json:"targetTime"`
	Segments   []PlanSegment `json:"segments"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// Slot is one wall-clock hour of the charging preview.
type Slot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Day       string    `json:"day"`
	StartHour int       `json:"startHour"`
	EndHour   int       `json:"endHour"`
	// Value is nil when no tariff covers the start of the slot.
	Value    *float64 `json:"value"`
	Charging bool     `json:"charging"`
	TooLate  bool     `json:"toLate"`
}

// PlanSummary aggregates a charging plan for display next to the slots.
type PlanSummary struct {
	Duration time.Duration `json:"duration"`
	// AvgPrice is the duration weighted average of the segment values, nil for
	// an empty plan.
	AvgPrice *float64  `json:"avgPrice"`
	PlanEnd  time.Time `json:"planEnd"`
	// Overrun is true when the plan finishes after the target time.
	Overrun bool `json:"overrun"`
}

// Validate checks that the plan has a target and well formed segments.
func (p ChargingPlan) Validate() error {
	if p.TargetTime.IsZero() {
		return fmt.Errorf("targetTime is required")
	}
	for i, seg := range p.Segments {
		if seg.Start.IsZero() || seg.End.IsZero() {
			return fmt.Errorf("segment %d is missing its start or end", i)
		}
		if !seg.End.After(seg.Start) {
			return fmt.Errorf("segment %d must end after it starts", i)
		}
	}
	return nil
}
