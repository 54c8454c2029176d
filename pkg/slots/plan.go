package slots

import (
	"sort"
	"time"

	"github.com/raterudder/chargeplan/pkg/types"
)

// Overlaps reports whether any segment intersects the window. Touching
// boundaries do not count.
func Overlaps(w Window, segments []types.PlanSegment) bool {
	for _, seg := range segments {
		if seg.Start.Before(w.End) && seg.End.After(w.Start) {
			return true
		}
	}
	return false
}

// IsTooLate reports whether the window starts at or after the target time.
func IsTooLate(w Window, target time.Time) bool {
	return !w.Start.Before(target)
}

// Summarize aggregates the plan segments for display next to the slots.
// Time covered by several segments is counted once, at the value of the
// earliest starting segment.
func Summarize(plan []types.PlanSegment, target time.Time) types.PlanSummary {
	segs := make([]types.PlanSegment, len(plan))
	copy(segs, plan)
	sort.SliceStable(segs, func(i, j int) bool {
		return segs[i].Start.Before(segs[j].Start)
	})

	var sum types.PlanSummary
	var weighted float64
	var covered time.Time
	for _, seg := range segs {
		if !seg.End.After(seg.Start) {
			continue
		}
		start := seg.Start
		if start.Before(covered) {
			start = covered
		}
		if seg.End.After(start) {
			d := seg.End.Sub(start)
			sum.Duration += d
			weighted += seg.Value * d.Hours()
		}
		if seg.End.After(covered) {
			covered = seg.End
		}
		if seg.End.After(sum.PlanEnd) {
			sum.PlanEnd = seg.End
		}
	}
	if sum.Duration > 0 {
		avg := weighted / sum.Duration.Hours()
		sum.AvgPrice = &avg
	}
	sum.Overrun = !target.IsZero() && sum.PlanEnd.After(target)
	return sum
}
