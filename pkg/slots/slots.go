// Package slots turns a charging plan, a tariff forecast and a deadline into
// the hourly slots shown by the charging plan preview.
package slots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raterudder/chargeplan/pkg/log"
	"github.com/raterudder/chargeplan/pkg/types"
)

// MaxHorizonHours bounds the number of slots a single request may ask for.
const MaxHorizonHours = types.MaxHorizonHours

// ErrInvalidInput is wrapped by every validation error returned from Build.
var ErrInvalidInput = errors.New("invalid slot request")

// WeekdayLabeler returns the short localized weekday name of t.
type WeekdayLabeler func(t time.Time, locale string) string

// Request holds the inputs of a single slot computation.
type Request struct {
	Start  time.Time
	Target time.Time
	Rates  []types.TariffRate
	Plan   []types.PlanSegment

	// HorizonHours is the number of slots to generate; zero uses the builder
	// default.
	HorizonHours int
	Locale       string
	// Location aligns the hourly grid; nil uses Start's location.
	Location *time.Location
}

// Validate rejects requests that cannot produce a meaningful result. A target
// before the start, no rates or an empty plan are valid.
func (r Request) Validate() error {
	if r.Start.IsZero() {
		return fmt.Errorf("%w: start time is required", ErrInvalidInput)
	}
	if r.Target.IsZero() {
		return fmt.Errorf("%w: target time is required", ErrInvalidInput)
	}
	if r.HorizonHours < 0 || r.HorizonHours > MaxHorizonHours {
		return fmt.Errorf("%w: horizon must be between 0 and %d hours, got %d", ErrInvalidInput, MaxHorizonHours, r.HorizonHours)
	}
	for i, rate := range r.Rates {
		if !rate.Start.IsZero() && !rate.End.IsZero() && !rate.End.After(rate.Start) {
			return fmt.Errorf("%w: rate %d ends at %s before it starts at %s", ErrInvalidInput, i, rate.End.Format(time.RFC3339), rate.Start.Format(time.RFC3339))
		}
	}
	for i, seg := range r.Plan {
		if seg.Start.IsZero() || seg.End.IsZero() {
			return fmt.Errorf("%w: plan segment %d is missing its start or end", ErrInvalidInput, i)
		}
		if !seg.End.After(seg.Start) {
			return fmt.Errorf("%w: plan segment %d ends at %s before it starts at %s", ErrInvalidInput, i, seg.End.Format(time.RFC3339), seg.Start.Format(time.RFC3339))
		}
	}
	return nil
}

// Builder assembles slots. It holds no per-request state and is safe for
// concurrent use.
type Builder struct {
	label        WeekdayLabeler
	horizonHours int
}

// NewBuilder creates a Builder. A nil label falls back to English weekday
// abbreviations and a non-positive horizon to types.DefaultHorizonHours.
func NewBuilder(label WeekdayLabeler, horizonHours int) *Builder {
	if label == nil {
		label = englishWeekday
	}
	if horizonHours <= 0 {
		horizonHours = types.DefaultHorizonHours
	}
	return &Builder{
		label:        label,
		horizonHours: horizonHours,
	}
}

// HorizonHours returns the default number of slots.
func (b *Builder) HorizonHours() int {
	if b.horizonHours <= 0 {
		return types.DefaultHorizonHours
	}
	return b.horizonHours
}

func (b *Builder) labeler() WeekdayLabeler {
	if b.label == nil {
		return englishWeekday
	}
	return b.label
}

// Build returns one slot per hour of the horizon. The whole hour is priced
// at the rate active at its start. Nothing is returned when the request is
// invalid.
func (b *Builder) Build(ctx context.Context, req Request) ([]types.Slot, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	horizon := req.HorizonHours
	if horizon == 0 {
		horizon = b.HorizonHours()
	}
	loc := req.Location
	if loc == nil {
		loc = req.Start.Location()
	}

	label := b.labeler()
	windows := GenerateWindows(req.Start.In(loc), horizon)
	result := make([]types.Slot, 0, len(windows))
	for _, w := range windows {
		startHour := w.Start.Hour()
		result = append(result, types.Slot{
			Start:     w.Start,
			End:       w.End,
			Day:       label(w.Start, req.Locale),
			StartHour: startHour,
			EndHour:   (startHour + 1) % 24,
			Value:     PriceAt(w.Start, req.Rates),
			Charging:  Overlaps(w, req.Plan),
			TooLate:   IsTooLate(w, req.Target),
		})
	}

	log.Ctx(ctx).DebugContext(
		ctx,
		"built charging slots",
		slog.Int("count", len(result)),
		slog.Time("start", FloorHour(req.Start.In(loc))),
		slog.Time("target", req.Target),
		slog.Int("rates", len(req.Rates)),
		slog.Int("segments", len(req.Plan)),
	)
	return result, nil
}

// ParseInstant parses an RFC 3339 instant, with or without fractional
// seconds.
func ParseInstant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not an RFC 3339 instant", ErrInvalidInput, s)
	}
	return t, nil
}

func englishWeekday(t time.Time, _ string) string {
	return t.Weekday().String()[:3]
}
