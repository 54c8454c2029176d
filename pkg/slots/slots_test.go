package slots

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/raterudder/chargeplan/pkg/locale"
	"github.com/raterudder/chargeplan/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cet = time.FixedZone("CET", 3600)

func at(day, hour, minute int) time.Time {
	return time.Date(2023, 1, day, hour, minute, 0, 0, cet)
}

func TestBuildFixedTariff(t *testing.T) {
	b := NewBuilder(locale.WeekdayShort, 0)
	result, err := b.Build(context.Background(), Request{
		Start:  at(11, 11, 0),
		Target: at(11, 13, 0),
		Rates: []types.TariffRate{
			{Start: at(11, 11, 0), End: at(22, 0, 0), Value: 0.4},
		},
		Plan: []types.PlanSegment{
			{Start: at(11, 12, 0), End: at(11, 13, 0), Value: 0.2},
		},
		Locale: "de-DE",
	})
	require.NoError(t, err)

	t.Run("default horizon", func(t *testing.T) {
		assert.Len(t, result, 39)
	})

	t.Run("slots are an hour apart", func(t *testing.T) {
		assert.Equal(t, 11, result[0].StartHour)
		assert.Equal(t, 12, result[0].EndHour)
		assert.Equal(t, "Mi", result[0].Day)

		assert.Equal(t, 12, result[1].StartHour)
		assert.Equal(t, 13, result[1].EndHour)
		assert.Equal(t, "Mi", result[1].Day)

		assert.Equal(t, 22, result[11].StartHour)
		assert.Equal(t, 23, result[11].EndHour)
		assert.Equal(t, "Mi", result[11].Day)

		assert.Equal(t, 23, result[12].StartHour)
		assert.Equal(t, 0, result[12].EndHour)

		assert.Equal(t, 11, result[24].StartHour)
		assert.Equal(t, 12, result[24].EndHour)
		assert.Equal(t, "Do", result[24].Day)

		for i := 1; i < len(result); i++ {
			assert.True(t, result[i].Start.Equal(result[i-1].Start.Add(time.Hour)), "slot %d not contiguous", i)
			assert.True(t, result[i].Start.Equal(result[i-1].End), "slot %d not contiguous", i)
		}
	})

	t.Run("slots at or after target are too late", func(t *testing.T) {
		assert.False(t, result[0].TooLate)
		assert.False(t, result[1].TooLate)
		assert.True(t, result[2].TooLate)
		assert.True(t, result[3].TooLate)
		assert.True(t, result[38].TooLate)
	})

	t.Run("charging only in planned hour", func(t *testing.T) {
		for i, slot := range result {
			assert.Equal(t, i == 1, slot.Charging, "slot %d", i)
		}
	})

	t.Run("fixed value everywhere", func(t *testing.T) {
		for i, slot := range result {
			require.NotNil(t, slot.Value, "slot %d", i)
			assert.Equal(t, 0.4, *slot.Value)
		}
	})
}

func TestBuildZonedTariff(t *testing.T) {
	b := NewBuilder(locale.WeekdayShort, 0)
	result, err := b.Build(context.Background(), Request{
		Start:  at(11, 11, 0),
		Target: at(11, 16, 0),
		Rates: []types.TariffRate{
			{Start: at(11, 11, 0), End: at(11, 12, 0), Value: 0.2},
			{Start: at(11, 12, 0), End: at(22, 0, 0), Value: 0.4},
		},
		Plan: []types.PlanSegment{
			{Start: at(11, 11, 30), End: at(11, 13, 0), Value: 0.3},
			{Start: at(11, 14, 30), End: at(11, 16, 0), Value: 0.2},
		},
		Locale: "de-DE",
	})
	require.NoError(t, err)
	require.Len(t, result, 39)

	t.Run("multiple charging segments", func(t *testing.T) {
		assert.True(t, result[0].Charging)
		assert.True(t, result[1].Charging)
		assert.False(t, result[2].Charging)
		assert.True(t, result[3].Charging)
		assert.True(t, result[4].Charging)
		assert.False(t, result[5].Charging)
	})

	t.Run("first slot is cheap, others are expensive", func(t *testing.T) {
		first, others := result[0], result[1:]
		require.NotNil(t, first.Value)
		assert.Equal(t, 0.2, *first.Value)
		for _, slot := range others {
			require.NotNil(t, slot.Value)
			assert.Equal(t, 0.4, *slot.Value)
		}
	})

	t.Run("deadline boundary", func(t *testing.T) {
		assert.False(t, result[4].TooLate, "15:00 starts before the 16:00 target")
		assert.True(t, result[5].TooLate, "16:00 starts at the target")
	})
}

func TestBuildFloorsStart(t *testing.T) {
	b := NewBuilder(nil, 3)
	result, err := b.Build(context.Background(), Request{
		Start:  at(11, 11, 7),
		Target: at(11, 13, 0),
	})
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.Equal(t, at(11, 11, 0), result[0].Start)
	assert.Equal(t, "Wed", result[0].Day)
}

func TestBuildZeroValueBuilder(t *testing.T) {
	var b Builder
	assert.Equal(t, types.DefaultHorizonHours, b.HorizonHours())

	result, err := b.Build(context.Background(), Request{
		Start:  at(11, 11, 0),
		Target: at(11, 13, 0),
	})
	require.NoError(t, err)
	require.Len(t, result, types.DefaultHorizonHours)
	assert.Equal(t, "Wed", result[0].Day)
}

func TestMaxHorizonMatchesSettings(t *testing.T) {
	assert.Equal(t, types.MaxHorizonHours, MaxHorizonHours)
	assert.NoError(t, types.Settings{HorizonHours: MaxHorizonHours}.Validate())
	assert.Error(t, types.Settings{HorizonHours: MaxHorizonHours + 1}.Validate())
}

func TestBuildMalformedButValid(t *testing.T) {
	b := NewBuilder(locale.WeekdayShort, 0)

	t.Run("target before start", func(t *testing.T) {
		result, err := b.Build(context.Background(), Request{
			Start:        at(11, 11, 0),
			Target:       at(10, 11, 0),
			HorizonHours: 5,
		})
		require.NoError(t, err)
		require.Len(t, result, 5)
		for _, slot := range result {
			assert.True(t, slot.TooLate)
		}
	})

	t.Run("empty rates and plan", func(t *testing.T) {
		result, err := b.Build(context.Background(), Request{
			Start:        at(11, 11, 0),
			Target:       at(11, 13, 0),
			HorizonHours: 5,
		})
		require.NoError(t, err)
		require.Len(t, result, 5)
		for _, slot := range result {
			assert.Nil(t, slot.Value)
			assert.False(t, slot.Charging)
		}
	})

	t.Run("gap between tariff zones", func(t *testing.T) {
		result, err := b.Build(context.Background(), Request{
			Start:  at(11, 11, 0),
			Target: at(11, 13, 0),
			Rates: []types.TariffRate{
				{Start: at(11, 11, 0), End: at(11, 12, 0), Value: 0.2},
				{Start: at(11, 14, 0), End: at(11, 16, 0), Value: 0.3},
			},
			HorizonHours: 6,
		})
		require.NoError(t, err)
		require.NotNil(t, result[0].Value)
		assert.Equal(t, 0.2, *result[0].Value)
		assert.Nil(t, result[1].Value)
		assert.Nil(t, result[2].Value)
		require.NotNil(t, result[3].Value)
		assert.Equal(t, 0.3, *result[3].Value)
		require.NotNil(t, result[4].Value)
		assert.Nil(t, result[5].Value)
	})
}

func TestBuildInvalidInput(t *testing.T) {
	b := NewBuilder(nil, 0)
	valid := Request{Start: at(11, 11, 0), Target: at(11, 13, 0)}

	tests := []struct {
		name   string
		modify func(r *Request)
		errMsg string
	}{
		{"missing start", func(r *Request) { r.Start = time.Time{} }, "start time is required"},
		{"missing target", func(r *Request) { r.Target = time.Time{} }, "target time is required"},
		{"negative horizon", func(r *Request) { r.HorizonHours = -1 }, "horizon must be between"},
		{"huge horizon", func(r *Request) { r.HorizonHours = MaxHorizonHours + 1 }, "horizon must be between"},
		{"inverted rate", func(r *Request) {
			r.Rates = []types.TariffRate{{Start: at(11, 12, 0), End: at(11, 11, 0)}}
		}, "rate 0 ends"},
		{"open segment", func(r *Request) {
			r.Plan = []types.PlanSegment{{Start: at(11, 12, 0)}}
		}, "plan segment 0 is missing"},
		{"empty segment", func(r *Request) {
			r.Plan = []types.PlanSegment{
				{Start: at(11, 11, 0), End: at(11, 12, 0)},
				{Start: at(11, 12, 0), End: at(11, 12, 0)},
			}
		}, "plan segment 1 ends"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.modify(&req)
			result, err := b.Build(context.Background(), req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.Nil(t, result)
		})
	}
}

func TestBuildDeterministic(t *testing.T) {
	b := NewBuilder(locale.WeekdayShort, 0)
	req := Request{
		Start:  at(11, 11, 0),
		Target: at(11, 16, 0),
		Rates: []types.TariffRate{
			{Start: at(11, 11, 0), End: at(11, 12, 0), Value: 0.2},
			{Start: at(11, 12, 0), Value: 0.4},
		},
		Plan: []types.PlanSegment{
			{Start: at(11, 14, 30), End: at(11, 16, 0)},
		},
		Locale: "de-DE",
	}
	first, err := b.Build(context.Background(), req)
	require.NoError(t, err)
	second, err := b.Build(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuildLaterStartShiftsWindows(t *testing.T) {
	b := NewBuilder(locale.WeekdayShort, 0)
	req := Request{
		Start:  at(11, 11, 0),
		Target: at(11, 16, 0),
		Rates: []types.TariffRate{
			{Start: at(11, 11, 0), End: at(11, 12, 0), Value: 0.2},
			{Start: at(11, 12, 0), End: at(22, 0, 0), Value: 0.4},
		},
		Plan: []types.PlanSegment{
			{Start: at(11, 11, 30), End: at(11, 13, 0)},
			{Start: at(11, 14, 30), End: at(11, 16, 0)},
		},
		Locale: "de-DE",
	}
	before, err := b.Build(context.Background(), req)
	require.NoError(t, err)

	req.Start = at(11, 12, 45)
	after, err := b.Build(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, after, len(before))

	assert.Equal(t, at(11, 12, 0), after[0].Start)
	for i := 0; i+1 < len(before); i++ {
		// everything except the horizon edge moves by one slot
		assert.Equal(t, before[i+1], after[i])
	}
}

func TestBuildAcrossDST(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	b := NewBuilder(locale.WeekdayShort, 4)

	t.Run("fall back repeats the 2 o'clock hour", func(t *testing.T) {
		// clocks go back from 03:00 CEST to 02:00 CET on 2023-10-29
		start := time.Date(2023, 10, 29, 1, 0, 0, 0, berlin)
		result, err := b.Build(context.Background(), Request{
			Start:  start,
			Target: start.Add(24 * time.Hour),
			Locale: "de-DE",
		})
		require.NoError(t, err)
		hours := make([]int, len(result))
		for i, slot := range result {
			hours[i] = slot.StartHour
			assert.Equal(t, time.Hour, slot.End.Sub(slot.Start))
		}
		assert.Equal(t, []int{1, 2, 2, 3}, hours)
	})

	t.Run("spring forward skips the 2 o'clock hour", func(t *testing.T) {
		// clocks go forward from 02:00 CET to 03:00 CEST on 2023-03-26
		start := time.Date(2023, 3, 26, 0, 0, 0, 0, berlin)
		result, err := b.Build(context.Background(), Request{
			Start:  start,
			Target: start.Add(24 * time.Hour),
			Locale: "de-DE",
		})
		require.NoError(t, err)
		hours := make([]int, len(result))
		for i, slot := range result {
			hours[i] = slot.StartHour
		}
		assert.Equal(t, []int{0, 1, 3, 4}, hours)
	})

	t.Run("location overrides start zone", func(t *testing.T) {
		start := time.Date(2023, 1, 11, 10, 0, 0, 0, time.UTC)
		result, err := b.Build(context.Background(), Request{
			Start:    start,
			Target:   start.Add(time.Hour),
			Location: berlin,
			Locale:   "de-DE",
		})
		require.NoError(t, err)
		assert.Equal(t, 11, result[0].StartHour)
		assert.Equal(t, berlin, result[0].Start.Location())
	})
}

func TestParseInstant(t *testing.T) {
	ts, err := ParseInstant("2023-01-11T11:00:00+01:00")
	require.NoError(t, err)
	assert.True(t, ts.Equal(at(11, 11, 0)))

	ts, err = ParseInstant("2023-01-11T10:00:00.500Z")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, time.Duration(ts.Nanosecond()))

	_, err = ParseInstant("yesterday")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorContains(t, err, `"yesterday"`)
}
