package slots

import (
	"time"
)

// Window is a half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// FloorHour returns the start of the wall-clock hour containing t in t's
// location. Minutes and seconds are subtracted instead of truncating the
// absolute time so zones with half-hour offsets floor correctly.
func FloorHour(t time.Time) time.Time {
	offset := time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
	return t.Add(-offset)
}

// GenerateWindows returns horizonHours contiguous one hour windows starting at
// the hour containing start. Windows advance in absolute time so a DST change
// never yields a zero or two hour window; the wall-clock hour is read from the
// window start in start's location.
func GenerateWindows(start time.Time, horizonHours int) []Window {
	if horizonHours <= 0 {
		return nil
	}
	windows := make([]Window, 0, horizonHours)
	cursor := FloorHour(start)
	for i := 0; i < horizonHours; i++ {
		next := cursor.Add(time.Hour)
		windows = append(windows, Window{Start: cursor, End: next})
		cursor = next
	}
	return windows
}
