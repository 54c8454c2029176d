package locale

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWeekdayShort(t *testing.T) {
	// 2023-01-11 is a Wednesday
	wed := time.Date(2023, 1, 11, 11, 0, 0, 0, time.UTC)
	thu := wed.AddDate(0, 0, 1)

	tests := []struct {
		locale string
		day    time.Time
		want   string
	}{
		{"de-DE", wed, "Mi"},
		{"de-DE", thu, "Do"},
		{"de-AT", wed, "Mi"},
		{"de", thu, "Do"},
		{"en-US", wed, "Wed"},
		{"en-GB", thu, "Thu"},
		{"fr-CH", wed, "mer."},
		{"nl", wed, "wo"},
		{"", wed, "Wed"},
		{"not a locale!", wed, "Wed"},
	}
	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			assert.Equal(t, tt.want, WeekdayShort(tt.day, tt.locale))
		})
	}
}

func TestWeekdayShortUsesLocalWeekday(t *testing.T) {
	// 23:30 UTC on Wednesday is already Thursday in Berlin
	berlin := time.FixedZone("CET", 3600)
	ts := time.Date(2023, 1, 11, 23, 30, 0, 0, time.UTC).In(berlin)
	assert.Equal(t, "Do", WeekdayShort(ts, "de-DE"))
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("de-DE"))
	assert.True(t, Supported("en"))
	assert.False(t, Supported("!!"))
}
