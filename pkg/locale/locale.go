// Package locale provides the short weekday names shown on charging slots.
package locale

import (
	"time"

	"golang.org/x/text/language"
)

// weekdays are indexed by time.Weekday, starting on Sunday.
var weekdays = []struct {
	tag   language.Tag
	names [7]string
}{
	// English first so it wins when nothing else matches.
	{language.English, [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}},
	{language.German, [7]string{"So", "Mo", "Di", "Mi", "Do", "Fr", "Sa"}},
	{language.French, [7]string{"dim.", "lun.", "mar.", "mer.", "jeu.", "ven.", "sam."}},
	{language.Dutch, [7]string{"zo", "ma", "di", "wo", "do", "vr", "za"}},
	{language.Italian, [7]string{"dom", "lun", "mar", "mer", "gio", "ven", "sab"}},
	{language.Spanish, [7]string{"dom", "lun", "mar", "mié", "jue", "vie", "sáb"}},
	{language.Danish, [7]string{"søn.", "man.", "tirs.", "ons.", "tors.", "fre.", "lør."}},
	{language.Swedish, [7]string{"sön", "mån", "tis", "ons", "tors", "fre", "lör"}},
	{language.Polish, [7]string{"niedz.", "pon.", "wt.", "śr.", "czw.", "pt.", "sob."}},
	{language.Portuguese, [7]string{"dom.", "seg.", "ter.", "qua.", "qui.", "sex.", "sáb."}},
	{language.Czech, [7]string{"ne", "po", "út", "st", "čt", "pá", "so"}},
}

var matcher = func() language.Matcher {
	tags := make([]language.Tag, len(weekdays))
	for i, w := range weekdays {
		tags[i] = w.tag
	}
	return language.NewMatcher(tags)
}()

// WeekdayShort returns the abbreviated weekday of t for a BCP 47 locale such
// as "de-DE". Unknown or malformed locales fall back to English.
func WeekdayShort(t time.Time, locale string) string {
	return weekdays[match(locale)].names[t.Weekday()]
}

// Supported reports whether the locale maps to a language other than the
// English fallback, or is English itself.
func Supported(locale string) bool {
	tag, err := language.Parse(locale)
	if err != nil {
		return false
	}
	_, _, confidence := matcher.Match(tag)
	return confidence != language.No
}

func match(locale string) int {
	if locale == "" {
		return 0
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return 0
	}
	_, idx, confidence := matcher.Match(tag)
	if confidence == language.No {
		return 0
	}
	return idx
}
