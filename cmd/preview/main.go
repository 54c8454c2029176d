package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"
	_ "time/tzdata"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/chargeplan/pkg/locale"
	"github.com/raterudder/chargeplan/pkg/log"
	"github.com/raterudder/chargeplan/pkg/slots"
	"github.com/raterudder/chargeplan/pkg/types"
)

// input is the file read by the preview. Times are RFC 3339 instants.
type input struct {
	Start  string              `json:"start"`
	Target string              `json:"target"`
	Rates  []types.TariffRate  `json:"rates"`
	Plan   []types.PlanSegment `json:"plan"`
}

func main() {
	file := lflag.String("file", "-", "JSON file with start, target, rates and plan (- reads stdin)")
	lang := lflag.String("locale", "en-US", "Locale of the weekday labels")
	horizon := lflag.Duration("horizon", 0, "Span of the preview in whole hours (0 uses the default)")
	timezone := lflag.String("timezone", "", "IANA timezone the hourly grid is aligned to (empty uses the start offset)")
	lflag.Configure()

	ctx := context.Background()
	if err := run(ctx, os.Stdout, *file, *lang, *horizon, *timezone); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "preview failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, w io.Writer, file, lang string, horizon time.Duration, timezone string) error {
	if horizon < 0 || horizon%time.Hour != 0 {
		return fmt.Errorf("invalid horizon %s: must be a whole number of hours", horizon)
	}

	var r io.Reader = os.Stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	var in input
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return fmt.Errorf("failed to decode input: %w", err)
	}

	start, err := slots.ParseInstant(in.Start)
	if err != nil {
		return fmt.Errorf("invalid start: %w", err)
	}
	target, err := slots.ParseInstant(in.Target)
	if err != nil {
		return fmt.Errorf("invalid target: %w", err)
	}
	var loc *time.Location
	if timezone != "" {
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone: %w", err)
		}
	}

	b := slots.NewBuilder(locale.WeekdayShort, 0)
	result, err := b.Build(ctx, slots.Request{
		Start:        start,
		Target:       target,
		Rates:        in.Rates,
		Plan:         in.Plan,
		HorizonHours: int(horizon / time.Hour),
		Locale:       lang,
		Location:     loc,
	})
	if err != nil {
		return err
	}
	return printSlots(w, result, slots.Summarize(in.Plan, target))
}

func printSlots(w io.Writer, result []types.Slot, summary types.PlanSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tHOURS\tPRICE\tCHARGING\tTOO LATE")
	for _, s := range result {
		price := "-"
		if s.Value != nil {
			price = fmt.Sprintf("%.4f", *s.Value)
		}
		fmt.Fprintf(tw, "%s\t%02d-%02d\t%s\t%s\t%s\n", s.Day, s.StartHour, s.EndHour, price, mark(s.Charging), mark(s.TooLate))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	avg := "-"
	if summary.AvgPrice != nil {
		avg = fmt.Sprintf("%.4f", *summary.AvgPrice)
	}
	_, err := fmt.Fprintf(w, "\ncharging %s, average price %s, overrun %t\n", summary.Duration, avg, summary.Overrun)
	return err
}

func mark(b bool) string {
	if b {
		return "x"
	}
	return ""
}
