package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/chargeplan/pkg/log"
	"github.com/raterudder/chargeplan/pkg/storage"
	"github.com/raterudder/chargeplan/pkg/types"
	"github.com/raterudder/chargeplan/pkg/utility"
)

func main() {
	os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	s := storage.Configured()
	siteID := lflag.String("site-id", types.SiteIDNone, "Site to seed")
	owner := lflag.String("owner", "dev@example.com", "Email address allowed to manage the seeded site")
	lflag.Configure()

	ctx := context.Background()
	defer s.Close()

	log.Ctx(ctx).InfoContext(ctx, "seeding mock data")

	if err := s.UpdateSite(ctx, *siteID, types.Site{
		ID:          *siteID,
		Name:        "Demo Garage",
		Permissions: []types.SitePermissions{{UserID: *owner}},
	}); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to seed site", "error", err)
		os.Exit(1)
	}

	settings := types.Settings{
		UtilityProvider: utility.ProviderTOU,
		UtilityRate:     utility.RateTOUSample,
		IncludeGridFees: true,
		Locale:          "en-US",
		Timezone:        "America/New_York",
		HorizonHours:    types.DefaultHorizonHours,
	}
	if err := s.SetSettings(ctx, *siteID, settings, types.CurrentSettingsVersion); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to seed settings", "error", err)
		os.Exit(1)
	}

	// charge in the two cheapest night blocks before tomorrow morning
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to load timezone", "error", err)
		os.Exit(1)
	}
	now := time.Now().In(loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, loc)
	plan := types.ChargingPlan{
		TargetTime: midnight.Add(7 * time.Hour),
		Segments: []types.PlanSegment{
			{Start: midnight.Add(time.Hour), End: midnight.Add(2*time.Hour + 30*time.Minute), Value: 0.01},
			{Start: midnight.Add(4 * time.Hour), End: midnight.Add(5 * time.Hour), Value: 0.01},
		},
		UpdatedAt: now,
	}
	if err := s.SetChargingPlan(ctx, *siteID, plan); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to seed plan", "error", err)
		os.Exit(1)
	}

	for _, seg := range plan.Segments {
		fmt.Printf("Seeded segment %s - %s ($%.3f)\n", seg.Start.Format(time.Kitchen), seg.End.Format(time.Kitchen), seg.Value)
	}
	fmt.Printf("Target %s\n", plan.TargetTime.Format(time.RFC1123))

	log.Ctx(ctx).InfoContext(ctx, "seeded mock data successfully")
}
