package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/chargeplan/pkg/types"
)

var (
	ErrSiteNotFound = errors.New("site not found")
	ErrPlanNotFound = errors.New("charging plan not found")
)

// Database defines the interface for persisting sites, their settings and
// their charging plans.
type Database interface {
	// Settings
	GetSettings(ctx context.Context, siteID string) (types.Settings, int, error)
	SetSettings(ctx context.Context, siteID string, settings types.Settings, version int) error

	// Charging Plans
	GetChargingPlan(ctx context.Context, siteID string) (types.ChargingPlan, error)
	SetChargingPlan(ctx context.Context, siteID string, plan types.ChargingPlan) error
	DeleteChargingPlan(ctx context.Context, siteID string) error

	// Sites
	GetSite(ctx context.Context, siteID string) (types.Site, error)
	ListSites(ctx context.Context) ([]types.Site, error)
	UpdateSite(ctx context.Context, siteID string, site types.Site) error

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore)")

	var p struct{ Database }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
