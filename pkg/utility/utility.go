package utility

import (
	"context"
	"fmt"
	"sync"

	"github.com/raterudder/chargeplan/pkg/types"
)

const (
	ProviderComEd = "comed"
	ProviderTOU   = "tou"

	RateComEdBESH = "comed_besh"
	RateTOUSample = "tou_example"
)

// Configured sets up the utility providers and returns a Map.
func Configured() *Map {
	m := NewMap()
	m.comed = configuredComEd()
	return m
}

// Map hands out per-site utilities backed by shared provider feeds.
type Map struct {
	mu        sync.Mutex
	comed     *ComEd
	overrides map[string]Utility
	sites     map[string]*SiteFees
}

// NewMap creates a new Utility Map.
func NewMap() *Map {
	return &Map{
		overrides: make(map[string]Utility),
		sites:     make(map[string]*SiteFees),
	}
}

// Site returns the utility for the given site with its settings applied.
func (m *Map) Site(ctx context.Context, siteID string, settings types.Settings) (Utility, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.overrides[settings.UtilityProvider]; ok {
		if err := u.ApplySettings(ctx, settings); err != nil {
			return nil, err
		}
		return u, nil
	}

	if s, ok := m.sites[siteID]; ok && s.provider == settings.UtilityProvider {
		if err := s.ApplySettings(ctx, settings); err != nil {
			return nil, err
		}
		return s, nil
	}

	var base UtilityPrices
	switch settings.UtilityProvider {
	case ProviderComEd:
		if m.comed == nil {
			return nil, fmt.Errorf("%s provider not configured", ProviderComEd)
		}
		base = m.comed
	case ProviderTOU:
		base = &genericTOU{}
	case "":
		return nil, fmt.Errorf("no utility provider configured")
	default:
		return nil, fmt.Errorf("unknown utility provider: %s", settings.UtilityProvider)
	}
	s, err := NewSiteFees(ctx, base, settings)
	if err != nil {
		return nil, err
	}
	s.siteID = siteID
	m.sites[siteID] = s
	return s, nil
}

// SetProvider overrides the utility returned for a provider name. This is
// primarily used for testing.
func (m *Map) SetProvider(name string, provider Utility) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[name] = provider
}

// ListUtilities returns the providers and rates a site can choose from.
func ListUtilities() []types.UtilityProviderInfo {
	return []types.UtilityProviderInfo{
		{
			ID:   ProviderComEd,
			Name: "ComEd",
			Rates: []types.UtilityRateInfo{
				{ID: RateComEdBESH, Name: "Hourly Pricing (BESH)"},
			},
		},
		{
			ID:   ProviderTOU,
			Name: "Time of Use",
			Rates: []types.UtilityRateInfo{
				{ID: RateTOUSample, Name: "Example Schedule"},
			},
		},
	}
}
