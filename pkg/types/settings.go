package types

import (
	"fmt"
)

// CurrentSettingsVersion is the current version of the settings struct.
// Increment this value when adding new fields that require default values.
const CurrentSettingsVersion = 3

// DefaultHorizonHours is the number of hourly slots shown when a site has not
// chosen its own horizon.
const DefaultHorizonHours = 39

// MaxHorizonHours bounds the number of slots a single preview may ask for.
const MaxHorizonHours = 24 * 7

// Settings represents the per-site configuration stored in the database.
// These are dynamic settings that can be changed without redeploying.
type Settings struct {
	// Utility Provider
	UtilityProvider    string             `json:"utilityProvider"`
	UtilityRate        string             `json:"utilityRate"`
	UtilityRateOptions UtilityRateOptions `json:"utilityRateOptions"`

	// Additional fees added on top of the provider prices (in $/kWh)
	AdditionalFeesPeriods []TariffFeePeriod `json:"additionalFeesPeriods"`
	// Include the grid delivery fee in the slot prices
	IncludeGridFees bool `json:"includeGridFees"`

	// Preview Settings
	// BCP 47 locale used for weekday labels (e.g. de-DE)
	Locale string `json:"locale"`
	// IANA timezone the hourly grid is aligned to (e.g. Europe/Berlin)
	Timezone string `json:"timezone"`
	// Number of hourly slots to show
	HorizonHours int `json:"horizonHours"`
}

// UtilityRateOptions represents the options for the utility rate.
type UtilityRateOptions struct {
	RateClass string `json:"rateClass"`
}

// Validate checks the user editable fields.
func (s Settings) Validate() error {
	if s.HorizonHours < 0 || s.HorizonHours > MaxHorizonHours {
		return fmt.Errorf("horizonHours must be between 0 and %d", MaxHorizonHours)
	}
	for i, p := range s.AdditionalFeesPeriods {
		if p.HourStart < 0 || p.HourEnd > 24 || p.HourStart >= p.HourEnd {
			return fmt.Errorf("additional fee period %d has an invalid hour range", i)
		}
	}
	return nil
}

// MigrateSettings migrates the settings to the current version.
// It returns the migrated settings, a boolean indicating if changes were made, and an error if migration failed.
func MigrateSettings(s Settings, currentVersion int) (Settings, bool, error) {
	if currentVersion >= CurrentSettingsVersion {
		return s, false, nil
	}

	migrated := false
	// Loop through versions to apply migrations sequentially
	for version := currentVersion + 1; version <= CurrentSettingsVersion; version++ {
		switch version {
		case 1:
			// version 1: initial, a zero horizon and an empty locale mean
			// the server defaults
		case 2:
			// version 2: split provider and rate
			if s.UtilityProvider == "comed_besh" {
				s.UtilityProvider = "comed"
				s.UtilityRate = "comed_besh"
				migrated = true
			}
		case 3:
			// version 3: grid aligned to the provider's timezone
			if s.Timezone == "" && s.UtilityProvider == "comed" {
				s.Timezone = "America/Chicago"
				migrated = true
			}
		default:
			return s, false, fmt.Errorf("unknown settings version: %d", version)
		}
	}

	return s, migrated, nil
}
