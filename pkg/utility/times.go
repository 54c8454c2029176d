package utility

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

var (
	// PJM uses Eastern Time
	etLocation = mustLoadLocation("America/New_York")

	// ComEd uses Central Time
	ctLocation = mustLoadLocation("America/Chicago")
)

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Errorf("failed to load location %s: %w", name, err))
	}
	return loc
}
