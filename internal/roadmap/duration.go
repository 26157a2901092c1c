// Package roadmap holds the deterministic planning model behind a generated roadmap:
// turning hour estimates into calendar spans, task status transitions, rollups and the
// cross-project deadline view. Nothing here touches storage or the network.
package roadmap

import "math"

const (
	// DefaultHoursPerDay is used when a project does not state its working rate.
	DefaultHoursPerDay = 6.0

	// MaxEstimatedDays bounds a single estimate. Anything longer is treated as a bad estimate.
	MaxEstimatedDays = 10000
)

// DaysFor converts an hour estimate into whole calendar days at hoursPerDay.
// A module or task always occupies at least one day.
func DaysFor(estimatedHours, hoursPerDay float64) (int, error) {
	invalid := &InvalidEstimateError{EstimatedHours: estimatedHours, HoursPerDay: hoursPerDay}
	if !(estimatedHours > 0) || !(hoursPerDay > 0) || math.IsInf(hoursPerDay, 0) {
		return 0, invalid
	}
	q := estimatedHours / hoursPerDay
	if math.IsNaN(q) || math.IsInf(q, 0) || q > MaxEstimatedDays {
		return 0, invalid
	}

	days := math.Ceil(q)
	// A quotient a few ULPs above a whole number is division noise (0.30000000000000004/0.1).
	if floor := math.Floor(q); floor >= 1 && q-floor <= 4*(math.Nextafter(q, math.Inf(1))-q) {
		days = floor
	}
	if days < 1 {
		days = 1
	}
	return int(days), nil
}
