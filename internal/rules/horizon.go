package rules

import "time"

// DateLayout is the YYYY-MM-DD layout used for boundaries and bucket keys.
const DateLayout = "2006-01-02"

// Boundary resolves the date a rule filters against, relative to today.
// Past rules look back, future rules look ahead; All horizons return All.
func Boundary(r Rule, today time.Time) string {
	if r.Horizon.IsAll() {
		return All
	}
	days := r.Horizon.Days()
	if r.Timeframe == TimeframePast {
		days = -days
	}
	return today.AddDate(0, 0, days).Format(DateLayout)
}

// FetchHorizon is the largest bounded past horizon in days, or 0 when no
// bounded past rule exists. Future and All rules never extend it.
func (s *Set) FetchHorizon() int {
	maxDays := 0
	for _, r := range s.Rules() {
		if r.Timeframe != TimeframePast || r.Horizon.IsAll() {
			continue
		}
		maxDays = max(maxDays, r.Horizon.Days())
	}
	return maxDays
}
