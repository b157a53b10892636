package models

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx/types"
)

// Weekday names follow the uppercase convention used across the API.
type Weekday string

const (
	Monday    Weekday = "MONDAY"
	Tuesday   Weekday = "TUESDAY"
	Wednesday Weekday = "WEDNESDAY"
	Thursday  Weekday = "THURSDAY"
	Friday    Weekday = "FRIDAY"
	Saturday  Weekday = "SATURDAY"
	Sunday    Weekday = "SUNDAY"
)

var weekdays = map[Weekday]struct{}{
	Monday: {}, Tuesday: {}, Wednesday: {}, Thursday: {},
	Friday: {}, Saturday: {}, Sunday: {},
}

// Valid reports whether the weekday is one of the seven known names.
func (w Weekday) Valid() bool {
	_, ok := weekdays[w]
	return ok
}

// TimeRange is a half-open interval [Start, End) of wall-clock times,
// formatted HH:MM:SS.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Validate checks the HH:MM:SS shape and Start < End.
func (r TimeRange) Validate() error {
	s, err := clockSeconds(r.Start)
	if err != nil {
		return fmt.Errorf("invalid start %q: %w", r.Start, err)
	}
	e, err := clockSeconds(r.End)
	if err != nil {
		return fmt.Errorf("invalid end %q: %w", r.End, err)
	}
	if s >= e {
		return fmt.Errorf("range %s-%s: start must precede end", r.Start, r.End)
	}
	return nil
}

// Overlaps applies the half-open interval test against another range.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start < other.End && r.End > other.Start
}

// WeekHours maps weekdays to ordered time ranges. Work and break hours
// arrive as JSON blobs from the teacher record; they are validated here at
// the deserialization boundary and trusted everywhere else.
type WeekHours map[Weekday][]TimeRange

// ParseWeekHours decodes and validates a JSON hours blob. Break ranges on
// the same day must not overlap each other; nesting inside a work range is
// the caller's concern.
func ParseWeekHours(raw types.JSONText) (WeekHours, error) {
	if len(raw) == 0 {
		return WeekHours{}, nil
	}
	var hours WeekHours
	if err := json.Unmarshal(raw, &hours); err != nil {
		return nil, fmt.Errorf("decode week hours: %w", err)
	}
	for day, ranges := range hours {
		if !day.Valid() {
			return nil, fmt.Errorf("unknown weekday %q", day)
		}
		sorted := make([]TimeRange, len(ranges))
		copy(sorted, ranges)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
		for i, r := range sorted {
			if err := r.Validate(); err != nil {
				return nil, fmt.Errorf("%s: %w", day, err)
			}
			if i > 0 && sorted[i-1].Overlaps(r) {
				return nil, fmt.Errorf("%s: ranges %s-%s and %s-%s overlap",
					day, sorted[i-1].Start, sorted[i-1].End, r.Start, r.End)
			}
		}
		hours[day] = sorted
	}
	return hours, nil
}

// For returns the ranges registered for a weekday.
func (h WeekHours) For(day Weekday) []TimeRange {
	return h[day]
}

func clockSeconds(clock string) (int, error) {
	var hh, mm, ss int
	if _, err := fmt.Sscanf(clock, "%02d:%02d:%02d", &hh, &mm, &ss); err != nil {
		return 0, err
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 || ss < 0 || ss > 59 {
		return 0, fmt.Errorf("out of range")
	}
	return hh*3600 + mm*60 + ss, nil
}
