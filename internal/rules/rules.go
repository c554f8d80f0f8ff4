package rules

import (
	"fmt"
	"regexp"
	"time"
)

// TimeOfDay is a wall-clock time parsed from an HH:MM:SS string.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay parses values like "09:30:00".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// TimeRule rewrites the start and end of events whose summary matches
// Pattern. Both boundaries are pinned to the start's calendar date in
// Zone, so events spanning several days collapse to the start date.
type TimeRule struct {
	Pattern *regexp.Regexp
	Start   TimeOfDay
	End     TimeOfDay
	Zone    *time.Location
}

// NewTimeRule compiles a time override. The pattern is matched
// case-insensitively anywhere in the summary; zone must be an IANA
// timezone name. All inputs are validated here so that applying the
// rule later cannot fail on them.
func NewTimeRule(pattern, start, end, zone string) (TimeRule, error) {
	re, err := compilePattern(pattern)
	if err != nil {
		return TimeRule{}, err
	}

	startTod, err := ParseTimeOfDay(start)
	if err != nil {
		return TimeRule{}, fmt.Errorf("start_time: %w", err)
	}
	endTod, err := ParseTimeOfDay(end)
	if err != nil {
		return TimeRule{}, fmt.Errorf("end_time: %w", err)
	}

	if zone == "" {
		return TimeRule{}, fmt.Errorf("timezone is required")
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return TimeRule{}, fmt.Errorf("invalid timezone %q: %w", zone, err)
	}

	return TimeRule{
		Pattern: re,
		Start:   startTod,
		End:     endTod,
		Zone:    loc,
	}, nil
}

// Matches reports whether r applies to an event with the given summary.
func (r TimeRule) Matches(summary string) bool {
	return r.Pattern.MatchString(summary)
}

// LocationRule sets the location of events whose summary matches Pattern.
// The value replaces any existing location unconditionally.
type LocationRule struct {
	Pattern *regexp.Regexp
	Value   string
}

// NewLocationRule compiles a location override. The value itself is not
// validated; an empty string is allowed.
func NewLocationRule(pattern, value string) (LocationRule, error) {
	re, err := compilePattern(pattern)
	if err != nil {
		return LocationRule{}, err
	}
	return LocationRule{Pattern: re, Value: value}, nil
}

// Matches reports whether r applies to an event with the given summary.
func (r LocationRule) Matches(summary string) bool {
	return r.Pattern.MatchString(summary)
}

// Set groups the compiled rules of one calendar by kind. Rules keep
// their configured order; the first matching rule of each kind wins.
type Set struct {
	Time     []TimeRule
	Location []LocationRule
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	return re, nil
}
