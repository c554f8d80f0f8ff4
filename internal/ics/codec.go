package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// Parse decodes an ICS payload into a calendar document.
func Parse(body []byte) (*ical.Calendar, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse ICS: %w", err)
	}
	return cal, nil
}

// EventSummary returns the SUMMARY value of ev, or "" if the event has none.
func EventSummary(ev *ical.VEvent) string {
	if p := ev.GetProperty(ical.ComponentPropertySummary); p != nil {
		return p.Value
	}
	return ""
}

// EventStart returns the start instant of ev and whether DTSTART carries a
// bare date (an all-day entry). It relies on the library's TZID handling
// for timed values. All-day values are parsed at midnight UTC; only the
// year-month-day part is meaningful then.
func EventStart(ev *ical.VEvent) (time.Time, bool, error) {
	prop := ev.GetProperty(ical.ComponentPropertyDtStart)
	if prop == nil || prop.Value == "" {
		return time.Time{}, false, errors.New("missing DTSTART")
	}

	if isDateOnly(prop) {
		t, err := time.ParseInLocation("20060102", prop.Value, time.UTC)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("invalid all-day DTSTART %q: %w", prop.Value, err)
		}
		return t, true, nil
	}

	t, err := ev.GetStartAt()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid DTSTART: %w", err)
	}
	return t, false, nil
}

// isDateOnly detects all-day values: VALUE=DATE is declared or the value
// is in YYYYMMDD form without a time component.
func isDateOnly(prop *ical.IANAProperty) bool {
	if params := prop.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			return true
		}
	}
	return !strings.Contains(prop.Value, "T")
}
