package rules

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"calproxy/internal/ics"
)

// ApplyTime rewrites ev's DTSTART and DTEND according to r.
//
// The event's start is converted into r.Zone and its calendar date there
// is kept; both new boundaries are built from that one date plus the
// rule's wall-clock times, then stored as UTC instants. An event that
// spanned several days therefore ends on its start date afterwards, and
// an end time before the start time is written as-is. All-day events use
// their date value directly and come out as timed events. Events that
// declared DURATION instead of DTEND lose the DURATION; the rewrite
// always produces an explicit DTEND.
func ApplyTime(ev *ical.VEvent, r TimeRule) error {
	start, allDay, err := ics.EventStart(ev)
	if err != nil {
		return fmt.Errorf("cannot apply time override: %w", err)
	}

	if !allDay {
		start = start.In(r.Zone)
	}
	year, month, day := start.Date()

	newStart := time.Date(year, month, day, r.Start.Hour, r.Start.Minute, r.Start.Second, 0, r.Zone)
	newEnd := time.Date(year, month, day, r.End.Hour, r.End.Minute, r.End.Second, 0, r.Zone)

	ev.SetStartAt(newStart.UTC())
	ev.SetEndAt(newEnd.UTC())
	// DTEND and DURATION are mutually exclusive on a VEVENT.
	ev.RemoveProperty(ical.ComponentPropertyDuration)
	return nil
}

// ApplyLocation sets ev's LOCATION to r.Value, creating the property if
// the event had none.
func ApplyLocation(ev *ical.VEvent, r LocationRule) {
	ev.SetLocation(r.Value)
}
