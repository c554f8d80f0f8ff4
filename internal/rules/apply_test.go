package rules

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calproxy/internal/ics"
)

// parseFixture builds a calendar document from VEVENT content lines.
func parseFixture(t *testing.T, eventLines ...string) *ical.Calendar {
	t.Helper()

	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//calproxy//test//EN",
	}
	lines = append(lines, eventLines...)
	lines = append(lines, "END:VCALENDAR", "")

	cal, err := ics.Parse([]byte(strings.Join(lines, "\r\n")))
	require.NoError(t, err)
	return cal
}

// vevent wraps property lines into a VEVENT block.
func vevent(uid, summary string, props ...string) []string {
	out := []string{
		"BEGIN:VEVENT",
		"UID:" + uid,
		"DTSTAMP:20240101T000000Z",
		"SUMMARY:" + summary,
	}
	out = append(out, props...)
	out = append(out, "END:VEVENT")
	return out
}

func firstEvent(t *testing.T, cal *ical.Calendar) *ical.VEvent {
	t.Helper()
	events := cal.Events()
	require.NotEmpty(t, events)
	return events[0]
}

func rfc3339(t *testing.T, instant time.Time) string {
	t.Helper()
	return instant.UTC().Format(time.RFC3339)
}

func TestApplyTimeCollapsesMultiDayEvent(t *testing.T) {
	cal := parseFixture(t, vevent("1", "Team Meeting",
		"DTSTART:20240301T230000Z",
		"DTEND:20240303T020000Z",
	)...)
	ev := firstEvent(t, cal)

	rule := mustTimeRule(t, "Meeting", "09:00:00", "10:00:00", "America/New_York")
	require.NoError(t, ApplyTime(ev, rule))

	start, err := ev.GetStartAt()
	require.NoError(t, err)
	end, err := ev.GetEndAt()
	require.NoError(t, err)

	// 09:00/10:00 New York on 2024-03-01 (UTC-5 that date).
	assert.Equal(t, "2024-03-01T14:00:00Z", rfc3339(t, start))
	assert.Equal(t, "2024-03-01T15:00:00Z", rfc3339(t, end))

	// The end date equals the start date in the rule's zone.
	sy, sm, sd := start.In(rule.Zone).Date()
	ey, em, ed := end.In(rule.Zone).Date()
	assert.Equal(t, [3]int{sy, int(sm), sd}, [3]int{ey, int(em), ed})

	// Instants are stored as UTC timestamps.
	assert.Equal(t, "20240301T140000Z", ev.GetProperty(ical.ComponentPropertyDtStart).Value)
	assert.Equal(t, "20240301T150000Z", ev.GetProperty(ical.ComponentPropertyDtEnd).Value)
}

func TestApplyTimeReplacesDurationWithDtEnd(t *testing.T) {
	// An event may declare DURATION instead of DTEND; after the rewrite it
	// must carry the explicit DTEND only, never both.
	cal := parseFixture(t, vevent("1", "Team Meeting",
		"DTSTART:20240301T230000Z",
		"DURATION:PT1H",
	)...)
	ev := firstEvent(t, cal)

	rule := mustTimeRule(t, "Meeting", "09:00:00", "10:00:00", "America/New_York")
	require.NoError(t, ApplyTime(ev, rule))

	assert.Nil(t, ev.GetProperty(ical.ComponentPropertyDuration))
	assert.Equal(t, "20240301T140000Z", ev.GetProperty(ical.ComponentPropertyDtStart).Value)
	assert.Equal(t, "20240301T150000Z", ev.GetProperty(ical.ComponentPropertyDtEnd).Value)

	serialized := cal.Serialize()
	assert.Contains(t, serialized, "DTEND:20240301T150000Z")
	assert.NotContains(t, serialized, "DURATION")
}

func TestApplyTimeUsesRuleZoneDate(t *testing.T) {
	// 03:00 UTC on March 2nd is still March 1st in New York; the rewritten
	// times must land on the 1st, not on the UTC date.
	cal := parseFixture(t, vevent("1", "Team Meeting",
		"DTSTART:20240302T030000Z",
		"DTEND:20240302T040000Z",
	)...)
	ev := firstEvent(t, cal)

	rule := mustTimeRule(t, "Meeting", "09:00:00", "10:00:00", "America/New_York")
	require.NoError(t, ApplyTime(ev, rule))

	start, err := ev.GetStartAt()
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T14:00:00Z", rfc3339(t, start))
}

func TestApplyTimeWithTZIDStart(t *testing.T) {
	cal := parseFixture(t, vevent("1", "Team Meeting",
		"DTSTART;TZID=America/New_York:20240301T180000",
		"DTEND;TZID=America/New_York:20240301T190000",
	)...)
	ev := firstEvent(t, cal)

	rule := mustTimeRule(t, "Meeting", "09:00:00", "10:00:00", "America/New_York")
	require.NoError(t, ApplyTime(ev, rule))

	start, err := ev.GetStartAt()
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T14:00:00Z", rfc3339(t, start))

	// The rewritten property is a UTC instant; the TZID parameter is gone.
	prop := ev.GetProperty(ical.ComponentPropertyDtStart)
	assert.Empty(t, prop.ICalParameters["TZID"])
}

func TestApplyTimeAllDayEvent(t *testing.T) {
	cal := parseFixture(t, vevent("1", "Company Holiday",
		"DTSTART;VALUE=DATE:20240415",
		"DTEND;VALUE=DATE:20240416",
	)...)
	ev := firstEvent(t, cal)

	rule := mustTimeRule(t, "Holiday", "09:00:00", "10:00:00", "Europe/Berlin")
	require.NoError(t, ApplyTime(ev, rule))

	start, err := ev.GetStartAt()
	require.NoError(t, err)
	end, err := ev.GetEndAt()
	require.NoError(t, err)

	// The all-day date is used as the local date in the rule's zone;
	// Berlin is UTC+2 in April.
	assert.Equal(t, "2024-04-15T07:00:00Z", rfc3339(t, start))
	assert.Equal(t, "2024-04-15T08:00:00Z", rfc3339(t, end))

	// The event now has concrete instants instead of a bare date.
	prop := ev.GetProperty(ical.ComponentPropertyDtStart)
	assert.Contains(t, prop.Value, "T")
	assert.Empty(t, prop.ICalParameters["VALUE"])
}

func TestApplyTimeDateFormWithoutValueParam(t *testing.T) {
	// Some feeds omit VALUE=DATE and just write a bare date.
	cal := parseFixture(t, vevent("1", "Company Holiday",
		"DTSTART:20240415",
	)...)
	ev := firstEvent(t, cal)

	rule := mustTimeRule(t, "Holiday", "09:00:00", "10:00:00", "Europe/Berlin")
	require.NoError(t, ApplyTime(ev, rule))

	start, err := ev.GetStartAt()
	require.NoError(t, err)
	assert.Equal(t, "2024-04-15T07:00:00Z", rfc3339(t, start))
}

func TestApplyTimeAcceptsEndBeforeStart(t *testing.T) {
	cal := parseFixture(t, vevent("1", "Team Meeting",
		"DTSTART:20240301T230000Z",
		"DTEND:20240302T000000Z",
	)...)
	ev := firstEvent(t, cal)

	rule := mustTimeRule(t, "Meeting", "10:00:00", "09:00:00", "America/New_York")
	require.NoError(t, ApplyTime(ev, rule))

	start, err := ev.GetStartAt()
	require.NoError(t, err)
	end, err := ev.GetEndAt()
	require.NoError(t, err)

	// Written as configured, not auto-corrected.
	assert.True(t, end.Before(start))
}

func TestApplyTimeMissingDtStart(t *testing.T) {
	cal := parseFixture(t, vevent("1", "Team Meeting")...)
	ev := firstEvent(t, cal)

	rule := mustTimeRule(t, "Meeting", "09:00:00", "10:00:00", "UTC")
	assert.Error(t, ApplyTime(ev, rule))
}

func TestApplyLocationOverwritesExisting(t *testing.T) {
	cal := parseFixture(t, vevent("1", "Daily Standup",
		"DTSTART:20240301T090000Z",
		"LOCATION:Room A",
	)...)
	ev := firstEvent(t, cal)

	ApplyLocation(ev, mustLocationRule(t, "Standup", "Room B"))

	assert.Equal(t, "Room B", ev.GetProperty(ical.ComponentPropertyLocation).Value)
}

func TestApplyLocationCreatesMissingProperty(t *testing.T) {
	cal := parseFixture(t, vevent("1", "Daily Standup",
		"DTSTART:20240301T090000Z",
	)...)
	ev := firstEvent(t, cal)
	require.Nil(t, ev.GetProperty(ical.ComponentPropertyLocation))

	ApplyLocation(ev, mustLocationRule(t, "Standup", "Room B"))

	assert.Equal(t, "Room B", ev.GetProperty(ical.ComponentPropertyLocation).Value)
}
