package rules

import (
	"log/slog"

	ical "github.com/arran4/golang-ical"

	"calproxy/internal/ics"
)

// Transformer applies rule sets to whole calendar documents.
type Transformer struct {
	logger *slog.Logger
}

// NewTransformer constructs a Transformer. A nil logger falls back to
// slog.Default().
func NewTransformer(logger *slog.Logger) *Transformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{logger: logger}
}

// Transform mutates every matching event of cal in place and returns cal.
// Each event is matched independently against the time rules and the
// location rules, so one event can receive both kinds of override. Events
// matching no rule pass through untouched, and the number and order of
// events never change.
//
// A per-event apply failure (for example an unparsable DTSTART) is logged
// and that override skipped; the rest of the document is still processed.
// Transform performs no I/O and may run concurrently on distinct documents.
func (t *Transformer) Transform(cal *ical.Calendar, set Set) *ical.Calendar {
	for _, ev := range cal.Events() {
		summary := ics.EventSummary(ev)

		if rule, ok := Match(summary, set.Time).Get(); ok {
			if err := ApplyTime(ev, rule); err != nil {
				t.logger.Warn("skipping time override",
					"summary", summary,
					"error", err)
			}
		}

		if rule, ok := Match(summary, set.Location).Get(); ok {
			ApplyLocation(ev, rule)
		}
	}
	return cal
}
