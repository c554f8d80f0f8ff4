package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"

	"calproxy/internal/config"
)

// ErrUnknownCalendar is returned by Get for names not present in the
// configuration.
var ErrUnknownCalendar = errors.New("unknown calendar")

// State describes the lifecycle of a cache entry.
type State string

const (
	// StateEmpty means no document has been fetched yet.
	StateEmpty State = "empty"
	// StateFresh means a document is present and within its TTL.
	StateFresh State = "fresh"
	// StateStale means a document is present but past its TTL.
	StateStale State = "stale"
)

// RefreshFunc produces a transformed calendar document for one
// configured calendar. It is expected to block on network I/O.
type RefreshFunc func(ctx context.Context, cal config.Calendar) (*ical.Calendar, error)

// entry is the cached state of a single calendar name.
//
// refreshMu is the refresh gate: it is held across the whole
// check-and-refresh sequence, so at most one fetch+transform runs per
// name and concurrent requests for that name block until it finishes.
// stateMu guards doc/expiresAt so that Stats can read them without
// waiting behind an in-flight refresh. Entries never share locks.
type entry struct {
	cfg config.Calendar

	refreshMu sync.Mutex

	stateMu   sync.RWMutex
	doc       *ical.Calendar
	expiresAt time.Time
}

// snapshot returns the current document, state and expiry of e.
func (e *entry) snapshot(now time.Time) (*ical.Calendar, State, time.Time) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()

	switch {
	case e.doc == nil:
		return nil, StateEmpty, e.expiresAt
	case now.Before(e.expiresAt):
		return e.doc, StateFresh, e.expiresAt
	default:
		return e.doc, StateStale, e.expiresAt
	}
}

// Cache holds one entry per configured calendar and refreshes entries
// lazily through a RefreshFunc. The entry map is built once at
// construction and never changes afterwards, so name lookups need no
// lock and calendars never contend with each other.
type Cache struct {
	entries map[string]*entry
	refresh RefreshFunc
	logger  *slog.Logger
}

// New builds a Cache with one empty entry per configured calendar.
func New(calendars []config.Calendar, refresh RefreshFunc, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}

	entries := make(map[string]*entry, len(calendars))
	for _, cal := range calendars {
		entries[cal.Name] = &entry{cfg: cal}
	}

	return &Cache{
		entries: entries,
		refresh: refresh,
		logger:  logger,
	}
}

// Get returns the transformed document for name, refreshing it first
// when the entry is empty or expired. Callers arriving during a refresh
// block until it completes and then see its result.
//
// When a refresh fails but an older document exists, that document is
// served and the expiry left in the past, so the next request tries the
// upstream again. The error is only surfaced when there is nothing to
// fall back to.
func (c *Cache) Get(ctx context.Context, name string) (*ical.Calendar, error) {
	e, ok := c.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCalendar, name)
	}

	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	doc, state, _ := e.snapshot(time.Now())
	if state == StateFresh {
		return doc, nil
	}

	if err := c.refreshLocked(ctx, e); err != nil {
		if doc != nil {
			c.logger.Warn("refresh failed, serving stale document",
				"calendar", name,
				"error", err)
			return doc, nil
		}
		return nil, fmt.Errorf("refresh calendar %q: %w", name, err)
	}

	doc, _, _ = e.snapshot(time.Now())
	return doc, nil
}

// refreshLocked fetches and stores a new document for e. The caller must
// hold e.refreshMu. The expiry is computed when the refresh completes,
// not when it started.
func (c *Cache) refreshLocked(ctx context.Context, e *entry) error {
	doc, err := c.refresh(ctx, e.cfg)
	if err != nil {
		return err
	}

	e.stateMu.Lock()
	e.doc = doc
	e.expiresAt = time.Now().Add(e.cfg.CacheTTL.Duration())
	expiresAt := e.expiresAt
	e.stateMu.Unlock()

	c.logger.Info("calendar refreshed",
		"calendar", e.cfg.Name,
		"expires_at", expiresAt.Format(time.RFC3339))
	return nil
}

// RefreshAll refreshes every configured calendar regardless of
// freshness. It is used by the optional scheduled warmer; per-calendar
// failures are logged and do not affect other entries.
func (c *Cache) RefreshAll(ctx context.Context) {
	for name, e := range c.entries {
		e.refreshMu.Lock()
		err := c.refreshLocked(ctx, e)
		e.refreshMu.Unlock()

		if err != nil {
			c.logger.Warn("scheduled refresh failed",
				"calendar", name,
				"error", err)
		}
	}
}

// EntryStatus is a point-in-time view of one cache entry.
type EntryStatus struct {
	Name      string
	URL       string
	State     State
	ExpiresAt time.Time
}

// Stats returns the current state of every entry, sorted by name. It
// never blocks behind in-flight refreshes.
func (c *Cache) Stats() []EntryStatus {
	now := time.Now()

	out := make([]EntryStatus, 0, len(c.entries))
	for name, e := range c.entries {
		_, state, expiresAt := e.snapshot(now)
		out = append(out, EntryStatus{
			Name:      name,
			URL:       e.cfg.URL,
			State:     state,
			ExpiresAt: expiresAt,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
