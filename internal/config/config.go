package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"calproxy/internal/rules"
)

// Defaults applied by Normalize.
const (
	DefaultListen   = "127.0.0.1:5000"
	DefaultCacheTTL = 4 * time.Hour
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "4h" or "30m", or from a plain number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var secs int64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns d as a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is one of text, json.
	Format string `yaml:"format"`
}

// TimeOverride rewrites the start/end times of events whose summary
// matches Regex.
type TimeOverride struct {
	Regex     string `yaml:"regex"`
	StartTime string `yaml:"start_time"`
	EndTime   string `yaml:"end_time"`
	Timezone  string `yaml:"timezone"`
}

// LocationOverride rewrites the location of events whose summary
// matches Regex.
type LocationOverride struct {
	Regex    string `yaml:"regex"`
	Location string `yaml:"location"`
}

// Calendar describes a single proxied calendar.
type Calendar struct {
	// Name is the unique key for this calendar. It is the first path
	// segment of the serving URL (/<name>/events.ics) and the cache key.
	Name string `yaml:"name"`
	// URL is the upstream ICS endpoint.
	URL string `yaml:"url"`
	// CacheTTL is how long a transformed calendar is served before the
	// upstream is consulted again.
	CacheTTL Duration `yaml:"cache_ttl"`

	TimeOverrides     []TimeOverride     `yaml:"time_overrides"`
	LocationOverrides []LocationOverride `yaml:"location_overrides"`

	// Rules holds the compiled overrides. Populated during Load.
	Rules rules.Set `yaml:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// Logging controls log level and format.
	Logging LoggingConfig `yaml:"logging"`

	// RefreshCron is an optional cron-style schedule (e.g. "*/15 * * * *")
	// for refreshing all calendars in the background. If empty, calendars
	// are refreshed lazily on request.
	RefreshCron string `yaml:"refresh_cron"`

	// Calendars lists the proxied calendars.
	Calendars []Calendar `yaml:"calendars"`
}

// Normalize fills in missing/zero values with defaults so that partial
// configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	for i := range c.Calendars {
		if c.Calendars[i].CacheTTL == 0 {
			c.Calendars[i].CacheTTL = Duration(DefaultCacheTTL)
		}
	}
}

// Validate checks the configuration and compiles the override rules of
// every calendar. Any problem found here is fatal at startup; request
// handling never sees an uncompiled rule.
func (c *Config) Validate() error {
	if len(c.Calendars) == 0 {
		return errors.New("at least one calendar must be configured")
	}

	if c.RefreshCron != "" {
		if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
			return fmt.Errorf("invalid refresh_cron %q: %w", c.RefreshCron, err)
		}
	}

	seen := make(map[string]bool, len(c.Calendars))
	for i := range c.Calendars {
		cal := &c.Calendars[i]
		if cal.Name == "" {
			return fmt.Errorf("calendar[%d]: name is required", i)
		}
		if seen[cal.Name] {
			return fmt.Errorf("calendar[%d]: duplicate name %q", i, cal.Name)
		}
		seen[cal.Name] = true

		if cal.URL == "" {
			return fmt.Errorf("calendar %q: url is required", cal.Name)
		}
		if cal.CacheTTL < 0 {
			return fmt.Errorf("calendar %q: cache_ttl must not be negative", cal.Name)
		}

		set, err := compileRules(cal)
		if err != nil {
			return fmt.Errorf("calendar %q: %w", cal.Name, err)
		}
		cal.Rules = set
	}

	return nil
}

func compileRules(cal *Calendar) (rules.Set, error) {
	var set rules.Set
	for i, o := range cal.TimeOverrides {
		r, err := rules.NewTimeRule(o.Regex, o.StartTime, o.EndTime, o.Timezone)
		if err != nil {
			return rules.Set{}, fmt.Errorf("time_overrides[%d]: %w", i, err)
		}
		set.Time = append(set.Time, r)
	}
	for i, o := range cal.LocationOverrides {
		r, err := rules.NewLocationRule(o.Regex, o.Location)
		if err != nil {
			return rules.Set{}, fmt.Errorf("location_overrides[%d]: %w", i, err)
		}
		set.Location = append(set.Location, r)
	}
	return set, nil
}

// Load reads configuration from the given YAML path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
