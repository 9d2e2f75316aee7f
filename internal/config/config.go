package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	appLog "bookcal/internal/log"
	"bookcal/internal/model"
)

// ICSConfig describes a single ICS feed that is imported into the store.
type ICSConfig struct {
	// URL is an http(s) endpoint or a local file path.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// GridConfig sizes the week/day time grid.
type GridConfig struct {
	// HourHeight is the pixel height of one hour row.
	HourHeight float64 `yaml:"hour_height" json:"hour_height"`
	// StartHour / EndHour bound the visible hour range, [start, end).
	StartHour int `yaml:"start_hour" json:"start_hour"`
	EndHour   int `yaml:"end_hour" json:"end_hour"`
	// MinHeight keeps very short events clickable.
	MinHeight float64 `yaml:"min_height" json:"min_height"`
}

// ResizeConfig controls the resize interaction.
type ResizeConfig struct {
	// MinMinutes is the shortest duration a resize can produce.
	MinMinutes int `yaml:"min_minutes" json:"min_minutes"`
	// SnapMinutes rounds the previewed end; 0 disables snapping.
	SnapMinutes int `yaml:"snap_minutes" json:"snap_minutes"`
}

// SnapshotConfig controls the headless PNG capture of /calendar.
type SnapshotConfig struct {
	URL    string `yaml:"url" json:"url"`
	Output string `yaml:"output" json:"output"`
	Width  int    `yaml:"width" json:"width"`
	Height int    `yaml:"height" json:"height"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Database is the SQLite file holding the event store.
	Database string `yaml:"database" json:"database"`

	// Timezone is the IANA zone event times are read and shown in, e.g.
	// "America/Chicago". Empty means the host's local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls which weekday is treated as the first day of the week
	// in calendar views. Supported values:
	//   - "monday" (default)
	//   - "sunday"
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used to re-import ICS feeds.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// ICS is the list of imported ICS feeds.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	Grid GridConfig `yaml:"grid" json:"grid"`

	// MonthMaxVisible caps events per day cell in month view; the rest
	// collapse into a "+N more" indicator.
	MonthMaxVisible int `yaml:"month_max_visible" json:"month_max_visible"`

	// DragThresholdPx is how far the pointer must travel before a press
	// becomes a drag.
	DragThresholdPx float64 `yaml:"drag_threshold_px" json:"drag_threshold_px"`

	Resize ResizeConfig `yaml:"resize" json:"resize"`

	// DefaultDurations maps event type to minutes, used when creating
	// events and converting all-day events into timed ones.
	DefaultDurations map[model.EventType]int `yaml:"default_durations" json:"default_durations"`

	// MaxOccurrences caps expansion per recurring template.
	MaxOccurrences int `yaml:"max_occurrences" json:"max_occurrences"`

	Snapshot SnapshotConfig `yaml:"snapshot" json:"snapshot"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

func defaultDurations() map[model.EventType]int {
	return map[model.EventType]int{
		model.TypeShowing:     60,
		model.TypeMoveIn:      120,
		model.TypeMaintenance: 60,
		model.TypeOther:       30,
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		LogLevel:    "info",
		Database:    "./var/bookcal.db",
		WeekStart:   "monday",
		RefreshCron: "*/15 * * * *",
		ICS:         []ICSConfig{},
		Grid: GridConfig{
			HourHeight: 60,
			StartHour:  0,
			EndHour:    24,
			MinHeight:  20,
		},
		MonthMaxVisible:  3,
		DragThresholdPx:  5,
		Resize:           ResizeConfig{MinMinutes: 15, SnapMinutes: 15},
		DefaultDurations: defaultDurations(),
		MaxOccurrences:   5000,
		Snapshot: SnapshotConfig{
			URL:    "http://127.0.0.1:8080/calendar?view=week",
			Output: "./var/calendar.png",
			Width:  1280,
			Height: 1600,
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Database == "" {
		c.Database = d.Database
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		// Unknown value; fall back to monday to avoid surprising layouts.
		c.WeekStart = "monday"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = d.RefreshCron
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}

	if c.Grid.HourHeight <= 0 {
		c.Grid.HourHeight = d.Grid.HourHeight
	}
	if c.Grid.StartHour < 0 || c.Grid.StartHour > 23 {
		c.Grid.StartHour = 0
	}
	if c.Grid.EndHour <= c.Grid.StartHour || c.Grid.EndHour > 24 {
		c.Grid.EndHour = 24
	}
	if c.Grid.MinHeight <= 0 {
		c.Grid.MinHeight = d.Grid.MinHeight
	}

	if c.MonthMaxVisible <= 0 {
		c.MonthMaxVisible = d.MonthMaxVisible
	}
	if c.DragThresholdPx <= 0 {
		c.DragThresholdPx = d.DragThresholdPx
	}
	if c.Resize.MinMinutes <= 0 {
		c.Resize.MinMinutes = d.Resize.MinMinutes
	}
	if c.Resize.SnapMinutes < 0 {
		c.Resize.SnapMinutes = 0
	}

	if c.DefaultDurations == nil {
		c.DefaultDurations = map[model.EventType]int{}
	}
	for t, m := range defaultDurations() {
		if c.DefaultDurations[t] <= 0 {
			c.DefaultDurations[t] = m
		}
	}
	if c.MaxOccurrences <= 0 {
		c.MaxOccurrences = d.MaxOccurrences
	}

	if c.Snapshot.URL == "" {
		c.Snapshot.URL = d.Snapshot.URL
	}
	if c.Snapshot.Output == "" {
		c.Snapshot.Output = d.Snapshot.Output
	}
}

// FirstWeekday returns the configured week start as a time.Weekday.
func (c *Config) FirstWeekday() time.Weekday {
	if c.WeekStart == "sunday" {
		return time.Sunday
	}
	return time.Monday
}

// Location resolves Timezone, falling back to time.Local when it is empty
// or unknown.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", c.Timezone)
		return time.Local
	}
	return loc
}

// DefaultDuration returns the configured default duration for t.
func (c *Config) DefaultDuration(t model.EventType) time.Duration {
	if m, ok := c.DefaultDurations[t]; ok && m > 0 {
		return time.Duration(m) * time.Minute
	}
	return time.Duration(c.DefaultDurations[model.TypeOther]) * time.Minute
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".bookcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
