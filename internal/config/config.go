package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	appLog "studycal/internal/log"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// NotificationsConfig controls reminder delivery. The zero value means
// enabled, so a config file without this section behaves like the default.
type NotificationsConfig struct {
	// Disabled turns off reminder delivery. Pending-reminder computation
	// still runs so the API can report what would fire.
	Disabled bool `yaml:"disabled" json:"disabled"`
}

// SnapshotConfig controls the headless-Chromium PNG snapshot of the
// month view. Nil disables the feature entirely.
type SnapshotConfig struct {
	// Output is where the PNG is written, e.g. "/var/lib/studycal/preview.png".
	Output string `yaml:"output" json:"output"`

	// Width and Height are the capture viewport in pixels.
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`

	// Cron, if non-empty, re-captures on this schedule in addition to the
	// one-shot -snapshot flag.
	Cron string `yaml:"cron" json:"cron"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone all event instants are interpreted in
	// (e.g. "Europe/Madrid"). Empty means the host's local timezone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls which weekday is the first grid column.
	// Supported values:
	//   - "sunday" (default)
	//   - "monday"
	WeekStart string `yaml:"week_start" json:"week_start"`

	// DataPath is the bbolt database file holding events and settings.
	DataPath string `yaml:"data_path" json:"data_path"`

	// RefreshCron is a cron-style schedule (e.g. "*/15 * * * *") on which
	// pending reminders are resynced against the stored collection.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// LeadMinutes is how long before an event's instant its reminder fires.
	LeadMinutes int `yaml:"lead_minutes" json:"lead_minutes"`

	// UpcomingLimit caps the upcoming-events panel.
	UpcomingLimit int `yaml:"upcoming_limit" json:"upcoming_limit"`

	// HorizonDays bounds recurrence expansion when importing ICS feeds.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// Theme and Accent are the default appearance, used until the user
	// picks one in the UI (the picked value is persisted in the store).
	Theme  string `yaml:"theme" json:"theme"`
	Accent string `yaml:"accent" json:"accent"`

	Notifications NotificationsConfig `yaml:"notifications" json:"notifications"`

	// Snapshot, if non-nil, enables the PNG snapshot pipeline.
	Snapshot *SnapshotConfig `yaml:"snapshot,omitempty" json:"snapshot,omitempty"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        "127.0.0.1:8080",
		Timezone:      "",
		WeekStart:     "sunday",
		DataPath:      "./var/studycal.db",
		RefreshCron:   "*/15 * * * *",
		LeadMinutes:   15,
		UpcomingLimit: 5,
		HorizonDays:   90,
		Theme:         "system",
		Accent:        "#007aff",
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	switch c.WeekStart {
	case "sunday", "monday":
		// ok
	case "":
		c.WeekStart = "sunday"
	default:
		// Unknown value; fall back to sunday to avoid surprising layouts.
		c.WeekStart = "sunday"
	}
	if c.DataPath == "" {
		c.DataPath = "./var/studycal.db"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	if c.LeadMinutes <= 0 {
		c.LeadMinutes = 15
	}
	if c.UpcomingLimit <= 0 {
		c.UpcomingLimit = 5
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = 90
	}
	if c.Theme == "" {
		c.Theme = "system"
	}
	if c.Accent == "" {
		c.Accent = "#007aff"
	}
	if c.Snapshot != nil {
		if c.Snapshot.Output == "" {
			c.Snapshot.Output = "./var/preview.png"
		}
		if c.Snapshot.Width <= 0 {
			c.Snapshot.Width = 1024
		}
		if c.Snapshot.Height <= 0 {
			c.Snapshot.Height = 768
		}
	}
}

// Location resolves the configured timezone, falling back to the local
// zone when the name is empty or unknown.
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

// Lead returns the reminder lead time as a duration.
func (c *Config) Lead() time.Duration {
	return time.Duration(c.LeadMinutes) * time.Minute
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
			// First run: create default config file.
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

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
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

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".studycal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
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

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}
