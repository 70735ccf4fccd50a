package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"diaryface/internal/model"
)

var (
	ErrEmptyPath = errors.New("config path is empty")
	ErrNilConfig = errors.New("config is nil")
)

// ICSConfig describes a single ICS subscription source. Its position in
// the list is the reminder list index.
type ICSConfig struct {
	URL  string `yaml:"url" toml:"url" json:"url"`
	ID   string `yaml:"id" toml:"id" json:"id"`
	Name string `yaml:"name" toml:"name" json:"name"`
	// Color is an optional "#rrggbb" sent with the colored event layout.
	Color string `yaml:"color,omitempty" toml:"color,omitempty" json:"color,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the status server.
type BasicAuthConfig struct {
	Username string `yaml:"username" toml:"username" json:"username"`
	Password string `yaml:"password" toml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the status server address.
	Listen string `yaml:"listen" toml:"listen" json:"listen"`

	// Timezone is the IANA zone used for wall-clock display.
	Timezone string `yaml:"timezone" toml:"timezone" json:"timezone"`

	// TickCron drives the device minute tick.
	TickCron string `yaml:"tick" toml:"tick" json:"tick"`
	// RefreshCron drives the companion's ICS refresh.
	RefreshCron string `yaml:"refresh" toml:"refresh" json:"refresh"`
	// BatteryCron drives local and peer battery polling.
	BatteryCron string `yaml:"battery" toml:"battery" json:"battery"`

	// HorizonDays bounds how far ahead events are expanded.
	HorizonDays int `yaml:"horizon_days" toml:"horizon_days" json:"horizon_days"`

	// ResponseFormat is the event layout the device asks for:
	// "extended" or "colored".
	ResponseFormat string `yaml:"response_format" toml:"response_format" json:"response_format"`

	TitleMax            int `yaml:"title_max" toml:"title_max" json:"title_max"`
	NotifyMinutes       int `yaml:"notify_minutes" toml:"notify_minutes" json:"notify_minutes"`
	RefreshEveryMinutes int `yaml:"refresh_every_minutes" toml:"refresh_every_minutes" json:"refresh_every_minutes"`
	StaleMinutes        int `yaml:"stale_minutes" toml:"stale_minutes" json:"stale_minutes"`

	// ReminderList selects the list the device shows; -1 means all.
	ReminderList int `yaml:"reminder_list" toml:"reminder_list" json:"reminder_list"`

	MaxMessageBytes int `yaml:"max_message_bytes" toml:"max_message_bytes" json:"max_message_bytes"`
	InboxSlots      int `yaml:"inbox_slots" toml:"inbox_slots" json:"inbox_slots"`

	// StateDir holds the persisted settings blob and the ICS cache.
	StateDir string `yaml:"state_dir" toml:"state_dir" json:"state_dir"`
	LogLevel string `yaml:"log_level" toml:"log_level" json:"log_level"`

	// Clock12 selects the 12-hour clock the companion pushes.
	Clock12 bool `yaml:"clock_12h" toml:"clock_12h" json:"clock_12h"`
	// Settings are the display toggles the companion pushes.
	Settings model.ConfigData `yaml:"settings" toml:"settings" json:"settings"`

	ICS []ICSConfig `yaml:"ics" toml:"ics" json:"ics"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" toml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{ReminderList: -1, Settings: model.ConfigData{DayName: true}}
	c.Normalize()
	return c
}

// Normalize fills zero values with defaults so partial configs behave.
// ReminderList has no zero-value default; 0 is a valid list.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	if c.TickCron == "" {
		c.TickCron = "* * * * *"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	if c.BatteryCron == "" {
		c.BatteryCron = "*/5 * * * *"
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = 7
	}
	if c.ResponseFormat == "" {
		c.ResponseFormat = "colored"
	}
	if c.TitleMax <= 0 {
		c.TitleMax = 13
	}
	if c.NotifyMinutes <= 0 {
		c.NotifyMinutes = 5
	}
	if c.RefreshEveryMinutes <= 0 {
		c.RefreshEveryMinutes = 10
	}
	if c.StaleMinutes <= 0 {
		c.StaleMinutes = 5
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 256
	}
	if c.InboxSlots <= 0 {
		c.InboxSlots = 8
	}
	if c.StateDir == "" {
		c.StateDir = "./var"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// isTOML reports whether path selects the TOML encoding.
func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Load reads the configuration at path, YAML or TOML by extension.
//
// A missing file is created with defaults and 0600 permissions.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := Config{ReminderList: -1}
	if isTOML(path) {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save normalizes cfg and writes it atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return ErrEmptyPath
	}
	if cfg == nil {
		return ErrNilConfig
	}
	cfg.Normalize()

	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// writeFileAtomic writes data to a temp file beside path and renames it
// over path. The parent directory is created with 0700.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".diaryface-*.tmp")
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
