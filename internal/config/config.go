package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	FormatJSON = "json"
	FormatICS  = "ics"

	DefaultListen      = "127.0.0.1:8080"
	DefaultEventsPath  = "/events"
	DefaultContainerID = "event-title-link"
)

// CaptureConfig controls the headless screenshot taken after each render pass.
type CaptureConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled" env:"EVENTBOARD_CAPTURE_ENABLED"`
	OutputPath string `yaml:"output_path" json:"output_path" env:"EVENTBOARD_CAPTURE_OUTPUT"`
	Width      int    `yaml:"width" json:"width"`
	Height     int    `yaml:"height" json:"height"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the board server.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the board page and API.
	Listen string `yaml:"listen" json:"listen" env:"EVENTBOARD_LISTEN"`

	// BaseURL is the origin serving the events resource, e.g. "http://127.0.0.1:5000".
	BaseURL string `yaml:"base_url" json:"base_url" env:"EVENTBOARD_BASE_URL"`

	// EventsPath is appended to BaseURL. Defaults to "/events".
	EventsPath string `yaml:"events_path" json:"events_path" env:"EVENTBOARD_EVENTS_PATH"`

	// Format selects how the events body is decoded: "json" or "ics".
	Format string `yaml:"format" json:"format" env:"EVENTBOARD_FORMAT"`

	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds" env:"EVENTBOARD_TIMEOUT_SECONDS"`

	// ContainerID is the id of the host page element receiving event headings.
	ContainerID string `yaml:"container_id" json:"container_id" env:"EVENTBOARD_CONTAINER_ID"`

	// PagePath optionally points at a host HTML document. Empty uses the built-in page.
	PagePath string `yaml:"page_path" json:"page_path" env:"EVENTBOARD_PAGE_PATH"`

	// ShowDetails attaches date/time/description paragraphs after each heading.
	ShowDetails bool `yaml:"show_details" json:"show_details" env:"EVENTBOARD_SHOW_DETAILS"`

	// Timezone, HorizonDays and BackfillDays only apply to the ics format.
	Timezone     string `yaml:"timezone" json:"timezone" env:"EVENTBOARD_TIMEZONE"`
	HorizonDays  int    `yaml:"horizon_days" json:"horizon_days"`
	BackfillDays int    `yaml:"backfill_days" json:"backfill_days"`

	// RefreshCron is a cron expression (e.g. "*/15 * * * *") driving re-renders in server mode.
	RefreshCron string `yaml:"refresh" json:"refresh" env:"EVENTBOARD_REFRESH"`

	LogLevel string `yaml:"log_level" json:"log_level" env:"EVENTBOARD_LOG_LEVEL"`

	Capture CaptureConfig `yaml:"capture" json:"capture"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         DefaultListen,
		BaseURL:        "http://127.0.0.1:5000",
		EventsPath:     DefaultEventsPath,
		Format:         FormatJSON,
		TimeoutSeconds: 15,
		ContainerID:    DefaultContainerID,
		ShowDetails:    true,
		Timezone:       "UTC",
		HorizonDays:    30,
		BackfillDays:   0,
		RefreshCron:    "*/15 * * * *",
		LogLevel:       "info",
		Capture: CaptureConfig{
			Enabled:    false,
			OutputPath: "./cache/preview.png",
		},
	}
}

// Normalize fills in missing/zero values so partially-filled configs still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.EventsPath == "" {
		c.EventsPath = DefaultEventsPath
	}
	if !strings.HasPrefix(c.EventsPath, "/") {
		c.EventsPath = "/" + c.EventsPath
	}
	switch strings.ToLower(c.Format) {
	case FormatICS:
		c.Format = FormatICS
	default:
		c.Format = FormatJSON
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 15
	}
	if c.ContainerID == "" {
		c.ContainerID = DefaultContainerID
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = 30
	}
	if c.BackfillDays < 0 {
		c.BackfillDays = 0
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Capture.OutputPath == "" {
		c.Capture.OutputPath = "./cache/preview.png"
	}
}

// EventsURL is the absolute URL of the events resource.
func (c *Config) EventsURL() string {
	return c.BaseURL + c.EventsPath
}

// Validate reports settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("config: base_url is required")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("config: base_url %q must be http(s)", c.BaseURL)
	}
	return nil
}

// Load loads configuration from the given YAML path, then applies
// EVENTBOARD_* environment overrides.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600 perms.
//   - If the file exists, YAML is unmarshaled over the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run: create default config file.
		if err := Save(path, cfg); err != nil {
			return cfg, err
		}
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
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

	tmp, err := os.CreateTemp(dir, ".eventboard-config-*.tmp")
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

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
