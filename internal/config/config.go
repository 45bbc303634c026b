// Package config loads mcpwatch configuration from a TOML file, with API
// credentials taken from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultPollInterval = 60 * time.Second
	defaultStepPause    = 250 * time.Millisecond
)

// defaultRegions is the full set of platform regions, monitored when the
// configuration does not narrow the list.
var defaultRegions = []string{"dd-af", "dd-ap", "dd-au", "dd-eu", "dd-na"}

// Duration wraps time.Duration for TOML parsing.
type Duration struct {
	time.Duration
}

// UnmarshalText parses TOML duration values such as "60s" or "250ms".
func (d *Duration) UnmarshalText(text []byte) error {
	value := strings.TrimSpace(string(text))
	if value == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value, err)
	}
	d.Duration = parsed
	return nil
}

// Config is the root configuration document.
type Config struct {
	Pump          PumpConfig    `toml:"pump"`
	Files         FilesConfig   `toml:"files"`
	InfluxDB      InfluxConfig  `toml:"influxdb"`
	Elasticsearch ElasticConfig `toml:"elasticsearch"`
	Qualys        QualysConfig  `toml:"qualys"`
	Chat          ChatConfig    `toml:"chat"`
	Stdout        StdoutConfig  `toml:"stdout"`
}

// PumpConfig holds scheduler and credential settings.
type PumpConfig struct {
	Regions      []string `toml:"regions"`
	Since        string   `toml:"since"`   // "2016-09-01"; overrides Horizon
	Horizon      string   `toml:"horizon"` // "90d", "3m", "1y"
	PollInterval Duration `toml:"poll_interval"`
	StepPause    Duration `toml:"step_pause"`

	// Credentials come from MCP_USER / MCP_PASSWORD; the file may override
	// them for development setups.
	User     string `toml:"user"`
	Password string `toml:"password"`
}

// FilesConfig enables the local log-file sink.
type FilesConfig struct {
	SummaryUsage  string `toml:"summary_usage"`
	DetailedUsage string `toml:"detailed_usage"`
	AuditLog      string `toml:"audit_log"`
	ServerEvents  string `toml:"server_events"`
}

// Enabled reports whether any file target is configured.
func (f FilesConfig) Enabled() bool {
	return f.SummaryUsage != "" || f.DetailedUsage != "" || f.AuditLog != "" || f.ServerEvents != ""
}

// InfluxConfig enables the time-series sink.
type InfluxConfig struct {
	URL    string `toml:"url"`
	Token  string `toml:"token"`
	Org    string `toml:"org"`
	Bucket string `toml:"bucket"`
}

// ElasticConfig enables the search-index sink.
type ElasticConfig struct {
	Addresses []string `toml:"addresses"`
	Index     string   `toml:"index"`
}

// QualysConfig enables the vulnerability-scan trigger.
type QualysConfig struct {
	Active     bool   `toml:"active"`
	URL        string `toml:"url"`
	Login      string `toml:"login"`
	Password   string `toml:"password"`
	OptionName string `toml:"option_name"`
}

// ChatConfig enables the chat notifier.
type ChatConfig struct {
	WebhookURL string `toml:"webhook_url"`
}

// StdoutConfig enables the console echo sink.
type StdoutConfig struct {
	Enabled bool `toml:"enabled"`
	Pretty  bool `toml:"pretty"`
}

// Load reads the TOML file at path and applies environment credentials and
// defaults. A missing file yields a default configuration, so the process
// can run on environment variables alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// run on defaults
	default:
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.Pump.Regions) == 0 {
		c.Pump.Regions = append([]string(nil), defaultRegions...)
	}
	if c.Pump.PollInterval.Duration == 0 {
		c.Pump.PollInterval.Duration = defaultPollInterval
	}
	if c.Pump.StepPause.Duration == 0 {
		c.Pump.StepPause.Duration = defaultStepPause
	}
	if c.Pump.User == "" {
		c.Pump.User = os.Getenv("MCP_USER")
	}
	if c.Pump.Password == "" {
		c.Pump.Password = os.Getenv("MCP_PASSWORD")
	}
	if c.Qualys.Login == "" {
		c.Qualys.Login = os.Getenv("QUALYS_LOGIN")
	}
	if c.Qualys.Password == "" {
		c.Qualys.Password = os.Getenv("QUALYS_PASSWORD")
	}
	if c.Chat.WebhookURL == "" {
		c.Chat.WebhookURL = os.Getenv("CHAT_WEBHOOK_URL")
	}
}

// Since resolves the starting date of the pump relative to today: an
// explicit date wins, then a horizon, then today itself.
func (c *Config) Since(today time.Time) (time.Time, error) {
	today = today.UTC().Truncate(24 * time.Hour)

	if c.Pump.Since != "" {
		since, err := time.ParseInLocation("2006-01-02", c.Pump.Since, time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("config: since: %w", err)
		}
		return since, nil
	}
	if c.Pump.Horizon != "" {
		return HorizonDate(c.Pump.Horizon, today)
	}
	return today, nil
}

// HorizonDate computes the date a horizon back from since: "90d" counts
// days back, "3m" snaps to the first of the month, "1y" to the first of
// January.
func HorizonDate(horizon string, since time.Time) (time.Time, error) {
	if len(horizon) < 2 {
		return time.Time{}, fmt.Errorf("config: incorrect horizon %q", horizon)
	}

	var n int
	if _, err := fmt.Sscanf(horizon[:len(horizon)-1], "%d", &n); err != nil || n < 0 {
		return time.Time{}, fmt.Errorf("config: incorrect horizon %q", horizon)
	}

	switch horizon[len(horizon)-1] {
	case 'd':
		return since.AddDate(0, 0, -n), nil
	case 'm':
		years, months := n/12, n%12
		return time.Date(since.Year()-years, since.Month()-time.Month(months), 1, 0, 0, 0, 0, time.UTC), nil
	case 'y':
		return time.Date(since.Year()-n, time.January, 1, 0, 0, 0, 0, time.UTC), nil
	default:
		return time.Time{}, fmt.Errorf("config: incorrect horizon %q", horizon)
	}
}
