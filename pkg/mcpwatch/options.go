package mcpwatch

import (
	"log/slog"
	"time"
)

type options struct {
	configFile string
	user       string
	password   string
	regions    []string
	since      time.Time
	horizon    string
	poll       time.Duration
	stepPause  time.Duration
	endpoint   string
	orgID      string
	reset      bool
	logger     *slog.Logger
}

// Option configures a Watcher.
type Option func(*options)

// WithConfigFile loads sink and pump settings from the given TOML file. A
// missing file is not an error; the watcher then runs on defaults and
// environment variables.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configFile = path }
}

// WithCredentials sets the platform API credentials, overriding the
// configuration file and the MCP_USER / MCP_PASSWORD environment variables.
func WithCredentials(user, password string) Option {
	return func(o *options) { o.user, o.password = user, password }
}

// WithRegions narrows the monitored regions. Default: every platform region.
func WithRegions(regions ...string) Option {
	return func(o *options) { o.regions = regions }
}

// WithSince sets the first day to pump. Overrides WithHorizon.
func WithSince(t time.Time) Option {
	return func(o *options) { o.since = t }
}

// WithHorizon sets how far back to pump: "90d", "3m" or "1y".
func WithHorizon(horizon string) Option {
	return func(o *options) { o.horizon = horizon }
}

// WithPollInterval sets the period of the per-region activation polls.
// Default: 60s.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.poll = d }
}

// WithStepPause sets the pause between consecutive API pulls of one region
// worker. Default: 250ms.
func WithStepPause(d time.Duration) Option {
	return func(o *options) { o.stepPause = d }
}

// WithEndpoint overrides the per-region API host. Intended for tests
// against a mock platform.
func WithEndpoint(url string) Option {
	return func(o *options) { o.endpoint = url }
}

// WithOrganization sets the organization id, skipping the discovery round
// trip at construction.
func WithOrganization(id string) Option {
	return func(o *options) { o.orgID = id }
}

// WithReset resets the sink stores before pumping instead of appending.
func WithReset() Option {
	return func(o *options) { o.reset = true }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}
