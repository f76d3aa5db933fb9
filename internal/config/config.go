package config

import "time"

// Config holds runtime settings shared by the zecrypt surfaces.
//
// Fields:
//   - APIBaseURL: root URL of the remote service.
//   - DatabasePath: path of the embedded SQLite database file.
//   - PollInterval: delay between bridge probes while waiting for a web login.
//   - PollAttempts: probe budget of one polling run.
//
// Units: PollInterval is a time.Duration (e.g., 2*time.Second).
type Config struct {
	APIBaseURL   string
	DatabasePath string
	PollInterval time.Duration
	PollAttempts int
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.APIBaseURL = "https://api.zecrypt.io/api/v1/web"
	c.DatabasePath = "zecrypt.db"
	c.PollInterval = 2 * time.Second
	c.PollAttempts = 30
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
