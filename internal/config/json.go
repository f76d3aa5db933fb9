package config

import (
	"encoding/json"
	"os"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations may
// be given as strings like "2s" or as integer nanoseconds; after parsing,
// values are copied into the runtime Config.
type JsonConfig struct {
	APIBaseURL   string   `json:"api_base_url"`
	DatabasePath string   `json:"database_path"`
	PollInterval Duration `json:"poll_interval"`
	PollAttempts int      `json:"poll_attempts"`
}

// parseJson overlays Config with values loaded from a JSON file. The file
// path comes from the -c or -config flags; with neither present no JSON is
// loaded. Read or unmarshal errors panic (caller should recover if desired).
//
// Intended usage is: defaults -> parseJson -> parseFlags, where later stages
// override earlier ones.
func parseJson(cfg *Config) {
	jsonConfigFile := jsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.APIBaseURL != "" {
		cfg.APIBaseURL = jc.APIBaseURL
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.PollInterval.Duration != 0 {
		cfg.PollInterval = jc.PollInterval.Duration
	}
	if jc.PollAttempts != 0 {
		cfg.PollAttempts = jc.PollAttempts
	}
}
