/*
Package config loads engine configuration from a YAML file.

The dedup bucket width and retention horizon are policy parameters, not
constants: they are tuned against observed notification redelivery
latencies. Defaults are conservative (60s bucket, 48h retention) and a
missing config file simply yields the defaults.
*/
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all tunables for the engine.
type Config struct {
	// HTTP server
	Port int `yaml:"port"`

	// SQLite database path; ":memory:" for ephemeral runs.
	DatabasePath string `yaml:"database_path"`

	// Scheduling pass cadence for the built-in host scheduler.
	PassInterval time.Duration `yaml:"pass_interval"`

	// Dedup policy. Late eviction is safe; early eviction is not, so
	// Retention should comfortably exceed any expected redelivery delay.
	FingerprintBucket time.Duration `yaml:"fingerprint_bucket"`
	DedupRetention    time.Duration `yaml:"dedup_retention"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:              8080,
		DatabasePath:      "finance.db",
		PassInterval:      15 * time.Minute,
		FingerprintBucket: 60 * time.Second,
		DedupRetention:    48 * time.Hour,
	}
}

// UnmarshalYAML layers the file's keys over whatever the Config already
// holds. Durations are written as strings ("30s", "15m") and parsed
// with time.ParseDuration; absent keys leave the current value alone.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type raw struct {
		Port              *int   `yaml:"port"`
		DatabasePath      string `yaml:"database_path"`
		PassInterval      string `yaml:"pass_interval"`
		FingerprintBucket string `yaml:"fingerprint_bucket"`
		DedupRetention    string `yaml:"dedup_retention"`
	}
	var r raw
	if err := value.Decode(&r); err != nil {
		return err
	}

	if r.Port != nil {
		c.Port = *r.Port
	}
	if r.DatabasePath != "" {
		c.DatabasePath = r.DatabasePath
	}
	for _, f := range []struct {
		key  string
		text string
		dst  *time.Duration
	}{
		{"pass_interval", r.PassInterval, &c.PassInterval},
		{"fingerprint_bucket", r.FingerprintBucket, &c.FingerprintBucket},
		{"dedup_retention", r.DedupRetention, &c.DedupRetention},
	} {
		if f.text == "" {
			continue
		}
		d, err := time.ParseDuration(f.text)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", f.key, f.text, err)
		}
		*f.dst = d
	}
	return nil
}

// Load reads the YAML file at path, layering it over the defaults.
// A missing file is not an error; malformed YAML is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg.validate()
}

func (c Config) validate() (Config, error) {
	if c.Port <= 0 || c.Port > 65535 {
		return c, fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PassInterval <= 0 {
		return c, fmt.Errorf("pass_interval must be positive")
	}
	if c.FingerprintBucket <= 0 {
		return c, fmt.Errorf("fingerprint_bucket must be positive")
	}
	if c.DedupRetention < c.FingerprintBucket {
		return c, fmt.Errorf("dedup_retention must be at least the fingerprint bucket")
	}
	return c, nil
}
