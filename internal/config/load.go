package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every configuration environment variable.
const EnvPrefix = "SCRY"

var defaults = map[string]any{
	"server.port":                8080,
	"server.log_level":           "info",
	"server.log_format":          "json",
	"server.shutdown_timeout":    30 * time.Second,
	"database.url":               "",
	"database.migrate_on_start":  false,
	"auth.jwt_secret":            "",
	"auth.token_lifetime":        time.Hour,
	"llm.gemini_api_key":         "",
	"llm.max_retries":            3,
	"llm.retry_delay_seconds":    2,
	"llm.prompt_template_path":   "",
	"scheduler.acquire_retries":  10,
	"scheduler.acquire_interval": time.Second,
	"scheduler.retention":        72 * time.Hour,
	"scheduler.sweep_schedule":   "@every 1h",
	"storage.backend":            "postgres",
	"storage.redis_addr":         "",
	"storage.redis_ttl":          time.Duration(0),
	"storage.artifact_root":      "",
	"storage.max_artifact_bytes": int64(10 << 20),
	"storage.minio.endpoint":     "",
	"storage.minio.access_key":   "",
	"storage.minio.secret_key":   "",
	"storage.minio.bucket":       "",
	"storage.minio.use_ssl":      false,
	"events.kafka_brokers":       []string{},
	"events.kafka_topic":         "scry.reports.events",
	"scoring.rules_path":         "",
}

// flagKeys maps command line flag names to configuration keys.
var flagKeys = map[string]string{
	"port":      "server.port",
	"log-level": "server.log_level",
}

// Load reads configuration from defaults, an optional YAML file, environment
// variables (SCRY_SECTION_KEY) and command line flags, in increasing order
// of precedence. configFile may be empty and flags may be nil.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetDefault("units", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	// SCRY_UNITS is a compact "capability:instance,..." list.
	if raw, ok := v.Get("units").(string); ok {
		units, err := ParseUnits(raw)
		if err != nil {
			return nil, err
		}
		v.Set("units", units)
	}

	// Lists in env vars arrive as one comma separated string.
	if raw, ok := v.Get("events.kafka_brokers").(string); ok {
		v.Set("events.kafka_brokers", splitList(raw))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if c.Storage.Backend == "postgres" && c.Database.URL == "" {
		return errors.New("config validation failed: database.url is required for the postgres backend")
	}
	return nil
}

// ParseUnits parses "capability:instance" pairs separated by commas.
func ParseUnits(raw string) ([]UnitConfig, error) {
	var units []UnitConfig
	for _, item := range splitList(raw) {
		capability, instance, ok := strings.Cut(item, ":")
		if !ok || strings.TrimSpace(capability) == "" || strings.TrimSpace(instance) == "" {
			return nil, fmt.Errorf("invalid unit %q: expected capability:instance", item)
		}
		units = append(units, UnitConfig{
			Capability: strings.TrimSpace(capability),
			Instance:   strings.TrimSpace(instance),
		})
	}
	return units, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
