package config

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/liamcoop/classifier/internal/logger"
	"github.com/liamcoop/classifier/rules"
)

// EnvPrefix prefixes environment overrides, e.g. CLASSIFIER_SERVER_PORT.
const EnvPrefix = "CLASSIFIER"

// LoadConfig loads configuration using viper.
// Environment > config file > defaults precedence; CLI flags are applied
// by the caller on top.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:                 v.GetString("server.host"),
			Port:                 v.GetInt("server.port"),
			RequestTimeout:       v.GetDuration("server.request_timeout"),
			SlowRequestThreshold: v.GetDuration("server.slow_request_threshold"),
			ShutdownTimeout:      v.GetDuration("server.shutdown_timeout"),
		},
		Database: DatabaseConfig{
			URL:         v.GetString("database.url"),
			AutoMigrate: v.GetBool("database.auto_migrate"),
		},
		Rules: RulesConfig{
			File:            v.GetString("rules.file"),
			RefreshSchedule: v.GetString("rules.refresh_schedule"),
			CacheTTL:        v.GetDuration("rules.cache_ttl"),
		},
		Classification: ClassificationConfig{
			DefaultLabel:       v.GetString("classification.default_label"),
			ConfidenceFloor:    v.GetFloat64("classification.confidence_floor"),
			FallbackConfidence: v.GetFloat64("classification.fallback_confidence"),
			HashFields:         v.GetStringSlice("classification.hash_fields"),
			Labels:             v.GetStringSlice("classification.labels"),
		},
		RateLimit: RateLimitConfig{
			RPS:   v.GetFloat64("ratelimit.rps"),
			Burst: v.GetInt("ratelimit.burst"),
		},
		Log: LogConfig{
			Level:           v.GetString("log.level"),
			ErrorSampleRate: v.GetInt("log.error_sample_rate"),
		},
	}
	if err := v.UnmarshalKey("schema", &cfg.Schema); err != nil {
		return nil, errors.Wrap(err, "failed to decode schema")
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)
	v.SetDefault("server.slow_request_threshold", d.Server.SlowRequestThreshold)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("database.auto_migrate", d.Database.AutoMigrate)
	v.SetDefault("rules.file", d.Rules.File)
	v.SetDefault("rules.refresh_schedule", d.Rules.RefreshSchedule)
	v.SetDefault("rules.cache_ttl", d.Rules.CacheTTL)
	v.SetDefault("classification.default_label", d.Classification.DefaultLabel)
	v.SetDefault("classification.confidence_floor", d.Classification.ConfidenceFloor)
	v.SetDefault("classification.fallback_confidence", d.Classification.FallbackConfidence)
	v.SetDefault("classification.hash_fields", []string{})
	v.SetDefault("classification.labels", []string{})
	v.SetDefault("ratelimit.rps", d.RateLimit.RPS)
	v.SetDefault("ratelimit.burst", d.RateLimit.Burst)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.error_sample_rate", d.Log.ErrorSampleRate)
}

// Validate checks ranges and cross-field constraints.
func Validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.Newf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return errors.Newf("server.request_timeout must be positive, got %v", cfg.Server.RequestTimeout)
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		return errors.Newf("server.shutdown_timeout must be positive, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Rules.CacheTTL < 0 {
		return errors.Newf("rules.cache_ttl must not be negative, got %v", cfg.Rules.CacheTTL)
	}
	if s := strings.TrimSpace(cfg.Rules.RefreshSchedule); s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			return errors.Wrapf(err, "rules.refresh_schedule %q is invalid", s)
		}
	}

	c := cfg.Classification
	if strings.TrimSpace(c.DefaultLabel) == "" {
		return errors.New("classification.default_label must not be empty")
	}
	if c.ConfidenceFloor <= 0 || c.ConfidenceFloor >= 1 {
		return errors.Newf("classification.confidence_floor must be in (0, 1), got %v", c.ConfidenceFloor)
	}
	if c.FallbackConfidence < 0 || c.FallbackConfidence > 0.5 {
		return errors.Newf("classification.fallback_confidence must be in [0, 0.5], got %v", c.FallbackConfidence)
	}
	if c.FallbackConfidence >= c.ConfidenceFloor {
		return errors.Newf("classification.fallback_confidence (%v) must be below confidence_floor (%v)", c.FallbackConfidence, c.ConfidenceFloor)
	}

	if cfg.RateLimit.RPS < 0 {
		return errors.Newf("ratelimit.rps must not be negative, got %v", cfg.RateLimit.RPS)
	}
	if cfg.RateLimit.RPS > 0 && cfg.RateLimit.Burst <= 0 {
		return errors.Newf("ratelimit.burst must be positive when rate limiting is enabled, got %d", cfg.RateLimit.Burst)
	}

	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}

	seen := make(map[string]bool, len(cfg.Schema))
	for _, f := range cfg.Schema {
		if seen[f.Name] {
			return errors.Newf("schema declares field %q twice", f.Name)
		}
		seen[f.Name] = true
	}
	if schema := cfg.RecordSchema(); schema != nil {
		if err := rules.ValidateSchema(schema); err != nil {
			return errors.Wrap(err, "schema")
		}
	}
	return nil
}
