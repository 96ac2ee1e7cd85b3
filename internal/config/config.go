// Package config provides configuration management for the classifier service.
package config

import (
	"time"

	"github.com/liamcoop/classifier/rules"
)

// Config is the complete service configuration.
type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Rules          RulesConfig
	Classification ClassificationConfig
	RateLimit      RateLimitConfig
	Log            LogConfig

	// Schema declares record attributes. When set, rule conditions are
	// type-checked against it on save.
	Schema []SchemaField
}

// SchemaField declares one record attribute. It is a list entry rather
// than a map key because viper folds map keys to lower case.
type SchemaField struct {
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host                 string
	Port                 int
	RequestTimeout       time.Duration
	SlowRequestThreshold time.Duration
	ShutdownTimeout      time.Duration
}

// DatabaseConfig holds the rule store and result archive connection.
// An empty URL keeps rules and results in memory.
type DatabaseConfig struct {
	URL         string
	AutoMigrate bool
}

// RulesConfig controls where rules come from and how often the snapshot
// is reloaded.
type RulesConfig struct {
	// File switches to a read-only rule file watched for changes.
	File            string
	RefreshSchedule string
	CacheTTL        time.Duration
}

// ClassificationConfig holds engine parameters.
type ClassificationConfig struct {
	DefaultLabel       string
	ConfidenceFloor    float64
	FallbackConfidence float64
	HashFields         []string
	Labels             []string
}

// RateLimitConfig limits the classification endpoints. RPS 0 disables it.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level           string
	ErrorSampleRate int
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                 "0.0.0.0",
			Port:                 8080,
			RequestTimeout:       30 * time.Second,
			SlowRequestThreshold: 500 * time.Millisecond,
			ShutdownTimeout:      10 * time.Second,
		},
		Database: DatabaseConfig{
			AutoMigrate: true,
		},
		Rules: RulesConfig{
			RefreshSchedule: "@every 1m",
		},
		Classification: ClassificationConfig{
			DefaultLabel:       "C",
			ConfidenceFloor:    0.5,
			FallbackConfidence: 0.3,
		},
		RateLimit: RateLimitConfig{
			RPS:   50,
			Burst: 100,
		},
		Log: LogConfig{
			Level:           "INFO",
			ErrorSampleRate: 1,
		},
	}
}

// RecordSchema converts the configured schema. It returns nil when no
// schema is configured.
func (c *Config) RecordSchema() rules.Schema {
	if len(c.Schema) == 0 {
		return nil
	}
	schema := make(rules.Schema, len(c.Schema))
	for _, f := range c.Schema {
		schema[f.Name] = rules.FieldType(f.Type)
	}
	return schema
}
