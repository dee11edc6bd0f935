// Package config provides configuration management for the flint engine,
// loaded with viper the same way the rest of this codebase's ancestor
// services load theirs: defaults, then file, then environment overrides.
package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds all configuration for an Engine.
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

// EngineConfig controls the dataflow engine's execution behavior.
type EngineConfig struct {
	// Backend selects which backends are available: "cpu", "gpu", or "both".
	Backend string `mapstructure:"backend"`
	// Workers is the requested CPU worker pool size. Validate rejects
	// negative values; internal/engine does not read this field, and the
	// pool always starts cpuexec.NumWorkers() workers.
	Workers int `mapstructure:"workers"`
	// ParallelThreshold records the score*output_size split point (default
	// 256). internal/engine does not read this field; internal/cpuexec
	// applies its own ParallelThreshold constant of 256.
	ParallelThreshold int64 `mapstructure:"parallel_threshold"`
	// GPUDispatchThreshold is the n*score*boost ratio threshold for GPU dispatch
	// (spec constant: 1024).
	GPUDispatchThreshold int64 `mapstructure:"gpu_dispatch_threshold"`
	// EagerExecution runs each op immediately instead of lazily fusing.
	EagerExecution bool `mapstructure:"eager_execution"`
	// OptimizeMemory demotes a materialized node to a store node and
	// releases its predecessor edges once it is known not to be a gradient
	// source (spec §3's optimize_memory lifecycle step), trading the
	// ability to cheaply recompute a node's backward cone for a smaller
	// live working set.
	OptimizeMemory bool `mapstructure:"optimize_memory"`
}

// CacheConfig controls the on-disk kernel-source cache.
type CacheConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Type     string `mapstructure:"type"` // postgres, mysql, or sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// StorageConfig controls where serialized tensors are persisted.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // local or cos
	LocalPath string `mapstructure:"local_path"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`
	Scheme    string `mapstructure:"scheme"`
	Compress  string `mapstructure:"compress"` // none, gzip, zstd
}

// TelemetryConfig controls the execution-record sink: when Enabled,
// internal/engine opens internal/execlog with Endpoint as its ClickHouse
// DSN. ServiceName and Protocol are not read by the engine; pkg/telemetry
// takes its OpenTelemetry settings from OTEL_* environment variables.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Endpoint    string `mapstructure:"endpoint"`
	Protocol    string `mapstructure:"protocol"`
}

// LogConfig controls diagnostic output.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
}

// Load reads configuration from the given path (or standard locations if
// empty), applying defaults and environment overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("flint")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/flint")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// fine, defaults apply
		} else if os.IsNotExist(err) {
			// fine, defaults apply
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadFromReader loads configuration from raw bytes, useful for tests.
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	switch c.Engine.Backend {
	case "cpu", "gpu", "both":
	default:
		return fmt.Errorf("invalid engine.backend %q: must be cpu, gpu, or both", c.Engine.Backend)
	}
	if c.Engine.Workers < 0 {
		return fmt.Errorf("engine.workers must be >= 0")
	}
	if c.Storage.Type != "local" && c.Storage.Type != "cos" {
		return fmt.Errorf("invalid storage.type %q: must be local or cos", c.Storage.Type)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.backend", "cpu")
	v.SetDefault("engine.workers", 0)
	v.SetDefault("engine.parallel_threshold", 256)
	v.SetDefault("engine.gpu_dispatch_threshold", 1024)
	v.SetDefault("engine.eager_execution", false)
	v.SetDefault("engine.optimize_memory", false)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.type", "sqlite")
	v.SetDefault("cache.database", "flint_kernel_cache.db")

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./flint-data")
	v.SetDefault("storage.compress", "none")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "flint-engine")
	v.SetDefault("telemetry.protocol", "grpc")

	v.SetDefault("log.level", "info")
}
