// Package config centralizes every tunable of the prober behind viper:
// defaults, config file, environment and CLI flags, in that precedence.
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/loginprobe/internal/detect"
	"github.com/xkilldash9x/loginprobe/internal/pipeline"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Target   TargetConfig   `mapstructure:"target" yaml:"target"`
	Detector DetectorConfig `mapstructure:"detector" yaml:"detector"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Input    InputConfig    `mapstructure:"input" yaml:"input"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output"`
	Network  NetworkConfig  `mapstructure:"network" yaml:"network"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// TargetConfig identifies the authentication endpoint under test.
type TargetConfig struct {
	LoginURL      string `mapstructure:"login_url" yaml:"login_url"`
	UsernameField string `mapstructure:"username_field" yaml:"username_field"`
	PasswordField string `mapstructure:"password_field" yaml:"password_field"`
}

// DetectorConfig tunes calibration and scoring sensitivity.
type DetectorConfig struct {
	CalibrationCount int     `mapstructure:"calibration_count" yaml:"calibration_count"`
	ToleranceRatio   float64 `mapstructure:"tolerance_ratio" yaml:"tolerance_ratio"`
	ScoreThreshold   int     `mapstructure:"score_threshold" yaml:"score_threshold"`
	WeightStatus     int     `mapstructure:"weight_status" yaml:"weight_status"`
	WeightLength     int     `mapstructure:"weight_length" yaml:"weight_length"`
	WeightURL        int     `mapstructure:"weight_url" yaml:"weight_url"`
}

// Weights converts the configured weights into the scorer's form.
func (d DetectorConfig) Weights() detect.Weights {
	return detect.Weights{Status: d.WeightStatus, Length: d.WeightLength, URL: d.WeightURL}
}

// PipelineConfig bounds the concurrent execution driver.
type PipelineConfig struct {
	WorkerCount   int           `mapstructure:"worker_count" yaml:"worker_count"`
	RequestPacing time.Duration `mapstructure:"request_pacing" yaml:"request_pacing"`
}

// InputConfig locates the candidate credential list.
type InputConfig struct {
	CredentialFile string `mapstructure:"credential_file" yaml:"credential_file"`
	// Delimiter forces a combo separator. Empty means auto-detect.
	Delimiter string `mapstructure:"delimiter" yaml:"delimiter"`
}

// OutputConfig controls result persistence.
type OutputConfig struct {
	SuspectFile string `mapstructure:"suspect_file" yaml:"suspect_file"`
}

// NetworkConfig tunes the HTTP transport.
type NetworkConfig struct {
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ForceHTTP2      bool          `mapstructure:"force_http2" yaml:"force_http2"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "loginprobe")
	v.SetDefault("logger.log_file", "loginprobe.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "red")

	// -- Target --
	v.SetDefault("target.username_field", "username")
	v.SetDefault("target.password_field", "password")

	// -- Detector --
	v.SetDefault("detector.calibration_count", 5)
	v.SetDefault("detector.tolerance_ratio", detect.DefaultToleranceRatio)
	v.SetDefault("detector.score_threshold", detect.DefaultScoreThreshold)
	v.SetDefault("detector.weight_status", detect.DefaultWeightStatus)
	v.SetDefault("detector.weight_length", detect.DefaultWeightLength)
	v.SetDefault("detector.weight_url", detect.DefaultWeightURL)

	// -- Pipeline --
	v.SetDefault("pipeline.worker_count", pipeline.DefaultWorkerCount)
	v.SetDefault("pipeline.request_pacing", pipeline.DefaultRequestPacing)

	// -- Input --
	v.SetDefault("input.delimiter", "")

	// -- Output --
	v.SetDefault("output.suspect_file", "suspects.jsonl")

	// -- Network --
	v.SetDefault("network.request_timeout", "30s")
	v.SetDefault("network.ignore_tls_errors", false)
	v.SetDefault("network.force_http2", true)
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Unreachable with defaults only.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a validated configuration from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand ~ in user-supplied paths before validation.
	for _, p := range []*string{&cfg.Input.CredentialFile, &cfg.Output.SuspectFile, &cfg.Logger.LogFile} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return nil, fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Detector.CalibrationCount < 1 {
		return fmt.Errorf("detector.calibration_count must be at least 1")
	}
	if c.Detector.ToleranceRatio < 0 {
		return fmt.Errorf("detector.tolerance_ratio must not be negative")
	}
	if c.Detector.ScoreThreshold < 1 {
		return fmt.Errorf("detector.score_threshold must be at least 1")
	}
	if c.Detector.WeightStatus < 0 || c.Detector.WeightLength < 0 || c.Detector.WeightURL < 0 {
		return fmt.Errorf("detector weights must not be negative")
	}
	if c.Pipeline.WorkerCount < pipeline.MinWorkerCount || c.Pipeline.WorkerCount > pipeline.MaxWorkerCount {
		return fmt.Errorf("pipeline.worker_count must be between %d and %d", pipeline.MinWorkerCount, pipeline.MaxWorkerCount)
	}
	if c.Pipeline.RequestPacing < 0 {
		return fmt.Errorf("pipeline.request_pacing must not be negative")
	}
	if c.Network.RequestTimeout <= 0 {
		return fmt.Errorf("network.request_timeout must be a positive duration")
	}
	return nil
}
