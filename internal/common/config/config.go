// Package config provides configuration management for the coordinator.
// It supports loading configuration from environment variables, a config
// file, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// ServerVersion is the compiled-in protocol version. An imported Run is
// rejected unless its server_version equals this value.
const ServerVersion = "1.0.0"

// Config holds all configuration sections for the coordinator.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Summarizer SummarizerConfig `mapstructure:"summarizer"`
	RunLog     RunLogConfig     `mapstructure:"runLog"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Events     EventsConfig     `mapstructure:"events"`
	Index      IndexConfig      `mapstructure:"index"`
}

// ServerConfig holds the coordinator's two listening ports.
type ServerConfig struct {
	Host      string `mapstructure:"host"`
	AgentPort int    `mapstructure:"agentPort"`
	UIPort    int    `mapstructure:"uiPort"`
}

// SummarizerConfig configures the best-effort LLM summarizer adapter.
type SummarizerConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Provider      string `mapstructure:"provider"` // "none" | "anthropic" | ...
	Model         string `mapstructure:"model"`
	CredentialEnv string `mapstructure:"credentialEnv"`
}

// RunLogConfig configures the per-run file log.
type RunLogConfig struct {
	Directory string `mapstructure:"directory"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// EventsConfig configures the observability-only NATS event bus. When
// Enabled is false an in-memory bus is used instead, so the service runs
// with no external dependency by default.
type EventsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	NATSURL string `mapstructure:"natsUrl"`
	Subject string `mapstructure:"subject"`
}

// IndexConfig configures the optional secondary run-metadata index.
type IndexConfig struct {
	Driver string `mapstructure:"driver"` // "memory" | "sqlite" | "postgres"
	DSN    string `mapstructure:"dsn"`
}

// Load reads configuration from environment variables, a config file, and
// defaults.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default
// locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("AGENTBREAK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/agentbreak/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.agentPort", 7001)
	v.SetDefault("server.uiPort", 7002)

	v.SetDefault("summarizer.enabled", false)
	v.SetDefault("summarizer.provider", "none")
	v.SetDefault("summarizer.model", "")
	v.SetDefault("summarizer.credentialEnv", "AGENTBREAK_SUMMARIZER_API_KEY")

	v.SetDefault("runLog.directory", "./runlog")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.natsUrl", "nats://127.0.0.1:4222")
	v.SetDefault("events.subject", "agentbreak.runs")

	v.SetDefault("index.driver", "memory")
	v.SetDefault("index.dsn", "")
}

func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("AGENTBREAK_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.AgentPort <= 0 || cfg.Server.AgentPort > 65535 {
		errs = append(errs, "server.agentPort must be between 1 and 65535")
	}
	if cfg.Server.UIPort <= 0 || cfg.Server.UIPort > 65535 {
		errs = append(errs, "server.uiPort must be between 1 and 65535")
	}
	if cfg.Server.AgentPort == cfg.Server.UIPort {
		errs = append(errs, "server.agentPort and server.uiPort must differ")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text, console")
	}

	validDrivers := map[string]bool{"memory": true, "sqlite": true, "postgres": true}
	if !validDrivers[strings.ToLower(cfg.Index.Driver)] {
		errs = append(errs, "index.driver must be one of: memory, sqlite, postgres")
	}
	if cfg.Index.Driver != "memory" && cfg.Index.DSN == "" {
		errs = append(errs, "index.dsn is required when index.driver is not memory")
	}

	if cfg.RunLog.Directory == "" {
		errs = append(errs, "runLog.directory must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
