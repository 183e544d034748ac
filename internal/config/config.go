// Package config provides configuration management for catrole. It uses
// Viper to merge defaults, an optional YAML file and CATROLE_ environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/keanuharrell/catrole/internal/core"
)

// =============================================================================
// Configuration Structures
// =============================================================================

// Config represents the complete application configuration.
type Config struct {
	AWS             AWSConfig     `mapstructure:"aws"`
	AssumeRole      string        `mapstructure:"assume_role"`
	DefaultRoleFile string        `mapstructure:"default_role_file"`
	Output          OutputConfig  `mapstructure:"output"`
	Logging         LoggingConfig `mapstructure:"logging"`
	Hooks           HooksConfig   `mapstructure:"hooks"`
}

// AWSConfig holds AWS connection settings.
type AWSConfig struct {
	Profile string      `mapstructure:"profile"`
	Region  string      `mapstructure:"region"`
	Retry   RetryConfig `mapstructure:"retry"`
}

// ToCore converts AWSConfig to core.AWSConfig.
func (c *AWSConfig) ToCore() *core.AWSConfig {
	return &core.AWSConfig{
		Profile:     c.Profile,
		Region:      c.Region,
		MaxAttempts: c.Retry.MaxAttempts,
	}
}

// RetryConfig configures AWS API retry behavior. Assume-role calls never
// retry regardless of this setting.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

// OutputConfig controls presentation and export.
type OutputConfig struct {
	Format string `mapstructure:"format"` // table, json
	CSV    bool   `mapstructure:"csv"`
	Dir    string `mapstructure:"dir"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

// HooksConfig configures the hook system.
type HooksConfig struct {
	Audit AuditHookConfig `mapstructure:"audit"`
}

// AuditHookConfig configures the audit hook.
type AuditHookConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	LogFile    string `mapstructure:"log_file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// ResolveAssumeRole returns the role to assume in target accounts: flag if
// set, else assume_role, else the trimmed contents of default_role_file.
func (c *Config) ResolveAssumeRole(flag string) (string, error) {
	if role := strings.TrimSpace(flag); role != "" {
		return role, nil
	}
	if role := strings.TrimSpace(c.AssumeRole); role != "" {
		return role, nil
	}
	if role := readRoleFile(c.DefaultRoleFile); role != "" {
		return role, nil
	}
	return "", fmt.Errorf("%w: %s", core.ErrConfigInvalid, MissingRoleMessage)
}

func readRoleFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// =============================================================================
// Configuration Loader
// =============================================================================

// Loader handles configuration loading.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigName(AppName)

	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", AppName))
	}
	v.AddConfigPath("/etc/" + AppName)

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// Load loads the configuration from file and environment. A missing config
// file is not an error; an explicit path that cannot be read is.
func (l *Loader) Load(path string) (*Config, error) {
	setDefaults(l.v)

	if path != "" {
		l.v.SetConfigFile(path)
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %v", core.ErrConfigReadFailed, err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	expandPaths(&cfg)
	return &cfg, nil
}

// ConfigFile returns the path to the loaded config file.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("aws.profile", "")
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.retry.max_attempts", 3)

	v.SetDefault("assume_role", "")
	v.SetDefault("default_role_file", DefaultRoleFile)

	v.SetDefault("output.format", FormatTable)
	v.SetDefault("output.csv", true)
	v.SetDefault("output.dir", ".")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("hooks.audit.enabled", false)
	v.SetDefault("hooks.audit.log_file", "~/.config/catrole/audit.log")
	v.SetDefault("hooks.audit.max_size_mb", 10)
	v.SetDefault("hooks.audit.max_backups", 5)
}

// Normalize lower-cases enumerated values.
func (c *Config) Normalize() {
	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
}

// Validate checks configuration values.
func (c *Config) Validate() error {
	if c.AWS.Retry.MaxAttempts < 0 {
		return core.NewValidationError("aws.retry.max_attempts", c.AWS.Retry.MaxAttempts, "must not be negative", core.ErrConfigInvalid)
	}

	validFormats := map[string]bool{FormatTable: true, FormatJSON: true}
	if !validFormats[c.Output.Format] {
		return core.NewValidationError("output.format", c.Output.Format, "must be table or json", core.ErrConfigInvalid)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return core.NewValidationError("logging.level", c.Logging.Level, "must be debug, info, warn or error", core.ErrConfigInvalid)
	}

	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[c.Logging.Format] {
		return core.NewValidationError("logging.format", c.Logging.Format, "must be text or json", core.ErrConfigInvalid)
	}

	if c.Hooks.Audit.Enabled && c.Hooks.Audit.MaxSizeMB <= 0 {
		return core.NewValidationError("hooks.audit.max_size_mb", c.Hooks.Audit.MaxSizeMB, "must be positive", core.ErrConfigInvalid)
	}

	return nil
}

// expandPaths expands ~ to home directory in paths.
func expandPaths(cfg *Config) {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}

	cfg.DefaultRoleFile = expandPath(cfg.DefaultRoleFile, home)
	cfg.Output.Dir = expandPath(cfg.Output.Dir, home)
	cfg.Hooks.Audit.LogFile = expandPath(cfg.Hooks.Audit.LogFile, home)
}

// expandPath expands ~ to home directory.
func expandPath(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
