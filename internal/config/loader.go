package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that points at a config file.
const EnvConfigPath = "AEBRIDGE_CONFIG"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, interpolates, defaults and validates the config at configPath.
// A directory is taken to contain config.yaml.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.SourcePath = absPath
	if cfg.SourceHash, err = digestFile(absPath); err != nil {
		return nil, err
	}

	applyConfigDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Discover returns the path of the config file to use, or "" when none of
// the standard locations has one.
// Priority: $AEBRIDGE_CONFIG, ~/.config/aebridge/config.yaml, ./config.yaml.
func Discover() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("$%s points at %s: %w", EnvConfigPath, p, err)
		}
		return p, nil
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "aebridge", "config.yaml")
		if fileExists(userConfig) {
			return userConfig, nil
		}
	}

	if fileExists("config.yaml") {
		return "config.yaml", nil
	}
	return "", nil
}

// DiscoverConfig loads the discovered config, or validated defaults when no
// file exists.
func DiscoverConfig() (*Config, error) {
	path, err := Discover()
	if err != nil {
		return nil, err
	}
	if path == "" {
		cfg := Defaults()
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}
	return Load(path)
}

// LoadOrDiscover loads path when set, otherwise falls back to DiscoverConfig.
func LoadOrDiscover(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	return DiscoverConfig()
}

// loadConfigFile decodes the file over the defaults so omitted keys keep
// their default values.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	cfg := Defaults()
	if strings.TrimSpace(interpolated) == "" {
		return cfg, nil
	}
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

// applyConfigDefaults fills values a file set explicitly to empty.
func applyConfigDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	if cfg.Channel.Dir == "" {
		cfg.Channel.Dir = defaults.Channel.Dir
	}
	if cfg.Channel.CommandFile == "" {
		cfg.Channel.CommandFile = defaults.Channel.CommandFile
	}
	if cfg.Channel.ResultFile == "" {
		cfg.Channel.ResultFile = defaults.Channel.ResultFile
	}
	if cfg.Worker.PollInterval == 0 {
		cfg.Worker.PollInterval = defaults.Worker.PollInterval
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
	if cfg.Scene.ProjectName == "" {
		cfg.Scene.ProjectName = defaults.Scene.ProjectName
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// Validate checks a loaded configuration.
func Validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	if err := unresolved("channel.dir", cfg.Channel.Dir); err != nil {
		return err
	}
	if cfg.Channel.CommandFile == cfg.Channel.ResultFile {
		return fmt.Errorf("channel.command_file and channel.result_file must differ (both %q)", cfg.Channel.CommandFile)
	}
	for field, name := range map[string]string{
		"channel.command_file": cfg.Channel.CommandFile,
		"channel.result_file":  cfg.Channel.ResultFile,
	} {
		if strings.ContainsAny(name, `/\`) {
			return fmt.Errorf("%s must be a file name, not a path (got %q)", field, name)
		}
	}

	if cfg.Worker.PollInterval < 0 {
		return errors.New("worker.poll_interval must be positive")
	}

	if cfg.API.Enabled {
		if err := unresolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
			return err
		}
		if cfg.API.Auth.APIKey == "" && len(cfg.API.Auth.Tokens) == 0 {
			return errors.New("api.auth: api_key or tokens required when api.enabled is true")
		}
		for i, tok := range cfg.API.Auth.Tokens {
			if tok.Token == "" {
				return fmt.Errorf("api.auth.tokens[%d].token is required", i)
			}
			if err := unresolved(fmt.Sprintf("api.auth.tokens[%d].token", i), tok.Token); err != nil {
				return err
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("api.auth.tokens[%d].scopes must be non-empty", i)
			}
		}
	}

	return nil
}

func unresolved(field, value string) error {
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
