package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/mattjoyce/aebridge/internal/channel"
	"github.com/mattjoyce/aebridge/internal/worker"
)

// Config represents the complete aebridge configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Channel ChannelConfig `yaml:"channel"`
	Worker  WorkerConfig  `yaml:"worker"`
	API     APIConfig     `yaml:"api,omitempty"`
	Scene   SceneConfig   `yaml:"scene"`

	// SourcePath is the file the config was loaded from; empty for defaults.
	SourcePath string `yaml:"-"`
	// SourceHash is the BLAKE3 hash of SourcePath.
	SourceHash string `yaml:"-"`
}

// ServiceConfig defines process-wide settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// ChannelConfig locates the command and result files.
type ChannelConfig struct {
	Dir         string `yaml:"dir"`
	CommandFile string `yaml:"command_file"`
	ResultFile  string `yaml:"result_file"`
}

// WorkerConfig defines the host-side poll loop.
type WorkerConfig struct {
	AutoRun      bool          `yaml:"auto_run"`
	PollInterval time.Duration `yaml:"poll_interval"`
	// LockPath defaults to aebridge-worker.lock in the channel directory.
	LockPath string `yaml:"lock_path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is a single bearer token with full access.
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// SceneConfig configures the in-memory host.
type SceneConfig struct {
	ProjectName string `yaml:"project_name"`
}

// Defaults returns a Config with the bridge defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "aebridge",
			LogLevel: "info",
		},
		Channel: ChannelConfig{
			Dir:         os.TempDir(),
			CommandFile: channel.DefaultCommandFile,
			ResultFile:  channel.DefaultResultFile,
		},
		Worker: WorkerConfig{
			AutoRun:      true,
			PollInterval: worker.DefaultPollInterval,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8089",
		},
		Scene: SceneConfig{
			ProjectName: "Untitled Project",
		},
	}
}

// Paths returns the channel file locations.
func (c *Config) Paths() channel.Paths {
	return channel.Paths{
		Dir:         c.Channel.Dir,
		CommandFile: c.Channel.CommandFile,
		ResultFile:  c.Channel.ResultFile,
	}
}

// LockPath returns the worker PID lock location.
func (c *Config) LockPath() string {
	if c.Worker.LockPath != "" {
		return c.Worker.LockPath
	}
	dir := c.Channel.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "aebridge-worker.lock")
}

// WorkerConfig builds the immutable worker configuration.
func (c *Config) WorkerConfig() worker.Config {
	return worker.Config{
		AutoRun:      c.Worker.AutoRun,
		PollInterval: c.Worker.PollInterval,
	}
}
