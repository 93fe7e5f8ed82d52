package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration. Per-user state lives
// in its own files under UsersDir and is managed by internal/userstore;
// this file only carries process-wide settings.
type Config struct {
	// Listen is the HTTP listen address used by `roostersync serve`.
	Listen string `yaml:"listen" json:"listen"`

	// UsersDir is the directory holding one YAML record per registered user.
	UsersDir string `yaml:"users_dir" json:"users_dir"`

	// OutputDir is the directory the calendar files are written to.
	OutputDir string `yaml:"output_dir" json:"output_dir"`

	// ProviderURL is the base URL of the scheduling site.
	ProviderURL string `yaml:"provider_url" json:"provider_url"`

	// LogLevel is the minimum slog level ("debug", "info", "warn", "error").
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		UsersDir:    "./config",
		OutputDir:   "./ics",
		ProviderURL: "https://jouwloon.nl",
		LogLevel:    "info",
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.UsersDir == "" {
		c.UsersDir = "./config"
	}
	if c.OutputDir == "" {
		c.OutputDir = "./ics"
	}
	if c.ProviderURL == "" {
		c.ProviderURL = "https://jouwloon.nl"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// ApplyEnv overlays values from the environment. Environment wins over the
// file; CLI flags (handled by the caller) win over both.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("ROOSTERSYNC_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("ROOSTERSYNC_USERS_DIR"); v != "" {
		c.UsersDir = v
	}
	if v := os.Getenv("ROOSTERSYNC_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("ROOSTERSYNC_PROVIDER_URL"); v != "" {
		c.ProviderURL = v
	}
	if v := os.Getenv("ROOSTERSYNC_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written there (0600,
// parent directory created as needed) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Return cfg alongside the error so the caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration atomically: marshal to a temp file in the
// target directory, fsync, chmod 0600, then rename over the destination.
// An interrupted write never clobbers the previous valid file.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return WriteFileAtomic(path, data, 0o600)
}

// WriteFileAtomic writes data to path via a temp file + rename in the same
// directory, creating the parent directory if needed. Used for the app
// config, the per-user records and the emitted calendars alike.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".roostersync-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
