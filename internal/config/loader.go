package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "ATOM"

// ConfigPathEnv names an explicit config file.
const ConfigPathEnv = "ATOM_CONFIG_PATH"

// searchPaths are tried in order when ATOM_CONFIG_PATH is unset.
var searchPaths = []string{
	"atom.yaml",
	filepath.Join(".atom", "atom.yaml"),
}

// Loader loads [Config] through Viper.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a Loader with defaults and environment overrides wired.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())
	return &Loader{v: v}
}

// setDefaults registers every key so that AutomaticEnv overrides apply
// during Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("build_file", cfg.BuildFile)
	v.SetDefault("artifacts_dir", cfg.ArtifactsDir)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("workflows.github_dir", cfg.Workflows.GitHubDir)
	v.SetDefault("workflows.devops_dir", cfg.Workflows.DevOpsDir)
	v.SetDefault("workflows.entrypoint", cfg.Workflows.Entrypoint)
	v.SetDefault("secrets.file", cfg.Secrets.File)
}

// Load reads the first config file found (see package docs) and applies
// environment overrides. A missing file is not an error.
func (l *Loader) Load() (*Config, error) {
	if path := os.Getenv(ConfigPathEnv); path != "" {
		return l.LoadFromFile(path)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return l.LoadFromFile(path)
		}
	}

	return l.unmarshal()
}

// LoadFromFile reads path and applies environment overrides.
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file %s: file not found", path)
		}
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, nil
}

// ConfigFileUsed returns the file the last load read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// MustLoad loads configuration, panicking on error.
func MustLoad() *Config {
	cfg, err := NewLoader().Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
