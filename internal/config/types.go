// Package config provides configuration loading for atom.
//
// Configuration is loaded using Viper, supporting a YAML config file and
// environment variable overrides. The defaults work without any file.
//
// Key types:
//   - [Config] is the root configuration container
//   - [Loader] handles Viper-based configuration loading
//   - [LogConfig] controls log level and the optional log file
//   - [WorkflowsConfig] controls where generated workflow files are written
//
// Configuration priority (highest to lowest):
//  1. Environment variables (ATOM_ prefix, dots become underscores:
//     ATOM_LOG_LEVEL overrides log.level)
//  2. Config file specified by ATOM_CONFIG_PATH
//  3. ./atom.yaml
//  4. ./.atom/atom.yaml
//  5. [DefaultConfig] defaults
package config

// Config represents the root configuration structure.
type Config struct {
	// BuildFile is the declarative build file loaded when present.
	// Default: "atom.hcl"
	BuildFile string `mapstructure:"build_file"`

	// ArtifactsDir is the local staging root for produced artifacts.
	// Default: ".atom/artifacts"
	ArtifactsDir string `mapstructure:"artifacts_dir"`

	// Log contains logger settings.
	Log LogConfig `mapstructure:"log"`

	// Workflows contains workflow generation settings.
	Workflows WorkflowsConfig `mapstructure:"workflows"`

	// Secrets contains local secret store settings.
	Secrets SecretsConfig `mapstructure:"secrets"`
}

// LogConfig controls the run logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: "info"
	Level string `mapstructure:"level"`

	// File is an optional rotating log file. Empty disables file logging.
	File string `mapstructure:"file"`
}

// WorkflowsConfig controls workflow file generation.
type WorkflowsConfig struct {
	// GitHubDir is where GitHub Actions workflows are written.
	// Default: ".github/workflows"
	GitHubDir string `mapstructure:"github_dir"`

	// DevOpsDir is where Azure DevOps pipelines are written.
	// Default: ".devops/workflows"
	DevOpsDir string `mapstructure:"devops_dir"`

	// Entrypoint is the command generated steps invoke to run a target.
	// Default: "atom"
	Entrypoint string `mapstructure:"entrypoint"`
}

// SecretsConfig configures the local secret store.
type SecretsConfig struct {
	// File is a YAML map of flag name to secret value. Missing files are
	// ignored.
	// Default: ".atom/secrets.yaml"
	File string `mapstructure:"file"`
}

// DefaultConfig returns a new [Config] with the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		BuildFile:    "atom.hcl",
		ArtifactsDir: ".atom/artifacts",
		Log: LogConfig{
			Level: "info",
		},
		Workflows: WorkflowsConfig{
			GitHubDir:  ".github/workflows",
			DevOpsDir:  ".devops/workflows",
			Entrypoint: "atom",
		},
		Secrets: SecretsConfig{
			File: ".atom/secrets.yaml",
		},
	}
}
