package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// EnvGithubToken is the environment variable name for the GitHub API token
	EnvGithubToken = "TRIAGE_GITHUB_TOKEN"

	// EnvGithubTokenFallback is read when EnvGithubToken is unset, matching
	// the variable CI runners provide
	EnvGithubTokenFallback = "GITHUB_TOKEN"

	// DefaultProjectName is the board title used when none is configured
	DefaultProjectName = "OSS Triage Board"

	defaultDatabasePath = "triage.db"
	defaultReportDir    = "data"
	defaultWorkers      = 5
)

// Config represents the application configuration
type Config struct {
	// GitHub API token (optional here, can be set via TRIAGE_GITHUB_TOKEN or GITHUB_TOKEN)
	GitHubToken string `yaml:"github_token,omitempty"`

	// Path to the SQLite database file holding the latest snapshot
	DatabasePath string `yaml:"database_path"`

	// List of repositories to triage in the format "owner/name"
	Repositories []string `yaml:"repositories"`

	// Login of the user or organization that owns the board. Defaults to the
	// owner of the first repository.
	ProjectOwner string `yaml:"project_owner,omitempty"`

	// Title of the project board
	ProjectName string `yaml:"project_name"`

	// Number of concurrent timeline fetches
	Workers int `yaml:"workers"`

	// Directory for markdown, HTML and JSON reports
	ReportDir string `yaml:"report_dir"`

	// Optional node_exporter textfile the run's metrics are written to
	MetricsTextfile string `yaml:"metrics_textfile,omitempty"`
}

// LoadRaw loads the configuration file as written, without environment
// overrides or defaults
func LoadRaw(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &config, nil
}

// LoadConfig loads the configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	config, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}

	// Check for GitHub token in environment variables
	if envToken := os.Getenv(EnvGithubToken); envToken != "" {
		config.GitHubToken = envToken
	} else if envToken := os.Getenv(EnvGithubTokenFallback); envToken != "" && config.GitHubToken == "" {
		config.GitHubToken = envToken
	}

	config.applyDefaults(filepath.Dir(path))
	return config, nil
}

func (c *Config) applyDefaults(configDir string) {
	if c.DatabasePath == "" {
		c.DatabasePath = defaultDatabasePath
	}
	if c.ReportDir == "" {
		c.ReportDir = defaultReportDir
	}
	if c.ProjectName == "" {
		c.ProjectName = DefaultProjectName
	}
	if c.Workers == 0 {
		c.Workers = defaultWorkers
	}
	if c.ProjectOwner == "" && len(c.Repositories) > 0 {
		if owner, _, ok := strings.Cut(c.Repositories[0], "/"); ok {
			c.ProjectOwner = owner
		}
	}

	// Make paths absolute if they're relative
	if !filepath.IsAbs(c.DatabasePath) {
		c.DatabasePath = filepath.Join(configDir, c.DatabasePath)
	}
	if !filepath.IsAbs(c.ReportDir) {
		c.ReportDir = filepath.Join(configDir, c.ReportDir)
	}
	if c.MetricsTextfile != "" && !filepath.IsAbs(c.MetricsTextfile) {
		c.MetricsTextfile = filepath.Join(configDir, c.MetricsTextfile)
	}
}

// Validate checks that the configuration can drive a sync
func (c *Config) Validate() error {
	var errs []error
	if c.GitHubToken == "" {
		errs = append(errs, fmt.Errorf("no GitHub token: set github_token or %s", EnvGithubToken))
	}
	if c.ProjectOwner == "" {
		errs = append(errs, errors.New("no project_owner and no repositories to derive it from"))
	}
	for _, repo := range c.Repositories {
		owner, name, ok := strings.Cut(repo, "/")
		if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
			errs = append(errs, fmt.Errorf("invalid repository %q, expected 'owner/name'", repo))
		}
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	return errors.Join(errs...)
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(config *Config, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// CreateDefaultConfig creates a default configuration file if it doesn't exist
func CreateDefaultConfig(path string) error {
	// Check if the file already exists
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, don't overwrite
	}

	config := &Config{
		DatabasePath: defaultDatabasePath,
		Repositories: []string{"example/repo"},
		ProjectName:  DefaultProjectName,
		Workers:      defaultWorkers,
		ReportDir:    defaultReportDir,
	}

	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return SaveConfig(config, path)
}
