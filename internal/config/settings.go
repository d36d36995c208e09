package config

import (
	"fmt"
	"strings"
)

// Settings is the config block of skillset.yaml
type Settings struct {
	AutoUpdate bool `yaml:"auto_update"`

	// Concurrent installs, 1..10
	ParallelDownloads int `yaml:"parallel_downloads"`

	// Name of the environment variable holding the GitHub token
	GitHubTokenEnv string `yaml:"github_token_env"`

	// Refuse GitHub sources without version or ref
	Strict bool `yaml:"strict"`

	CacheDir string `yaml:"cache_dir,omitempty"`
}

// DefaultSettings returns default configuration
func DefaultSettings() *Settings {
	return &Settings{
		ParallelDownloads: 4,
		GitHubTokenEnv:    DefaultTokenEnv,
	}
}

// Validate checks value ranges
func (s *Settings) Validate() error {
	if s.ParallelDownloads < 1 || s.ParallelDownloads > 10 {
		return fmt.Errorf("parallel_downloads must be between 1 and 10 (got %d)", s.ParallelDownloads)
	}
	if strings.TrimSpace(s.GitHubTokenEnv) == "" {
		return fmt.Errorf("github_token_env must not be empty")
	}
	return nil
}

// Token reads the GitHub token from the configured variable
func (s *Settings) Token(env Env) string {
	name := s.GitHubTokenEnv
	if name == "" {
		name = DefaultTokenEnv
	}
	if env == nil {
		env = OSEnv{}
	}
	return strings.TrimSpace(env.Getenv(name))
}
