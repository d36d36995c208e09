package config

import "os"

// Environment variables read by asma
const (
	EnvClaudeConfigDir = "CLAUDE_CONFIG_DIR"
	EnvCacheDir        = "ASMA_CACHE_DIR"
	EnvXDGCacheHome    = "XDG_CACHE_HOME"
	EnvGitHubAPI       = "ASMA_GITHUB_API_URL"
	DefaultTokenEnv    = "GITHUB_TOKEN"
)

// Env is the process environment as seen by path and token resolution.
// Tests substitute MapEnv.
type Env interface {
	Getenv(key string) string
	UserHomeDir() (string, error)
}

// OSEnv reads the real process environment
type OSEnv struct{}

func (OSEnv) Getenv(key string) string { return os.Getenv(key) }

func (OSEnv) UserHomeDir() (string, error) { return os.UserHomeDir() }

// MapEnv is a fixed environment. The "HOME" key doubles as the home directory.
type MapEnv map[string]string

func (m MapEnv) Getenv(key string) string { return m[key] }

func (m MapEnv) UserHomeDir() (string, error) {
	if home := m["HOME"]; home != "" {
		return home, nil
	}
	return os.UserHomeDir()
}
