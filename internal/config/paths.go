package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"

	"github.com/samhoang/asma/internal/skill"
)

// File names in the project directory
const (
	SkillsetFile = "skillset.yaml"
	LockFile     = "skillset.lock"
)

// Paths holds all resolved paths for asma operations
type Paths struct {
	ClaudeDir        string // ~/.claude, or $CLAUDE_CONFIG_DIR
	GlobalSkillsDir  string // {ClaudeDir}/skills
	ProjectDir       string // working directory holding skillset.yaml
	ProjectSkillsDir string // {ProjectDir}/.claude/skills
	CacheDir         string // downloaded GitHub tarballs

	env Env
}

// ResolvePaths resolves all paths based on environment and defaults
func ResolvePaths(env Env, projectDir string) (*Paths, error) {
	if env == nil {
		env = OSEnv{}
	}

	home, err := env.UserHomeDir()
	if err != nil {
		return nil, err
	}

	claudeDir := env.Getenv(EnvClaudeConfigDir)
	if claudeDir == "" {
		claudeDir = filepath.Join(home, ".claude")
	}

	if projectDir == "" {
		if projectDir, err = os.Getwd(); err != nil {
			return nil, err
		}
	}
	if projectDir, err = filepath.Abs(projectDir); err != nil {
		return nil, err
	}

	p := &Paths{
		ClaudeDir:        claudeDir,
		GlobalSkillsDir:  filepath.Join(claudeDir, "skills"),
		ProjectDir:       projectDir,
		ProjectSkillsDir: filepath.Join(projectDir, ".claude", "skills"),
		env:              env,
	}
	p.CacheDir = p.ResolveCacheDir("")
	return p, nil
}

// ResolveCacheDir picks the cache directory: $ASMA_CACHE_DIR, then the
// configured value, then $XDG_CACHE_HOME/asma/github.
func (p *Paths) ResolveCacheDir(configured string) string {
	if dir := p.env.Getenv(EnvCacheDir); dir != "" {
		return p.ExpandHome(dir)
	}
	if configured != "" {
		return p.ExpandHome(configured)
	}
	if cacheHome := p.env.Getenv(EnvXDGCacheHome); cacheHome != "" {
		return filepath.Join(cacheHome, "asma", "github")
	}
	return DefaultCacheDir()
}

// DefaultCacheDir is $XDG_CACHE_HOME/asma/github as seen at startup
func DefaultCacheDir() string {
	return filepath.Join(xdg.CacheHome, "asma", "github")
}

// ApplySettings updates paths that the skillset config may override
func (p *Paths) ApplySettings(s *Settings) {
	if s != nil {
		p.CacheDir = p.ResolveCacheDir(s.CacheDir)
	}
}

// SkillsDir returns the install base for a scope
func (p *Paths) SkillsDir(scope skill.Scope) string {
	if scope == skill.ScopeGlobal {
		return p.GlobalSkillsDir
	}
	return p.ProjectSkillsDir
}

// InstallPath returns where ref will be installed
func (p *Paths) InstallPath(ref *skill.Reference) string {
	return filepath.Join(p.SkillsDir(ref.Scope), ref.InstallName())
}

// SkillsetPath returns the path to skillset.yaml
func (p *Paths) SkillsetPath() string {
	return filepath.Join(p.ProjectDir, SkillsetFile)
}

// LockPath returns the path to skillset.lock
func (p *Paths) LockPath() string {
	return filepath.Join(p.ProjectDir, LockFile)
}

// ExpandHome replaces a leading ~ with the user's home directory
func (p *Paths) ExpandHome(path string) string {
	return ExpandHome(p.env, path)
}

// ExpandHome replaces a leading ~ using env's home directory
func ExpandHome(env Env, path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	if env == nil {
		env = OSEnv{}
	}
	home, err := env.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Env returns the environment the paths were resolved from
func (p *Paths) Env() Env {
	return p.env
}
