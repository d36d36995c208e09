package cmd

import (
	"errors"

	"github.com/charmbracelet/lipgloss"

	"github.com/samhoang/asma/internal/config"
	asmaerrors "github.com/samhoang/asma/internal/errors"
	"github.com/samhoang/asma/internal/lock"
	"github.com/samhoang/asma/internal/skill"
	"github.com/samhoang/asma/internal/source"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	boldStyle    = lipgloss.NewStyle().Bold(true)
)

func resolvePaths() (*config.Paths, error) {
	return config.ResolvePaths(config.OSEnv{}, "")
}

// newRegistry builds the source resolvers. The token is read from the
// variable named by settings and is never logged.
func newRegistry(paths *config.Paths, settings *config.Settings) (*source.Registry, error) {
	if settings == nil {
		settings = config.DefaultSettings()
	}
	paths.ApplySettings(settings)

	env := paths.Env()
	return source.DefaultRegistry(source.Options{
		Env: env,
		GitHub: source.GitHubOptions{
			APIBase:  env.Getenv(config.EnvGitHubAPI),
			Token:    settings.Token(env),
			Strict:   settings.Strict,
			CacheDir: paths.CacheDir,
			Logger:   logger,
		},
	})
}

// parseScopeFlag returns "" for an empty flag, meaning both scopes
func parseScopeFlag(value string) (skill.Scope, error) {
	if value == "" {
		return "", nil
	}
	return skill.ParseScope(value)
}

// loadLock reads skillset.lock, mapping a missing file to exit code 2
func loadLock(paths *config.Paths) (*lock.Lockfile, error) {
	lf, err := lock.Load(paths.LockPath())
	if errors.Is(err, asmaerrors.ErrNotFound) {
		return nil, missingFile("skillset.lock not found: %s\n  Run 'asma install' first.", paths.LockPath())
	}
	return lf, err
}

// lockEntries returns entries in scope, or all entries for ""
func lockEntries(lf *lock.Lockfile, scope skill.Scope) []*lock.Entry {
	var result []*lock.Entry
	for _, e := range lf.Entries() {
		if scope == "" || e.Scope == scope {
			result = append(result, e)
		}
	}
	return result
}

// failureMessage drops the "skill <name>: install:" prefix, since output
// lines already name the skill
func failureMessage(err error, fallback string) string {
	var se *asmaerrors.SkillError
	if errors.As(err, &se) {
		return se.Err.Error()
	}
	return fallback
}
