// Package skill defines declarative skill references and their validation.
package skill

import (
	"fmt"
	"regexp"
	"strings"

	asmaerrors "github.com/samhoang/asma/internal/errors"
)

// Scope determines where a skill is installed
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeProject Scope = "project"
)

// AllScopes returns all scopes in display order
func AllScopes() []Scope {
	return []Scope{ScopeGlobal, ScopeProject}
}

// ParseScope converts a string into a Scope
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeGlobal:
		return ScopeGlobal, nil
	case ScopeProject:
		return ScopeProject, nil
	default:
		return "", fmt.Errorf("invalid scope %q: must be global or project", s)
	}
}

// Source scheme prefixes accepted by validation
const (
	SchemeLocal  = "local:"
	SchemeGitHub = "github:"
	SchemeGit    = "git:"
)

// Schemes returns the registered source prefixes
func Schemes() []string {
	return []string{SchemeGitHub, SchemeLocal, SchemeGit}
}

// VersionLatest asks the resolver for the newest release
const VersionLatest = "latest"

var namePattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Reference is a declarative request to install one skill.
// Construct with New; fields are not changed afterwards.
type Reference struct {
	Name    string
	Source  string
	Scope   Scope
	Version string
	Ref     string
	Enabled bool
	Alias   string
}

// Options holds the optional fields of a Reference
type Options struct {
	Version string
	Ref     string
	Alias   string
	// Disabled marks the reference as enabled: false
	Disabled bool
}

// New validates and builds a Reference
func New(name, source string, scope Scope, opts Options) (*Reference, error) {
	if err := Validate(name, source, opts.Version, opts.Ref); err != nil {
		return nil, err
	}
	if opts.Alias != "" && !ValidName(opts.Alias) {
		return nil, fmt.Errorf("%w: invalid alias %q", asmaerrors.ErrInvalidReference, opts.Alias)
	}
	if scope != ScopeGlobal && scope != ScopeProject {
		return nil, fmt.Errorf("%w: invalid scope %q", asmaerrors.ErrInvalidReference, scope)
	}

	return &Reference{
		Name:    name,
		Source:  source,
		Scope:   scope,
		Version: opts.Version,
		Ref:     opts.Ref,
		Enabled: !opts.Disabled,
		Alias:   opts.Alias,
	}, nil
}

// Validate checks name and source syntax and version/ref exclusivity
func Validate(name, source, version, ref string) error {
	if !ValidName(name) {
		return fmt.Errorf("%w: invalid skill name %q: name must contain only lowercase letters, numbers, and hyphens",
			asmaerrors.ErrInvalidReference, name)
	}

	if !ValidSource(source) {
		return fmt.Errorf("%w: invalid source format %q: source must start with one of: %s",
			asmaerrors.ErrInvalidReference, source, strings.Join(Schemes(), ", "))
	}

	if version != "" && ref != "" {
		return fmt.Errorf("%w: cannot specify both version and ref for skill %q: use version for tags or ref for branches/commits",
			asmaerrors.ErrInvalidReference, name)
	}

	return nil
}

// ValidName reports whether name is usable as an install directory
func ValidName(name string) bool {
	return name != "" && namePattern.MatchString(name)
}

// ValidSource reports whether source carries a registered scheme prefix
func ValidSource(source string) bool {
	if source == "" {
		return false
	}
	for _, prefix := range Schemes() {
		if strings.HasPrefix(source, prefix) {
			return true
		}
	}
	return false
}

// InstallName is the directory name used under the scope base
func (r *Reference) InstallName() string {
	if r.Alias != "" {
		return r.Alias
	}
	return r.Name
}

// Scheme returns the source prefix, e.g. "github:"
func (r *Reference) Scheme() string {
	for _, prefix := range Schemes() {
		if strings.HasPrefix(r.Source, prefix) {
			return prefix
		}
	}
	return ""
}
