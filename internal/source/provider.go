package source

import (
	"fmt"
	"sort"

	"github.com/samhoang/asma/internal/config"
	asmaerrors "github.com/samhoang/asma/internal/errors"
	"github.com/samhoang/asma/internal/skill"
)

// Registry maps source schemes to resolvers
type Registry struct {
	resolvers map[string]Resolver
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{resolvers: make(map[string]Resolver)}
}

// Register adds a resolver for a scheme prefix such as "github:"
func (r *Registry) Register(scheme string, res Resolver) {
	r.resolvers[scheme] = res
}

// For returns the resolver handling ref's scheme. Schemes that pass
// reference validation but have no resolver yield ErrUnsupportedSource.
func (r *Registry) For(ref *skill.Reference) (Resolver, error) {
	scheme := ref.Scheme()
	if res, ok := r.resolvers[scheme]; ok {
		return res, nil
	}
	return nil, &SourceError{
		Op:     "resolve",
		Source: ref.Source,
		Err:    fmt.Errorf("%w: %q sources are not supported yet", asmaerrors.ErrUnsupportedSource, scheme),
	}
}

// Schemes lists registered schemes in sorted order
func (r *Registry) Schemes() []string {
	result := make([]string, 0, len(r.resolvers))
	for s := range r.resolvers {
		result = append(result, s)
	}
	sort.Strings(result)
	return result
}

// Options configures DefaultRegistry
type Options struct {
	Env    config.Env // expands ~ in local paths
	GitHub GitHubOptions
}

// DefaultRegistry registers the local and GitHub resolvers
func DefaultRegistry(opts Options) (*Registry, error) {
	gh, err := NewGitHubResolver(opts.GitHub)
	if err != nil {
		return nil, err
	}

	reg := NewRegistry()
	reg.Register(skill.SchemeLocal, NewLocalResolver(opts.Env))
	reg.Register(skill.SchemeGitHub, gh)
	return reg, nil
}
