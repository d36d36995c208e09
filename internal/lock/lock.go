// Package lock reads and writes skillset.lock, the record of what each
// install actually resolved to.
package lock

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/pelletier/go-toml/v2"

	asmaerrors "github.com/samhoang/asma/internal/errors"
	"github.com/samhoang/asma/internal/installer"
	"github.com/samhoang/asma/internal/skill"
)

// Version is the lock format written by this build
const Version = 1

// Entry records one installed skill
type Entry struct {
	Name  string      `toml:"-"`
	Scope skill.Scope `toml:"-"`

	Source          string    `toml:"source"`
	Alias           string    `toml:"alias,omitempty"`
	ResolvedVersion string    `toml:"resolved_version"`
	ResolvedCommit  string    `toml:"resolved_commit"`
	InstalledAt     time.Time `toml:"installed_at"`
	Checksum        string    `toml:"checksum"`
	Symlink         bool      `toml:"symlink"`
	ResolvedPath    string    `toml:"resolved_path,omitempty"`
}

// InstallName is the directory name under the scope base
func (e *Entry) InstallName() string {
	if e.Alias != "" {
		return e.Alias
	}
	return e.Name
}

// EntryFromResult builds the lock entry for a successful install
func EntryFromResult(ref *skill.Reference, r *installer.Result, now time.Time) *Entry {
	e := &Entry{
		Name:            ref.Name,
		Scope:           ref.Scope,
		Source:          ref.Source,
		Alias:           ref.Alias,
		ResolvedVersion: r.Version,
		ResolvedCommit:  r.Commit,
		InstalledAt:     now.UTC().Truncate(time.Second),
		Checksum:        r.Checksum,
		Symlink:         r.Symlink,
	}
	if r.Symlink {
		e.ResolvedPath = r.SourcePath
	}
	return e
}

type key struct {
	scope skill.Scope
	name  string
}

// Lockfile is the in-memory lock
type Lockfile struct {
	Version     int
	GeneratedAt time.Time

	entries map[key]*Entry
}

type document struct {
	Version     int               `toml:"version"`
	GeneratedAt time.Time         `toml:"generated_at"`
	Global      map[string]*Entry `toml:"global,omitempty"`
	Project     map[string]*Entry `toml:"project,omitempty"`
}

// New creates an empty lock
func New() *Lockfile {
	return &Lockfile{
		Version:     Version,
		GeneratedAt: time.Now().UTC().Truncate(time.Second),
		entries:     make(map[key]*Entry),
	}
}

// Load reads a lock file. A missing file is ErrNotFound.
func Load(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: lock file not found: %s", asmaerrors.ErrNotFound, path)
		}
		return nil, err
	}

	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid lock file %s: %w", path, err)
	}
	if doc.Version != Version {
		return nil, fmt.Errorf("unsupported lock file version %d in %s", doc.Version, path)
	}

	l := &Lockfile{Version: doc.Version, GeneratedAt: doc.GeneratedAt, entries: make(map[key]*Entry)}
	for scope, section := range map[skill.Scope]map[string]*Entry{
		skill.ScopeGlobal:  doc.Global,
		skill.ScopeProject: doc.Project,
	} {
		for name, e := range section {
			if e == nil {
				continue
			}
			e.Name, e.Scope = name, scope
			l.entries[key{scope, name}] = e
		}
	}
	return l, nil
}

// LoadOrNew loads path, starting a fresh lock when it does not exist
func LoadOrNew(path string) (*Lockfile, error) {
	l, err := Load(path)
	if errors.Is(err, asmaerrors.ErrNotFound) {
		return New(), nil
	}
	return l, err
}

// Save writes the lock, stamping GeneratedAt
func (l *Lockfile) Save(path string) error {
	l.GeneratedAt = time.Now().UTC().Truncate(time.Second)

	doc := document{Version: Version, GeneratedAt: l.GeneratedAt}
	for k, e := range l.entries {
		switch k.scope {
		case skill.ScopeGlobal:
			if doc.Global == nil {
				doc.Global = make(map[string]*Entry)
			}
			doc.Global[k.name] = e
		case skill.ScopeProject:
			if doc.Project == nil {
				doc.Project = make(map[string]*Entry)
			}
			doc.Project[k.name] = e
		}
	}

	data, err := toml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Put adds or replaces an entry
func (l *Lockfile) Put(e *Entry) {
	l.entries[key{e.Scope, e.Name}] = e
}

// Get returns the entry for name in scope, or nil
func (l *Lockfile) Get(name string, scope skill.Scope) *Entry {
	return l.entries[key{scope, name}]
}

// Len returns the number of entries
func (l *Lockfile) Len() int {
	return len(l.entries)
}

// Entries returns all entries, global before project, each sorted by name
func (l *Lockfile) Entries() []*Entry {
	out := make([]*Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scope != out[j].Scope {
			return out[i].Scope == skill.ScopeGlobal
		}
		return out[i].Name < out[j].Name
	})
	return out
}
