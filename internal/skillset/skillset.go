// Package skillset reads and edits skillset.yaml, the declarative list of
// skills per scope.
package skillset

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/samhoang/asma/internal/config"
	asmaerrors "github.com/samhoang/asma/internal/errors"
	"github.com/samhoang/asma/internal/skill"
)

// Template is written by `asma init`
const Template = `# Agent Skills Manager Configuration

# Global configuration
config:
  auto_update: false
  parallel_downloads: 4
  github_token_env: GITHUB_TOKEN

# Global skills (installed to ~/.claude/skills/)
global:
  # Example:
  # - name: document-analyzer
  #   source: github:anthropics/skills/document-analyzer
  #   version: v1.0.0

# Project skills (installed to .claude/skills/)
project:
  # Example:
  # - name: test-runner
  #   source: github:anthropics/skills/test-runner
  #   version: v2.1.0
`

// Entry is one skill as written in a section
type Entry struct {
	Name    string `yaml:"name,omitempty"`
	Source  string `yaml:"source"`
	Version string `yaml:"version,omitempty"`
	Ref     string `yaml:"ref,omitempty"`
	Enabled *bool  `yaml:"enabled,omitempty"`
	Alias   string `yaml:"alias,omitempty"`
}

// Reference validates the entry and builds a skill reference for scope
func (e Entry) Reference(scope skill.Scope) (*skill.Reference, error) {
	return skill.New(e.Name, e.Source, scope, skill.Options{
		Version:  e.Version,
		Ref:      e.Ref,
		Alias:    e.Alias,
		Disabled: e.Enabled != nil && !*e.Enabled,
	})
}

// Skillset is a parsed skillset.yaml
type Skillset struct {
	Config  *config.Settings
	Global  []*skill.Reference
	Project []*skill.Reference
}

type document struct {
	Config  *config.Settings `yaml:"config"`
	Global  yaml.Node        `yaml:"global"`
	Project yaml.Node        `yaml:"project"`
}

// Load reads and validates a skillset file. A missing file is ErrNotFound.
func Load(path string) (*Skillset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: skillset file not found: %s", asmaerrors.ErrNotFound, path)
		}
		return nil, err
	}

	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes skillset YAML. Both sections accept a list of mappings or a
// mapping keyed by skill name.
func Parse(data []byte) (*Skillset, error) {
	doc := document{Config: config.DefaultSettings()}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid skillset YAML: %w", err)
	}
	if doc.Config == nil {
		doc.Config = config.DefaultSettings()
	}
	if err := doc.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Skillset{Config: doc.Config}

	var err error
	if s.Global, err = parseSection(&doc.Global, skill.ScopeGlobal); err != nil {
		return nil, err
	}
	if s.Project, err = parseSection(&doc.Project, skill.ScopeProject); err != nil {
		return nil, err
	}
	return s, nil
}

func parseSection(node *yaml.Node, scope skill.Scope) ([]*skill.Reference, error) {
	entries, err := decodeSection(node, string(scope))
	if err != nil {
		return nil, err
	}

	refs := make([]*skill.Reference, 0, len(entries))
	for _, e := range entries {
		ref, err := e.Reference(scope)
		if err != nil {
			return nil, fmt.Errorf("%s section: %w", scope, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func decodeSection(node *yaml.Node, section string) ([]Entry, error) {
	switch node.Kind {
	case 0:
		return nil, nil

	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return nil, nil
		}

	case yaml.SequenceNode:
		var entries []Entry
		for _, item := range node.Content {
			if item.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("invalid skill definition in '%s' (line %d): expected a mapping", section, item.Line)
			}
			var e Entry
			if err := item.Decode(&e); err != nil {
				return nil, fmt.Errorf("invalid skill definition in '%s': %w", section, err)
			}
			entries = append(entries, e)
		}
		return entries, nil

	case yaml.MappingNode:
		if mappingValue(node, "name") != nil {
			return nil, singleDictError(node, section)
		}

		var entries []Entry
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			if value.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("invalid skill definition for '%s' in '%s': expected a mapping", key.Value, section)
			}
			var e Entry
			if err := value.Decode(&e); err != nil {
				return nil, fmt.Errorf("invalid skill definition for '%s' in '%s': %w", key.Value, section, err)
			}
			if e.Name != "" && e.Name != key.Value {
				return nil, fmt.Errorf("invalid skill definition for '%s' in '%s': name %q does not match its key",
					key.Value, section, e.Name)
			}
			e.Name = key.Value
			entries = append(entries, e)
		}
		return entries, nil
	}

	return nil, fmt.Errorf("invalid format in '%s' section: expected list or mapping", section)
}

func singleDictError(node *yaml.Node, section string) error {
	name, src := "my-skill", "github:..."
	if v := mappingValue(node, "name"); v != nil && v.Value != "" {
		name = v.Value
	}
	if v := mappingValue(node, "source"); v != nil && v.Value != "" {
		src = v.Value
	}
	return fmt.Errorf("invalid format in '%s' section: single skill mapping is not supported. "+
		"Use list format (with '-') or a mapping keyed by skill name. Example:\n"+
		"  %s:\n    - name: %s\n      source: %s\nOr:\n  %s:\n    %s:\n      source: %s",
		section, section, name, src, section, name, src)
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// Scope returns the references of one scope
func (s *Skillset) Scope(scope skill.Scope) []*skill.Reference {
	if scope == skill.ScopeGlobal {
		return s.Global
	}
	return s.Project
}

// Get finds a skill by name. An empty scope searches global first, then project.
func (s *Skillset) Get(name string, scope skill.Scope) *skill.Reference {
	for _, sc := range skill.AllScopes() {
		if scope != "" && sc != scope {
			continue
		}
		for _, ref := range s.Scope(sc) {
			if ref.Name == name {
				return ref
			}
		}
	}
	return nil
}

// All returns global then project references
func (s *Skillset) All() []*skill.Reference {
	all := make([]*skill.Reference, 0, len(s.Global)+len(s.Project))
	all = append(all, s.Global...)
	return append(all, s.Project...)
}
