// Package report renders installed skill context and check results.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/samhoang/asma/internal/lock"
	"github.com/samhoang/asma/internal/skill"
	"github.com/samhoang/asma/internal/validator"
)

// Field is one front matter key/value
type Field struct {
	Key   string
	Value any
}

// Fields keeps front matter keys in file order through JSON and YAML output
type Fields []Field

// Get returns the value for key
func (f Fields) Get(key string) (any, bool) {
	for _, fld := range f {
		if fld.Key == key {
			return fld.Value, true
		}
	}
	return nil, false
}

// String returns a value formatted for display, or "" when absent
func (f Fields) String(key string) string {
	v, ok := f.Get(key)
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, fld := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(fld.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(fld.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", fld.Key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (f Fields) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, fld := range f {
		var value yaml.Node
		if err := value.Encode(fld.Value); err != nil {
			return nil, fmt.Errorf("field %q: %w", fld.Key, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: fld.Key},
			&value)
	}
	return node, nil
}

// SkillContext is the front matter of one installed skill, or the reason it
// could not be read
type SkillContext struct {
	Name        string
	Scope       skill.Scope
	InstallPath string
	Fields      Fields
	Error       string
}

// Extract reads the installed SKILL.md for entry under base
func Extract(entry *lock.Entry, base string) *SkillContext {
	path := filepath.Join(base, entry.InstallName())
	ctx := &SkillContext{Name: entry.Name, Scope: entry.Scope, InstallPath: path}

	manifest := skill.ManifestPath(path)
	content, err := os.ReadFile(manifest)
	if err != nil {
		if os.IsNotExist(err) {
			ctx.Error = fmt.Sprintf("SKILL.md not found at %s", manifest)
		} else {
			ctx.Error = err.Error()
		}
		return ctx
	}

	fields, err := parseFields(content)
	if err != nil {
		ctx.Error = err.Error()
		return ctx
	}
	ctx.Fields = fields
	return ctx
}

func parseFields(content []byte) (Fields, error) {
	block, err := validator.FrontMatter(content)
	if err != nil {
		return nil, fmt.Errorf("invalid or missing YAML frontmatter")
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(block, &doc); err != nil || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("invalid or missing YAML frontmatter")
	}

	mapping := doc.Content[0]
	fields := make(Fields, 0, len(mapping.Content)/2)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		var value any
		if err := mapping.Content[i+1].Decode(&value); err != nil {
			return nil, fmt.Errorf("invalid frontmatter field %q: %w", mapping.Content[i].Value, err)
		}
		fields = append(fields, Field{Key: mapping.Content[i].Value, Value: value})
	}
	return fields, nil
}
