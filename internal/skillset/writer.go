package skillset

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	asmaerrors "github.com/samhoang/asma/internal/errors"
	"github.com/samhoang/asma/internal/skill"
)

// Writer edits a skillset file in place. Comments and the shape of each
// section (list or mapping) are kept.
type Writer struct {
	path string
}

// NewWriter creates a writer for path; the file need not exist yet
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Exists reports whether scope already declares name
func (w *Writer) Exists(name string, scope skill.Scope) (bool, error) {
	root, err := w.load()
	if err != nil {
		return false, err
	}
	section := mappingValue(root.Content[0], string(scope))
	return sectionIndex(section, name) >= 0, nil
}

// AddSkill adds entry to scope, or replaces an existing one when force is set
func (w *Writer) AddSkill(entry Entry, scope skill.Scope, force bool) error {
	if _, err := entry.Reference(scope); err != nil {
		return err
	}

	root, err := w.load()
	if err != nil {
		return err
	}
	top := root.Content[0]

	section := mappingValue(top, string(scope))
	idx := sectionIndex(section, entry.Name)
	if idx >= 0 && !force {
		return fmt.Errorf("%w: skill '%s' already exists in %s scope. Use --force to overwrite",
			asmaerrors.ErrAlreadyExists, entry.Name, scope)
	}

	switch {
	case section != nil && section.Kind == yaml.SequenceNode:
		item, err := encodeNode(entry)
		if err != nil {
			return err
		}
		if idx >= 0 {
			section.Content[idx] = item
		} else {
			section.Content = append(section.Content, item)
		}

	case section != nil && section.Kind == yaml.MappingNode:
		body := entry
		body.Name = ""
		value, err := encodeNode(body)
		if err != nil {
			return err
		}
		if idx >= 0 {
			section.Content[idx+1] = value
		} else {
			section.Content = append(section.Content, scalarNode(entry.Name), value)
		}

	default:
		body := entry
		body.Name = ""
		value, err := encodeNode(body)
		if err != nil {
			return err
		}
		fresh := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		fresh.Content = append(fresh.Content, scalarNode(entry.Name), value)
		setMappingValue(top, string(scope), fresh)
	}

	return w.save(root)
}

// load returns the document node; a missing or empty file yields an empty mapping
func (w *Writer) load() (*yaml.Node, error) {
	data, err := os.ReadFile(w.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	var root yaml.Node
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, fmt.Errorf("invalid skillset YAML: %w", err)
		}
	}

	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	if root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("invalid skillset YAML: top level must be a mapping")
	}
	return &root, nil
}

func (w *Writer) save(root *yaml.Node) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return os.WriteFile(w.path, buf.Bytes(), 0644)
}

// sectionIndex locates name in a section: the item index for a list, the key
// index for a mapping, or -1.
func sectionIndex(section *yaml.Node, name string) int {
	if section == nil {
		return -1
	}
	switch section.Kind {
	case yaml.SequenceNode:
		for i, item := range section.Content {
			if item.Kind != yaml.MappingNode {
				continue
			}
			if v := mappingValue(item, "name"); v != nil && v.Value == name {
				return i
			}
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(section.Content); i += 2 {
			if section.Content[i].Value == name {
				return i
			}
		}
	}
	return -1
}

func setMappingValue(node *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			node.Content[i+1] = value
			return
		}
	}
	node.Content = append(node.Content, scalarNode(key), value)
}

func scalarNode(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

func encodeNode(v any) (*yaml.Node, error) {
	var n yaml.Node
	if err := n.Encode(v); err != nil {
		return nil, err
	}
	return &n, nil
}
