// Package validator checks that a directory holds a well-formed skill.
package validator

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	asmaerrors "github.com/samhoang/asma/internal/errors"
	"github.com/samhoang/asma/internal/skill"
)

// maxFrontMatterSize bounds the YAML handed to the parser
const maxFrontMatterSize = 64 * 1024

var (
	frontMatterPattern = regexp.MustCompile(`(?s)\A---\s*\n(.*?)\n---\s*\n`)
	manifestName       = regexp.MustCompile(`^[a-z0-9-]{1,64}$`)
)

// ErrNoFrontMatter means the manifest does not open with a --- block
var ErrNoFrontMatter = errors.New("SKILL.md missing YAML frontmatter")

// Result is the outcome of Validate. Errors lists every problem found.
type Result struct {
	Valid    bool
	Errors   []string
	Metadata map[string]any
}

// Err returns a *errors.ValidationError, or nil when valid
func (r *Result) Err() error {
	if r.Valid {
		return nil
	}
	return &asmaerrors.ValidationError{Problems: r.Errors}
}

// Name returns the manifest's name field
func (r *Result) Name() string {
	return stringField(r.Metadata, "name")
}

// Description returns the manifest's description field
func (r *Result) Description() string {
	return stringField(r.Metadata, "description")
}

// Validate checks dir/SKILL.md front matter for a valid name and a
// non-blank description.
func Validate(dir string) *Result {
	content, err := os.ReadFile(skill.ManifestPath(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return invalid("SKILL.md not found")
		}
		return invalid(fmt.Sprintf("SKILL.md not readable: %v", err))
	}

	meta, err := ParseFrontMatter(content)
	if err != nil {
		return invalid(err.Error())
	}

	var problems []string

	switch name, ok := meta["name"]; {
	case !ok:
		problems = append(problems, "SKILL.md missing required field: name")
	case !isString(name):
		problems = append(problems, "SKILL.md field 'name' must be a string")
	case !manifestName.MatchString(name.(string)):
		problems = append(problems, fmt.Sprintf(
			"Invalid name format: %s (must be lowercase letters, numbers, and hyphens only)", name))
	}

	switch desc, ok := meta["description"]; {
	case !ok:
		problems = append(problems, "SKILL.md missing required field: description")
	case !isString(desc):
		problems = append(problems, "SKILL.md field 'description' must be a string")
	case strings.TrimSpace(desc.(string)) == "":
		problems = append(problems, "SKILL.md field 'description' is empty")
	}

	return &Result{Valid: len(problems) == 0, Errors: problems, Metadata: meta}
}

// FrontMatter returns the raw YAML between the leading --- delimiters
func FrontMatter(content []byte) ([]byte, error) {
	m := frontMatterPattern.FindSubmatch(content)
	if m == nil {
		return nil, ErrNoFrontMatter
	}
	if len(m[1]) > maxFrontMatterSize {
		return nil, fmt.Errorf("SKILL.md frontmatter exceeds maximum size of %d bytes", maxFrontMatterSize)
	}
	return m[1], nil
}

// ParseFrontMatter extracts the leading --- delimited YAML mapping
func ParseFrontMatter(content []byte) (map[string]any, error) {
	block, err := FrontMatter(content)
	if err != nil {
		return nil, err
	}

	var raw any
	if err := yaml.Unmarshal(block, &raw); err != nil {
		return nil, fmt.Errorf("SKILL.md has invalid YAML frontmatter: %v", err)
	}
	if raw == nil {
		return nil, ErrNoFrontMatter
	}

	switch m := raw.(type) {
	case map[string]any:
		return m, nil
	case map[any]any:
		// yaml.v3 falls back to this shape when any key is not a string
		meta := make(map[string]any, len(m))
		for k, v := range m {
			meta[fmt.Sprint(k)] = v
		}
		return meta, nil
	}
	return nil, fmt.Errorf("SKILL.md frontmatter must be a YAML mapping, got %T", raw)
}

func invalid(problem string) *Result {
	return &Result{Valid: false, Errors: []string{problem}, Metadata: map[string]any{}}
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func stringField(meta map[string]any, key string) string {
	s, _ := meta[key].(string)
	return s
}
