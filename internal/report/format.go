package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/ansi"
	"gopkg.in/yaml.v3"

	"github.com/samhoang/asma/internal/skill"
)

// Format selects a context renderer
type Format string

const (
	FormatText  Format = "text"
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// Formats lists the supported formats
func Formats() []Format {
	return []Format{FormatText, FormatTable, FormatJSON, FormatYAML}
}

// ParseFormat validates a --format value
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats() {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("invalid format %q (expected text, table, json or yaml)", s)
}

// basicFields are shown unless verbose
var basicFields = map[string]bool{"name": true, "description": true, "version": true}

// Options control context rendering
type Options struct {
	Format  Format
	Verbose bool
	Indent  int // text only, default 2
	Width   int // text wrap width, default 80
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Render writes contexts in the requested format
func Render(w io.Writer, contexts []*SkillContext, opts Options) error {
	switch opts.Format {
	case FormatJSON:
		data, err := json.MarshalIndent(byScope(contexts), "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err

	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(byScope(contexts)); err != nil {
			return err
		}
		return enc.Close()

	case FormatTable:
		_, err := fmt.Fprint(w, renderTable(contexts, opts.Verbose))
		return err

	case FormatText, "":
		_, err := fmt.Fprint(w, renderText(contexts, opts))
		return err
	}
	return fmt.Errorf("invalid format %q", opts.Format)
}

// byScope builds {global: {name: fields}, project: {...}}
func byScope(contexts []*SkillContext) Fields {
	out := Fields{}
	for _, scope := range skill.AllScopes() {
		section := Fields{}
		for _, c := range contexts {
			if c.Scope != scope {
				continue
			}
			if c.Error != "" {
				section = append(section, Field{Key: c.Name, Value: Fields{{Key: "error", Value: c.Error}}})
			} else {
				section = append(section, Field{Key: c.Name, Value: c.Fields})
			}
		}
		out = append(out, Field{Key: string(scope), Value: section})
	}
	return out
}

func sortedContexts(contexts []*SkillContext) []*SkillContext {
	sorted := append([]*SkillContext(nil), contexts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Scope != sorted[j].Scope {
			return sorted[i].Scope == skill.ScopeGlobal
		}
		return sorted[i].Name < sorted[j].Name
	})
	return sorted
}

func renderText(contexts []*SkillContext, opts Options) string {
	indent := opts.Indent
	if indent <= 0 {
		indent = 2
	}
	width := opts.Width
	if width <= 0 {
		width = 80
	}

	var b strings.Builder
	b.WriteString("Installed Skills Context:\n\n")

	headings := map[skill.Scope]string{skill.ScopeGlobal: "Global Skills:", skill.ScopeProject: "Project Skills:"}
	sorted := sortedContexts(contexts)
	for _, scope := range skill.AllScopes() {
		var group []*SkillContext
		for _, c := range sorted {
			if c.Scope == scope {
				group = append(group, c)
			}
		}
		if len(group) == 0 {
			continue
		}

		b.WriteString(headings[scope] + "\n")
		for _, c := range group {
			writeContext(&b, c, indent, width, opts.Verbose)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeContext(b *strings.Builder, c *SkillContext, indent, width int, verbose bool) {
	pad := strings.Repeat(" ", indent)
	pad2 := strings.Repeat(" ", indent*2)
	pad3 := strings.Repeat(" ", indent*3)

	fmt.Fprintf(b, "%s%s:\n", pad, c.Name)

	if c.Error != "" {
		writeWrapped(b, pad2, "error", c.Error, width)
		b.WriteString("\n")
		return
	}

	for _, f := range c.Fields {
		if !verbose && !basicFields[f.Key] {
			continue
		}

		items, isList := f.Value.([]any)
		if !isList {
			writeWrapped(b, pad2, f.Key, fmt.Sprint(f.Value), width)
			continue
		}

		fmt.Fprintf(b, "%s%s:\n", pad2, f.Key)
		for _, item := range items {
			lines := strings.Split(ansi.Wordwrap(fmt.Sprint(item), max(width-len(pad3)-2, 10), ""), "\n")
			fmt.Fprintf(b, "%s- %s\n", pad3, strings.TrimRight(lines[0], " "))
			for _, cont := range lines[1:] {
				fmt.Fprintf(b, "%s  %s\n", pad3, strings.TrimRight(cont, " "))
			}
		}
	}
	b.WriteString("\n")
}

// writeWrapped writes "key: value", continuing long values aligned under
// the value's first column
func writeWrapped(b *strings.Builder, pad, key, value string, width int) {
	prefix := pad + key + ": "
	if len(prefix)+ansi.StringWidth(value) <= width {
		b.WriteString(prefix + value + "\n")
		return
	}

	lines := strings.Split(ansi.Wordwrap(value, max(width-len(prefix), 10), ""), "\n")
	cont := strings.Repeat(" ", len(prefix))
	b.WriteString(prefix + strings.TrimRight(lines[0], " ") + "\n")
	for _, l := range lines[1:] {
		b.WriteString(cont + strings.TrimRight(l, " ") + "\n")
	}
}

func renderTable(contexts []*SkillContext, verbose bool) string {
	headers := []string{"Name", "Scope", "Description", "Version"}
	if verbose {
		headers = append(headers, "Author")
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	for _, c := range sortedContexts(contexts) {
		var row []string
		if c.Error != "" {
			row = []string{c.Name, string(c.Scope), errorStyle.Render("Error: " + c.Error), "-"}
			if verbose {
				row = append(row, "-")
			}
		} else {
			row = []string{c.Name, string(c.Scope), orDash(c.Fields.String("description")), orDash(c.Fields.String("version"))}
			if verbose {
				row = append(row, orDash(c.Fields.String("author")))
			}
		}
		t.Row(row...)
	}

	return titleStyle.Render("Installed Skills Context") + "\n" + t.Render() + "\n"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
