package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/samhoang/asma/internal/checker"
	"github.com/samhoang/asma/internal/lock"
	"github.com/samhoang/asma/internal/skill"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Check writes one line per result and an n/m summary. Quiet prints only
// failures.
func Check(w io.Writer, results []*checker.Result, quiet bool) {
	for _, r := range results {
		switch r.Status {
		case checker.StatusOK:
			if !quiet {
				fmt.Fprintf(w, "%s %s (%s)\n", okStyle.Render("✓"), r.SkillName, r.Scope)
			}
		case checker.StatusChecksumMismatch:
			fmt.Fprintf(w, "%s %s (%s) - checksum mismatch\n", warnStyle.Render("!"), r.SkillName, r.Scope)
			if !quiet {
				fmt.Fprintf(w, "    expected: %s\n    actual:   %s\n", r.ExpectedChecksum, r.ActualChecksum)
			}
		default:
			fmt.Fprintf(w, "%s %s (%s) - %s\n", failStyle.Render("✗"), r.SkillName, r.Scope, r.Message)
		}
	}

	s := checker.Summarize(results)
	if quiet && s.Failed() == 0 {
		return
	}
	if !quiet {
		fmt.Fprintln(w)
	}
	line := fmt.Sprintf("%d/%d skills OK", s.Passed, s.Total)
	if s.Failed() == 0 {
		fmt.Fprintln(w, okStyle.Bold(true).Render(line))
	} else {
		fmt.Fprintln(w, failStyle.Bold(true).Render(line))
	}
}

// List writes lock entries grouped by scope
func List(w io.Writer, entries []*lock.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No skills installed.")
		return
	}

	headings := map[skill.Scope]string{skill.ScopeGlobal: "Global Skills:", skill.ScopeProject: "Project Skills:"}
	for _, scope := range skill.AllScopes() {
		var group []*lock.Entry
		for _, e := range entries {
			if e.Scope == scope {
				group = append(group, e)
			}
		}
		if len(group) == 0 {
			continue
		}

		fmt.Fprintln(w, titleStyle.Render(headings[scope]))
		for _, e := range group {
			name := e.Name
			if e.Alias != "" {
				name += " → " + e.Alias
			}
			kind := "copy"
			if e.Symlink {
				kind = "symlink"
			}
			fmt.Fprintf(w, "  %s %s %s\n", name, e.ResolvedVersion, dimStyle.Render("("+e.Source+", "+kind+")"))
		}
		fmt.Fprintln(w)
	}
}
