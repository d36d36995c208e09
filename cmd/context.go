package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samhoang/asma/internal/lock"
	"github.com/samhoang/asma/internal/report"
	"github.com/samhoang/asma/internal/skill"
)

var (
	contextScope   string
	contextFormat  string
	contextVerbose bool
)

var contextCmd = &cobra.Command{
	Use:   "context [names...]",
	Short: "Show front matter of installed skills",
	Long: `Show the SKILL.md front matter of installed skills, for pasting into a
prompt or feeding to other tools. With names, only those skills are shown.`,
	Example: `  asma context
  asma context doc-helper --format yaml
  asma context --scope global --format table`,
	RunE: runContext,
}

func init() {
	contextCmd.Flags().StringVarP(&contextScope, "scope", "s", "", "Only show skills of this scope (global or project)")
	contextCmd.Flags().StringVar(&contextFormat, "format", string(report.FormatText), "Output format (text, table, json or yaml)")
	contextCmd.Flags().BoolVarP(&contextVerbose, "verbose", "v", false, "Show every front matter field")
	rootCmd.AddCommand(contextCmd)
}

func runContext(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(contextFormat)
	if err != nil {
		return err
	}
	scope, err := parseScopeFlag(contextScope)
	if err != nil {
		return err
	}

	paths, err := resolvePaths()
	if err != nil {
		return err
	}

	lf, err := loadLock(paths)
	if err != nil {
		return err
	}

	entries, unknown := selectEntries(lockEntries(lf, scope), args)

	contexts := make([]*report.SkillContext, 0, len(entries)+len(unknown))
	for _, e := range entries {
		contexts = append(contexts, report.Extract(e, paths.SkillsDir(e.Scope)))
	}
	for _, name := range unknown {
		s := scope
		if s == "" {
			s = skill.ScopeProject
		}
		contexts = append(contexts, &report.SkillContext{
			Name:  name,
			Scope: s,
			Error: fmt.Sprintf("skill '%s' is not in skillset.lock", name),
		})
	}

	out := cmd.OutOrStdout()
	return report.Render(out, contexts, report.Options{
		Format:  format,
		Verbose: contextVerbose,
		Width:   report.TerminalWidth(out),
	})
}

// selectEntries keeps entries named in names, in lock order. Names matching
// nothing are returned separately. No names selects everything.
func selectEntries(entries []*lock.Entry, names []string) ([]*lock.Entry, []string) {
	if len(names) == 0 {
		return entries, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	var selected []*lock.Entry
	found := make(map[string]bool)
	for _, e := range entries {
		if wanted[e.Name] {
			selected = append(selected, e)
			found[e.Name] = true
		}
	}

	var unknown []string
	for _, n := range names {
		if !found[n] {
			unknown = append(unknown, n)
			found[n] = true
		}
	}
	return selected, unknown
}
