package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samhoang/asma/internal/checker"
	"github.com/samhoang/asma/internal/report"
)

var (
	checkScope    string
	checkChecksum bool
	checkQuiet    bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify installed skills against skillset.lock",
	Long: `Verify that every skill recorded in skillset.lock is present on disk.

Exits 1 when any skill is missing, a symlink is broken, or (with --checksum)
SKILL.md no longer matches the recorded checksum. Exits 2 when there is no
skillset.lock.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVarP(&checkScope, "scope", "s", "", "Only check skills of this scope (global or project)")
	checkCmd.Flags().BoolVar(&checkChecksum, "checksum", false, "Also verify SKILL.md checksums")
	checkCmd.Flags().BoolVarP(&checkQuiet, "quiet", "q", false, "Only print problems")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	scope, err := parseScopeFlag(checkScope)
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

	entries := lockEntries(lf, scope)
	if len(entries) == 0 {
		if !checkQuiet {
			fmt.Fprintln(cmd.OutOrStdout(), "No skills installed.")
		}
		return nil
	}

	c := checker.New()
	results := make([]*checker.Result, 0, len(entries))
	for _, e := range entries {
		r := c.Check(e, paths.SkillsDir(e.Scope), checkChecksum)
		logger.Debug("checked", "skill", r.SkillName, "scope", r.Scope, "status", r.Status)
		results = append(results, r)
	}

	report.Check(cmd.OutOrStdout(), results, checkQuiet)
	if checker.Summarize(results).Failed() > 0 {
		return reported()
	}
	return nil
}
