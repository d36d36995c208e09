package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	asmaerrors "github.com/samhoang/asma/internal/errors"
	"github.com/samhoang/asma/internal/lock"
	"github.com/samhoang/asma/internal/report"
)

var listScope string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed skills from skillset.lock",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVarP(&listScope, "scope", "s", "", "Only list skills of this scope (global or project)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	scope, err := parseScopeFlag(listScope)
	if err != nil {
		return err
	}

	paths, err := resolvePaths()
	if err != nil {
		return err
	}

	lf, err := lock.Load(paths.LockPath())
	if errors.Is(err, asmaerrors.ErrNotFound) {
		lf = lock.New()
	} else if err != nil {
		return err
	}

	report.List(cmd.OutOrStdout(), lockEntries(lf, scope))
	return nil
}
