package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/samhoang/asma/internal/skillset"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a skillset.yaml template in the current directory",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing skillset.yaml")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	paths, err := resolvePaths()
	if err != nil {
		return err
	}
	path := paths.SkillsetPath()

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("skillset.yaml already exists: %s\n  Use --force to overwrite.", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := os.WriteFile(path, []byte(skillset.Template), 0644); err != nil {
		return fmt.Errorf("failed to write skillset.yaml: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Created %s\n", successStyle.Render("✓"), path)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  asma add github:owner/repo/skill   Add a skill")
	fmt.Fprintln(out, "  asma install                       Install declared skills")
	return nil
}
