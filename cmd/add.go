package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	asmaerrors "github.com/samhoang/asma/internal/errors"
	"github.com/samhoang/asma/internal/fetcher"
	"github.com/samhoang/asma/internal/skill"
	"github.com/samhoang/asma/internal/skillset"
)

var (
	addGlobal  bool
	addScope   string
	addName    string
	addVersion string
	addRef     string
	addForce   bool
)

var addCmd = &cobra.Command{
	Use:   "add <source>",
	Short: "Add a skill to skillset.yaml",
	Long: `Fetch a skill's SKILL.md to learn its name, then add it to skillset.yaml.

The skill is not installed; run 'asma install' afterwards.`,
	Example: `  asma add github:anthropics/skills/document-skills/pdf
  asma add github:acme/skills/linter --version v1.2.0 --global
  asma add local:~/skills/my-skill --name my-skill`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().BoolVarP(&addGlobal, "global", "g", false, "Add to the global scope")
	addCmd.Flags().StringVarP(&addScope, "scope", "s", "", "Scope to add to (global or project, default project)")
	addCmd.Flags().StringVar(&addName, "name", "", "Skill name (default: name from SKILL.md)")
	addCmd.Flags().StringVar(&addVersion, "version", "", "Pin a release tag")
	addCmd.Flags().StringVar(&addRef, "ref", "", "Pin a branch or commit")
	addCmd.Flags().BoolVar(&addForce, "force", false, "Replace an existing entry with the same name")
	addCmd.MarkFlagsMutuallyExclusive("version", "ref")
	addCmd.MarkFlagsMutuallyExclusive("global", "scope")
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	src := args[0]

	scope := skill.ScopeProject
	if addGlobal {
		scope = skill.ScopeGlobal
	} else if addScope != "" {
		s, err := skill.ParseScope(addScope)
		if err != nil {
			return err
		}
		scope = s
	}

	paths, err := resolvePaths()
	if err != nil {
		return err
	}

	set, err := skillset.Load(paths.SkillsetPath())
	if errors.Is(err, asmaerrors.ErrNotFound) {
		return missingFile("skillset.yaml not found: %s\n  Run 'asma init' to create one.", paths.SkillsetPath())
	} else if err != nil {
		return fmt.Errorf("failed to load skillset: %w", err)
	}

	registry, err := newRegistry(paths, set.Config)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Fetching %s...\n", src)
	meta := fetcher.New(registry, logger).FetchMetadata(cmd.Context(), src, addVersion, addRef)
	for _, w := range meta.Warnings {
		fmt.Fprintf(out, "%s %s\n", warnStyle.Render("⚠"), w)
	}
	if !meta.Success {
		return fmt.Errorf("failed to fetch skill: %s", meta.Error)
	}

	name := addName
	if name == "" {
		name = meta.Name
	}
	if !skill.ValidName(name) {
		return fmt.Errorf("invalid skill name %q: use lowercase letters, digits and hyphens, or pass --name", name)
	}

	fmt.Fprintf(out, "Found skill: %s\n", boldStyle.Render(meta.Name))
	if meta.Description != "" {
		fmt.Fprintf(out, "  %s\n", dimStyle.Render(meta.Description))
	}

	entry := skillset.Entry{Name: name, Source: src, Version: addVersion, Ref: addRef}
	if err := skillset.NewWriter(paths.SkillsetPath()).AddSkill(entry, scope, addForce); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s Added '%s' to %s scope\n", successStyle.Render("✓"), name, scope)
	fmt.Fprintln(out, "  Run 'asma install' to install it.")
	return nil
}
