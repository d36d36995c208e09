package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/samhoang/asma/internal/config"
	asmaerrors "github.com/samhoang/asma/internal/errors"
	"github.com/samhoang/asma/internal/installer"
	"github.com/samhoang/asma/internal/lock"
	"github.com/samhoang/asma/internal/picker"
	"github.com/samhoang/asma/internal/skill"
	"github.com/samhoang/asma/internal/skillset"
	"github.com/samhoang/asma/internal/source"
)

var (
	installFile        string
	installScope       string
	installForce       bool
	installInteractive bool
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the skills declared in skillset.yaml",
	Long: `Install every enabled skill declared in skillset.yaml.

Local sources are symlinked; GitHub sources are downloaded into the cache and
copied. Successful installs are recorded in skillset.lock next to the
skillset file. One failing skill does not stop the others.`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

func init() {
	installCmd.Flags().StringVarP(&installFile, "file", "f", config.SkillsetFile, "Path to the skillset file")
	installCmd.Flags().StringVarP(&installScope, "scope", "s", "", "Only install skills of this scope (global or project)")
	installCmd.Flags().BoolVar(&installForce, "force", false, "Replace skills that are already installed")
	installCmd.Flags().BoolVarP(&installInteractive, "interactive", "i", false, "Choose skills interactively")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	scope, err := parseScopeFlag(installScope)
	if err != nil {
		return err
	}

	paths, err := resolvePaths()
	if err != nil {
		return err
	}

	file := installFile
	if !filepath.IsAbs(file) {
		file = filepath.Join(paths.ProjectDir, file)
	}

	set, err := skillset.Load(file)
	if errors.Is(err, asmaerrors.ErrNotFound) {
		return missingFile("skillset.yaml not found: %s\n  Run 'asma init' to create one.", file)
	} else if err != nil {
		return fmt.Errorf("failed to load skillset: %w", err)
	}

	var refs []*skill.Reference
	for _, ref := range set.All() {
		if scope != "" && ref.Scope != scope {
			continue
		}
		if !ref.Enabled {
			logger.Debug("skipping disabled skill", "skill", ref.Name, "scope", ref.Scope)
			continue
		}
		refs = append(refs, ref)
	}

	if installInteractive && len(refs) > 0 {
		refs, err = pickReferences(refs)
		if err != nil {
			return err
		}
		if refs == nil {
			fmt.Fprintln(out, "Cancelled")
			return nil
		}
	}

	if len(refs) == 0 {
		fmt.Fprintln(out, "No skills to install.")
		return nil
	}

	registry, err := newRegistry(paths, set.Config)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Installing %d skill(s)...\n\n", len(refs))
	results := installAll(cmd.Context(), registry, paths, refs, set.Config.ParallelDownloads)

	succeeded := printInstallResults(out, refs, results)

	if succeeded > 0 {
		lockPath := filepath.Join(filepath.Dir(file), config.LockFile)
		if err := updateLock(lockPath, refs, results); err != nil {
			return fmt.Errorf("failed to update skillset.lock: %w", err)
		}
		logger.Debug("lock updated", "path", lockPath)
	}

	failed := len(results) - succeeded
	fmt.Fprintln(out)
	summary := fmt.Sprintf("Installed %d/%d skill(s)", succeeded, len(results))
	if failed > 0 {
		fmt.Fprintln(out, errorStyle.Render(fmt.Sprintf("%s, %d failed", summary, failed)))
		return reported()
	}
	fmt.Fprintln(out, successStyle.Bold(true).Render(summary))
	return nil
}

func pickReferences(refs []*skill.Reference) ([]*skill.Reference, error) {
	byID := make(map[string]*skill.Reference, len(refs))
	items := make([]picker.Item, 0, len(refs))
	for _, ref := range refs {
		id := string(ref.Scope) + "/" + ref.Name
		byID[id] = ref
		items = append(items, picker.Item{
			ID:       id,
			Label:    ref.Name,
			Detail:   ref.Source,
			Group:    scopeHeading(ref.Scope),
			Selected: true,
		})
	}

	selected, err := picker.Run("Select skills to install", items)
	if err != nil {
		return nil, fmt.Errorf("selection failed: %w", err)
	}
	if len(selected) == 0 {
		return nil, nil
	}

	result := make([]*skill.Reference, 0, len(selected))
	for _, id := range selected {
		result = append(result, byID[id])
	}
	return result, nil
}

func scopeHeading(scope skill.Scope) string {
	if scope == skill.ScopeGlobal {
		return "Global"
	}
	return "Project"
}

// unsupportedResolver reports a registry lookup failure as a per-skill result
type unsupportedResolver struct {
	err error
}

func (r unsupportedResolver) Resolve(context.Context, *skill.Reference) (*source.ResolvedSource, error) {
	return nil, r.err
}

func (r unsupportedResolver) Download(context.Context, *source.ResolvedSource) (string, error) {
	return "", r.err
}

func (r unsupportedResolver) ShouldSymlink() bool {
	return false
}

func installAll(ctx context.Context, registry *source.Registry, paths *config.Paths, refs []*skill.Reference, parallelism int) []*installer.Result {
	jobs := make([]installer.Job, 0, len(refs))
	for _, ref := range refs {
		res, err := registry.For(ref)
		if err != nil {
			res = unsupportedResolver{err: err}
		}
		jobs = append(jobs, installer.Job{
			Ref:      ref,
			Resolver: res,
			Base:     paths.SkillsDir(ref.Scope),
			Force:    installForce,
		})
	}

	batch := &installer.Batch{Installer: installer.New(logger), Parallelism: parallelism}
	return batch.Run(ctx, jobs)
}

func printInstallResults(out io.Writer, refs []*skill.Reference, results []*installer.Result) int {
	succeeded := 0
	for i, r := range results {
		for _, w := range r.Warnings {
			fmt.Fprintf(out, "%s %s\n", warnStyle.Render("⚠"), w)
		}

		label := fmt.Sprintf("%s (%s)", refs[i].Name, refs[i].Scope)
		if r.Success {
			succeeded++
			detail := r.Version
			if r.Symlink {
				detail += ", symlink"
			}
			fmt.Fprintf(out, "%s %s %s\n", successStyle.Render("✓"), label, dimStyle.Render(detail))
			continue
		}
		fmt.Fprintf(out, "%s %s - %s\n", errorStyle.Render("✗"), label, failureMessage(r.Err, r.Error))
	}
	return succeeded
}

func updateLock(path string, refs []*skill.Reference, results []*installer.Result) error {
	lf, err := lock.LoadOrNew(path)
	if err != nil {
		return err
	}

	now := time.Now()
	for i, r := range results {
		if r.Success {
			lf.Put(lock.EntryFromResult(refs[i], r, now))
		}
	}
	return lf.Save(path)
}
