package installer

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/samhoang/asma/internal/skill"
	"github.com/samhoang/asma/internal/source"
)

// Job is one pending install
type Job struct {
	Ref      *skill.Reference
	Resolver source.Resolver
	Base     string
	Force    bool
}

// Batch installs several skills with bounded parallelism. A failed job does
// not stop the others.
type Batch struct {
	Installer   *Installer
	Parallelism int
}

// Run installs every job and returns results in job order. Jobs not yet
// started when ctx is cancelled fail with the context error. Staging
// leftovers from earlier interrupted runs are removed from each base first.
func (b *Batch) Run(ctx context.Context, jobs []Job) []*Result {
	results := make([]*Result, len(jobs))

	cleaned := make(map[string]bool)
	for _, job := range jobs {
		if cleaned[job.Base] {
			continue
		}
		cleaned[job.Base] = true
		if err := b.Installer.RemoveStaging(job.Base); err != nil {
			b.Installer.logger.Warn("could not remove stale staging directories", "base", job.Base, "error", err)
		}
	}

	var g errgroup.Group
	if b.Parallelism > 0 {
		g.SetLimit(b.Parallelism)
	}

	for i, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				r := &Result{SkillName: job.Ref.Name, Scope: job.Ref.Scope}
				r.fail(err)
				results[i] = r
				return nil
			}
			results[i] = b.Installer.Install(ctx, job.Ref, job.Resolver, job.Base, job.Force)
			return nil
		})
	}

	_ = g.Wait()
	return results
}
