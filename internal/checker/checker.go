// Package checker verifies installed skills against the lock file.
package checker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samhoang/asma/internal/lock"
	"github.com/samhoang/asma/internal/skill"
	"github.com/samhoang/asma/internal/symlink"
)

// Status of one installed skill
type Status string

const (
	StatusOK               Status = "ok"
	StatusMissing          Status = "missing"
	StatusBrokenSymlink    Status = "broken_symlink"
	StatusChecksumMismatch Status = "checksum_mismatch"
)

// Result describes the state of one lock entry on disk
type Result struct {
	SkillName        string      `json:"name" yaml:"name"`
	Scope            skill.Scope `json:"scope" yaml:"scope"`
	Status           Status      `json:"status" yaml:"status"`
	ExpectedPath     string      `json:"expected_path" yaml:"expected_path"`
	ExpectedChecksum string      `json:"expected_checksum,omitempty" yaml:"expected_checksum,omitempty"`
	ActualChecksum   string      `json:"actual_checksum,omitempty" yaml:"actual_checksum,omitempty"`
	Message          string      `json:"message,omitempty" yaml:"message,omitempty"`
}

// OK reports whether the skill passed every check
func (r *Result) OK() bool {
	return r.Status == StatusOK
}

// Checker inspects install directories
type Checker struct {
	links *symlink.Manager
}

// New creates a checker
func New() *Checker {
	return &Checker{links: symlink.New()}
}

// Check inspects base/<install name> for entry. With verifyChecksum the
// installed SKILL.md must hash to the recorded checksum.
func (c *Checker) Check(entry *lock.Entry, base string, verifyChecksum bool) *Result {
	path := filepath.Join(base, entry.InstallName())
	result := &Result{SkillName: entry.Name, Scope: entry.Scope, ExpectedPath: path, Status: StatusOK}

	info, err := c.links.Info(path)
	switch {
	case err != nil:
		result.Status = StatusMissing
		result.Message = err.Error()
		return result
	case !info.Exists:
		result.Status = StatusMissing
		result.Message = fmt.Sprintf("Directory not found: %s", path)
		return result
	case info.IsBroken:
		result.Status = StatusBrokenSymlink
		result.Message = fmt.Sprintf("Symlink target does not exist: %s", info.Target)
		return result
	}

	if !verifyChecksum {
		return result
	}

	actual, err := skill.ManifestDigest(path)
	if err != nil {
		result.Status = StatusMissing
		if errors.Is(err, os.ErrNotExist) {
			result.Message = skill.ManifestFile + " not found"
		} else {
			result.Message = err.Error()
		}
		return result
	}

	if actual.String() != entry.Checksum {
		result.Status = StatusChecksumMismatch
		result.ExpectedChecksum = entry.Checksum
		result.ActualChecksum = actual.String()
		result.Message = "Checksum does not match"
	}
	return result
}

// Summary counts results
type Summary struct {
	Total  int
	Passed int
}

// Failed returns the number of failing results
func (s Summary) Failed() int {
	return s.Total - s.Passed
}

// Summarize counts passing results
func Summarize(results []*Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.OK() {
			s.Passed++
		}
	}
	return s
}
