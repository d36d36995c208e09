package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const docManifest = `---
name: doc-helper
description: Helps write documentation
version: 1.0.0
---
# Doc helper
`

// resetFlags restores every flag to its default, since cobra keeps values
// between executions of the same command tree
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// workspace creates a project directory with a local skill and isolates
// the global skills dir and cache
func workspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	project := filepath.Join(root, "project")
	skillDir := filepath.Join(project, "skills", "doc-helper")
	require.NoError(t, os.MkdirAll(skillDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(docManifest), 0644))

	t.Setenv("HOME", root)
	t.Setenv("CLAUDE_CONFIG_DIR", filepath.Join(root, "claude"))
	t.Setenv("ASMA_CACHE_DIR", filepath.Join(root, "cache"))
	t.Setenv("GITHUB_TOKEN", "")
	t.Chdir(project)
	return project
}

func execute(t *testing.T, args ...string) (string, int) {
	t.Helper()
	resetFlags(rootCmd)
	var buf bytes.Buffer
	code := run(args, &buf, &buf)
	return buf.String(), code
}

func writeSkillset(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skillset.yaml"), []byte(content), 0644))
}

func TestVersion(t *testing.T) {
	out, code := execute(t, "version")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "asma version dev\n", out)
}

func TestInit(t *testing.T) {
	project := workspace(t)

	out, code := execute(t, "init")
	require.Equal(t, exitOK, code, out)
	data, err := os.ReadFile(filepath.Join(project, "skillset.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "parallel_downloads: 4")

	out, code = execute(t, "init")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, out, "already exists")

	_, code = execute(t, "init", "--force")
	assert.Equal(t, exitOK, code)
}

func TestMissingFiles(t *testing.T) {
	workspace(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"install", []string{"install"}, "Run 'asma init'"},
		{"add", []string{"add", "local:./skills/doc-helper"}, "Run 'asma init'"},
		{"check", []string{"check"}, "skillset.lock not found"},
		{"context", []string{"context"}, "skillset.lock not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, code := execute(t, tt.args...)
			assert.Equal(t, exitMissingFile, code)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestListWithoutLock(t *testing.T) {
	workspace(t)

	out, code := execute(t, "list")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "No skills installed")
}

func TestInstallLifecycle(t *testing.T) {
	project := workspace(t)
	writeSkillset(t, project, `project:
  - name: doc-helper
    source: local:./skills/doc-helper
  - name: disabled
    source: local:./skills/nowhere
    enabled: false
`)

	out, code := execute(t, "install")
	require.Equal(t, exitOK, code, out)
	assert.Contains(t, out, "Installing 1 skill(s)")
	assert.Contains(t, out, "✓ doc-helper (project)")
	assert.Contains(t, out, "Installed 1/1 skill(s)")

	installed := filepath.Join(project, ".claude", "skills", "doc-helper")
	info, err := os.Lstat(installed)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)
	assert.FileExists(t, filepath.Join(project, "skillset.lock"))

	out, code = execute(t, "list")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "doc-helper local@")

	out, code = execute(t, "check", "--checksum")
	assert.Equal(t, exitOK, code, out)
	assert.Contains(t, out, "1/1 skills OK")

	out, code = execute(t, "context", "--format", "json")
	require.Equal(t, exitOK, code, out)
	var data map[string]map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &data))
	assert.Equal(t, "Helps write documentation", data["project"]["doc-helper"]["description"])

	out, code = execute(t, "install")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, out, "use --force to overwrite")

	_, code = execute(t, "install", "--force")
	assert.Equal(t, exitOK, code)

	require.NoError(t, os.Remove(installed))
	out, code = execute(t, "check", "--quiet")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, out, "✗ doc-helper (project)")
	assert.Contains(t, out, "0/1 skills OK")
}

func TestInstallPartialFailure(t *testing.T) {
	project := workspace(t)
	writeSkillset(t, project, `project:
  doc-helper:
    source: local:./skills/doc-helper
  missing:
    source: local:./skills/missing
`)

	out, code := execute(t, "install")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, out, "✓ doc-helper (project)")
	assert.Contains(t, out, "✗ missing (project)")
	assert.Contains(t, out, "local skill not found")
	assert.Contains(t, out, "Installed 1/2 skill(s), 1 failed")
	assert.FileExists(t, filepath.Join(project, "skillset.lock"))
}

func TestInstallScopeFilter(t *testing.T) {
	project := workspace(t)
	writeSkillset(t, project, `project:
  - name: doc-helper
    source: local:./skills/doc-helper
`)

	out, code := execute(t, "install", "--scope", "global")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "No skills to install")

	_, code = execute(t, "install", "--scope", "team")
	assert.Equal(t, exitFailure, code)
}

func TestAdd(t *testing.T) {
	project := workspace(t)
	_, code := execute(t, "init")
	require.Equal(t, exitOK, code)

	out, code := execute(t, "add", "local:./skills/doc-helper")
	require.Equal(t, exitOK, code, out)
	assert.Contains(t, out, "Found skill: doc-helper")
	assert.Contains(t, out, "Added 'doc-helper' to project scope")

	data, err := os.ReadFile(filepath.Join(project, "skillset.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "source: local:./skills/doc-helper")

	out, code = execute(t, "add", "local:./skills/doc-helper")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, out, "--force")

	out, code = execute(t, "add", "local:./skills/doc-helper", "--global", "--name", "docs")
	require.Equal(t, exitOK, code, out)
	assert.Contains(t, out, "Added 'docs' to global scope")

	out, code = execute(t, "add", "local:./skills/nowhere")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, out, "failed to fetch skill")
}

func TestSelectEntries(t *testing.T) {
	project := workspace(t)
	writeSkillset(t, project, `project:
  - name: doc-helper
    source: local:./skills/doc-helper
`)
	_, code := execute(t, "install")
	require.Equal(t, exitOK, code)

	out, code := execute(t, "context", "doc-helper", "ghost", "--format", "yaml")
	require.Equal(t, exitOK, code, out)
	assert.Contains(t, out, "doc-helper:")
	assert.Contains(t, out, "skill 'ghost' is not in skillset.lock")
}
