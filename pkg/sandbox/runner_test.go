package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "generate")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestDirectRunner_WritesStdout(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, `echo "cwd=$(basename "$PWD") arg=$1 extra=$2"; echo noise >&2`)
	out := filepath.Join(t.TempDir(), "out.txt")

	err := DirectRunner{}.Run(context.Background(), Command{
		Path:   script,
		Args:   []string{"report.xml", "<files/>"},
		Dir:    dir,
		Output: out,
	})
	require.NoError(t, err)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "cwd="+filepath.Base(dir)+" arg=report.xml extra=<files/>\n", string(got))
}

func TestDirectRunner_NonZeroExit(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "exit 3\n")

	err := DirectRunner{}.Run(context.Background(), Command{
		Path:   script,
		Dir:    dir,
		Output: filepath.Join(dir, "out"),
	})
	require.Error(t, err)
}

func TestUnprivilegedRunner_NonRootRunsDirect(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("requires a non-root user")
	}
	dir := t.TempDir()
	script := writeScript(t, dir, "echo ok\n")
	out := filepath.Join(dir, "out")

	r := NewUnprivilegedRunner("", nil)
	assert.Equal(t, "nobody", r.User)
	require.NoError(t, r.Run(context.Background(), Command{Path: script, Dir: dir, Output: out}))

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "ok\n", string(got))
}
