package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filehub/internal/session"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("STORAGE_DRIVER", "local")
	t.Setenv("STORAGE_DIR", filepath.Join(dir, "store"))
	t.Setenv("FILEHUB_USER", "")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--instant", "--quiet"}, args...))
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestCLI_PutListGetRemove(t *testing.T) {
	dir := setupEnv(t)
	src := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("0123456789"), 0o644))

	out, err := run(t, "put", "-u", "Ava", src)
	require.NoError(t, err)
	id, _, _ := strings.Cut(strings.TrimSpace(out), "\t")
	assert.True(t, strings.HasPrefix(id, "file:"), "unexpected put output %q", out)

	out, err = run(t, "ls")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "notes.txt")
	assert.Contains(t, out, "Ava")
	assert.Contains(t, out, "10 B")

	dest := filepath.Join(dir, "copy.txt")
	_, err = run(t, "get", id, "-o", dest)
	require.NoError(t, err)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	out, err = run(t, "get", id, "-o", "-")
	require.NoError(t, err)
	assert.Equal(t, "0123456789", out)

	_, err = run(t, "rm", id)
	require.NoError(t, err)
	_, err = run(t, "rm", id)
	require.NoError(t, err, "deleting twice must succeed")

	out, err = run(t, "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "No files shared yet.")
}

func TestCLI_PutRequiresUser(t *testing.T) {
	dir := setupEnv(t)
	src := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("a"), 0o644))

	_, err := run(t, "put", src)
	assert.True(t, errors.Is(err, session.ErrNoIdentity), "expected ErrNoIdentity, got %v", err)
}

func TestCLI_PutUsesUserFromEnv(t *testing.T) {
	dir := setupEnv(t)
	t.Setenv("FILEHUB_USER", "Bo")
	src := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(src, []byte("b"), 0o644))

	_, err := run(t, "put", src)
	require.NoError(t, err)

	out, err := run(t, "ls", "--by", "Bo")
	require.NoError(t, err)
	assert.Contains(t, out, "b.txt")
}

func TestCLI_GetUnknownID(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "get", "file:1_missing")
	assert.ErrorIs(t, err, session.ErrUnknownRecord)
}

func TestDetectType(t *testing.T) {
	assert.Equal(t, "image/png", detectType("a.PNG", ""))
	assert.Equal(t, "x/custom", detectType("a.png", "x/custom"))
	assert.Equal(t, "", detectType("noext", ""))
}
