package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspace_PrepareClearsPrevious(t *testing.T) {
	dir := t.TempDir()
	ws := NewWorkspace(filepath.Join(dir, "work"), filepath.Join(dir, "out"))

	require.NoError(t, ws.Prepare("a"))
	stale := filepath.Join(ws.ScratchDir("a"), "density_100.asc")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))

	require.NoError(t, ws.Prepare("a"))
	assert.NoFileExists(t, stale)
	assert.DirExists(t, ws.ScratchDir("a"))
	assert.DirExists(t, ws.StageDir("a"))
}

func TestWorkspace_PromoteReplacesOutput(t *testing.T) {
	dir := t.TempDir()
	ws := NewWorkspace(filepath.Join(dir, "work"), filepath.Join(dir, "out"))

	require.NoError(t, os.MkdirAll(ws.OutputDir("a"), 0o755))
	old := filepath.Join(ws.OutputDir("a"), "classified_900.asc")
	require.NoError(t, os.WriteFile(old, []byte("old"), 0o644))

	require.NoError(t, ws.Prepare("a"))
	require.NoError(t, os.WriteFile(filepath.Join(ws.StageDir("a"), "classified_100.asc"), []byte("new"), 0o644))

	got, err := ws.Promote("a")
	require.NoError(t, err)
	assert.Equal(t, ws.OutputDir("a"), got)
	assert.NoFileExists(t, old)
	data, err := os.ReadFile(filepath.Join(got, "classified_100.asc"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestWorkspace_Discard(t *testing.T) {
	dir := t.TempDir()
	ws := NewWorkspace(filepath.Join(dir, "work"), filepath.Join(dir, "out"))
	require.NoError(t, ws.Prepare("a"))
	require.NoError(t, ws.Discard("a"))
	assert.NoDirExists(t, filepath.Join(ws.Root, "a"))
	require.NoError(t, ws.Discard("never-prepared"))
}

func TestWorkspace_Withdraw(t *testing.T) {
	dir := t.TempDir()
	ws := NewWorkspace(filepath.Join(dir, "work"), filepath.Join(dir, "out"))
	require.NoError(t, ws.Prepare("a"))
	require.NoError(t, os.WriteFile(filepath.Join(ws.StageDir("a"), "classified_100.asc"), []byte("x"), 0o644))
	_, err := ws.Promote("a")
	require.NoError(t, err)

	require.NoError(t, ws.Withdraw("a"))
	assert.NoDirExists(t, ws.OutputDir("a"))
	require.NoError(t, ws.Withdraw("a"))
}

func TestCopyTree(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "nested", "a.txt"), []byte("a"), 0o644))

	dst := filepath.Join(t.TempDir(), "dst")
	require.NoError(t, copyTree(src, dst))
	data, err := os.ReadFile(filepath.Join(dst, "nested", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
}
