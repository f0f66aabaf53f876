package atomicfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFile_CreatesParentsAndContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "prefixes.md")

	require.NoError(t, WriteFile(path, []byte("# Part Prefixes\n"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# Part Prefixes\n", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestWriteFile_ReplacesAndLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "materials.md")

	require.NoError(t, WriteFile(path, []byte("first"), 0o644))
	require.NoError(t, WriteFile(path, []byte("second"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must be renamed away")
	assert.Equal(t, "materials.md", entries[0].Name())
}

func TestReadFile_MissingIsEmpty(t *testing.T) {
	data, err := ReadFile(filepath.Join(t.TempDir(), "nope.md"))
	require.NoError(t, err)
	assert.Empty(t, data)
}
