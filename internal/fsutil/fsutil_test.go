// SPDX-License-Identifier: MIT

package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirSizeSumsRegularFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.bin"), make([]byte, 100), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "nested", "b.bin"), make([]byte, 50), 0o644))

	got, err := DirSize(root)
	require.NoError(t, err)
	assert.Equal(t, int64(150), got)
}

func TestDirSizeMissingRootIsZero(t *testing.T) {
	got, err := DirSize(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestWriteAtomicCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "out.json")
	require.NoError(t, WriteAtomic(path, []byte(`{}`), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}

func TestRemoveDirMissingIsFine(t *testing.T) {
	assert.NoError(t, RemoveDir(filepath.Join(t.TempDir(), "gone")))
}
