// SPDX-License-Identifier: MIT

package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mediaflow/internal/clock"
	"github.com/ManuGH/mediaflow/internal/model"
)

func writeFile(t *testing.T, path string, data []byte, mod time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestListFindsMediaInWindow(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFake(now)

	writeFile(t, filepath.Join(root, "lecture.mp4"), []byte("video"), now.Add(-time.Hour))
	writeFile(t, filepath.Join(root, "sub", "talk.mkv"), []byte("video"), now.Add(-2*time.Hour))
	writeFile(t, filepath.Join(root, "notes.txt"), []byte("text"), now.Add(-time.Hour))
	writeFile(t, filepath.Join(root, "ancient.mp4"), []byte("video"), now.Add(-48*time.Hour))

	adapter := NewAdapter(fake)
	src := &model.InputSource{Config: model.JSON{"path": root}}
	got, err := adapter.List(context.Background(), src, now.Add(-24*time.Hour), now, nil)
	require.NoError(t, err)

	keys := make(map[string]model.CandidateRecording, len(got))
	for _, c := range got {
		keys[c.SourceKey] = c
	}
	require.Len(t, keys, 2)
	assert.Contains(t, keys, "lecture.mp4")
	assert.Contains(t, keys, filepath.Join("sub", "talk.mkv"))
	assert.Equal(t, "lecture", keys["lecture.mp4"].DisplayName)
	assert.True(t, keys["lecture.mp4"].Finalized)
}

func TestListStillWritingFilesArePending(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFake(now)

	writeFile(t, filepath.Join(root, "live.mp4"), []byte("partial"), now.Add(-10*time.Second))
	writeFile(t, filepath.Join(root, "empty.mp4"), nil, now.Add(-time.Hour))

	adapter := NewAdapter(fake)
	src := &model.InputSource{Config: model.JSON{"path": root}}
	got, err := adapter.List(context.Background(), src, now.Add(-24*time.Hour), now, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)

	for _, c := range got {
		switch c.SourceKey {
		case "live.mp4":
			assert.False(t, c.Finalized, "recently modified files are not finalized")
		case "empty.mp4":
			assert.True(t, c.Blank, "zero-byte files are blank")
		}
	}
}

func TestListRejectsUnconfiguredSource(t *testing.T) {
	adapter := NewAdapter(clock.NewFake(time.Now()))
	_, err := adapter.List(context.Background(), &model.InputSource{}, time.Time{}, time.Now(), nil)
	assert.True(t, model.IsKind(err, model.KindValidation))
}

func TestFetchCopiesAndVerifies(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "origin.mp4")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	meta := &model.SourceMetadata{Raw: model.JSON{"path": src, "size": int64(7)}}
	dest := filepath.Join(t.TempDir(), "rec", "source.mp4")

	var f Fetcher
	n, err := f.Fetch(context.Background(), meta, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	ok, err := f.Verify(context.Background(), meta, dest)
	require.NoError(t, err)
	assert.True(t, ok)

	// Truncated copies fail verification.
	require.NoError(t, os.WriteFile(dest, []byte("pay"), 0o644))
	ok, err = f.Verify(context.Background(), meta, dest)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFetchMissingOriginIsFatal(t *testing.T) {
	meta := &model.SourceMetadata{Raw: model.JSON{"path": filepath.Join(t.TempDir(), "gone.mp4")}}
	var f Fetcher
	_, err := f.Fetch(context.Background(), meta, filepath.Join(t.TempDir(), "source.mp4"))
	assert.True(t, model.IsKind(err, model.KindFatalExternal))
}

func TestVerifyToleratesJSONRoundTrippedSize(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "origin.mp4")
	require.NoError(t, os.WriteFile(src, []byte("1234"), 0o644))

	meta := &model.SourceMetadata{Raw: model.JSON{"path": src, "size": float64(4)}}
	var f Fetcher
	ok, err := f.Verify(context.Background(), meta, src)
	require.NoError(t, err)
	assert.True(t, ok)
}
