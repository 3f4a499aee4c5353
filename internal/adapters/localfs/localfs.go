// SPDX-License-Identifier: MIT

// Package localfs is the built-in watch-folder integration: discovery lists
// media files under a configured directory and the fetcher copies them into
// the recording layout. It is the only adapter shipped with the daemon;
// cloud sources plug in through the same contracts.
package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/mediaflow/internal/clock"
	"github.com/ManuGH/mediaflow/internal/model"
)

// quiescence is how long a file must stay unmodified before discovery treats
// it as finalized. A file still being written keeps showing up as pending.
const quiescence = time.Minute

var mediaExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".mov": true, ".avi": true,
	".mp3": true, ".m4a": true, ".wav": true,
}

// Adapter discovers recordings from a local directory.
type Adapter struct {
	clk clock.Clock
}

// NewAdapter returns the watch-folder discovery adapter.
func NewAdapter(clk clock.Clock) *Adapter {
	return &Adapter{clk: clk}
}

func (a *Adapter) Type() model.SourceType { return model.SourceLocal }

// List walks the source's configured path and reports every media file whose
// modification time falls inside the window. The source key is the path
// relative to the watch root, so moves create new candidates and in-place
// rewrites do not.
func (a *Adapter) List(ctx context.Context, src *model.InputSource,
	since, until time.Time, _ model.JSON) ([]model.CandidateRecording, error) {

	root, _ := src.Config["path"].(string)
	if root == "" {
		return nil, model.Validation("local source has no path configured")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, model.RetryableIO("reading watch folder", err)
	}
	if !info.IsDir() {
		return nil, model.Validation(fmt.Sprintf("watch path %q is not a directory", root))
	}

	now := a.clk.Now()
	var out []model.CandidateRecording
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !mediaExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		mod := fi.ModTime().UTC()
		if mod.Before(since) || mod.After(until) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		out = append(out, model.CandidateRecording{
			SourceKey:   rel,
			DisplayName: name,
			StartTime:   mod,
			SizeBytes:   fi.Size(),
			Finalized:   now.Sub(mod) >= quiescence,
			Blank:       fi.Size() == 0,
			Raw:         model.JSON{"path": path, "size": fi.Size()},
		})
		return nil
	})
	if err != nil {
		return nil, model.RetryableIO("walking watch folder", err)
	}
	return out, nil
}

// Fetcher copies watched files into the recording layout.
type Fetcher struct{}

// Fetch copies the file named by the source metadata to dest. The copy goes
// through a temp file so a crash never leaves a truncated destination behind.
func (Fetcher) Fetch(ctx context.Context, meta *model.SourceMetadata, dest string) (int64, error) {
	src, ok := meta.Raw["path"].(string)
	if !ok || src == "" {
		return 0, model.FatalExternal("source metadata carries no local path", nil)
	}
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, model.FatalExternal("watched file disappeared", err)
		}
		return 0, model.RetryableIO("opening watched file", err)
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, model.RetryableIO("creating recording dir", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".fetch-*")
	if err != nil {
		return 0, model.RetryableIO("creating temp file", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, contextReader{ctx, in})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, model.RetryableIO("copying watched file", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, model.RetryableIO("placing source file", err)
	}
	return n, nil
}

// Verify compares the local copy against the watched file by size.
func (Fetcher) Verify(_ context.Context, meta *model.SourceMetadata, path string) (bool, error) {
	want, ok := sizeOf(meta.Raw)
	if !ok {
		return false, nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, model.RetryableIO("verifying source file", err)
	}
	return fi.Size() == want, nil
}

// sizeOf tolerates both int64 (fresh) and float64 (JSON round-tripped) sizes.
func sizeOf(raw model.JSON) (int64, bool) {
	switch v := raw["size"].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// contextReader aborts a long copy when the stage is canceled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
