// SPDX-License-Identifier: MIT

// Package paths builds the per-user storage layout. All recording artifacts
// live under users/user_{slug:06d}/recordings/{id}/ so cross-user collisions
// are impossible by construction.
package paths

import (
	"fmt"
	"path/filepath"
	"regexp"
)

// Recording IDs are ULIDs, user slugs are formatted decimals. Anything else
// is refused before it can reach the filesystem.
var safeRecordingID = regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]{26}$`)

// Layout resolves filesystem locations under a fixed storage root.
type Layout struct {
	Root string
}

// New returns a Layout rooted at the given absolute path.
func New(root string) *Layout {
	return &Layout{Root: filepath.Clean(root)}
}

// IsSafeRecordingID reports whether id is a well-formed ULID suitable for use
// as a path component.
func IsSafeRecordingID(id string) bool {
	return safeRecordingID.MatchString(id)
}

// SharedThumbnails is the cross-user thumbnail cache.
func (l *Layout) SharedThumbnails() string {
	return filepath.Join(l.Root, "shared", "thumbnails")
}

// Temp is the scratch area for in-flight downloads.
func (l *Layout) Temp() string {
	return filepath.Join(l.Root, "temp")
}

// UserRoot is the exclusive subtree of one user, keyed by slug.
func (l *Layout) UserRoot(slug int64) string {
	return filepath.Join(l.Root, "users", fmt.Sprintf("user_%06d", slug))
}

// UserThumbnails is the per-user thumbnail directory.
func (l *Layout) UserThumbnails(slug int64) string {
	return filepath.Join(l.UserRoot(slug), "thumbnails")
}

// RecordingDir is the folder owning every artifact of one recording.
func (l *Layout) RecordingDir(slug int64, recordingID string) (string, error) {
	if !IsSafeRecordingID(recordingID) {
		return "", fmt.Errorf("unsafe recording id %q", recordingID)
	}
	return filepath.Join(l.UserRoot(slug), "recordings", recordingID), nil
}

// RecordingFiles names the fixed artifact paths inside a recording dir.
type RecordingFiles struct {
	Dir              string
	SourceVideo      string // original download
	SourceAudio      string // original download for audio-only sources
	ProcessedVideo   string // trimmed/processed
	ProcessedAudio   string // extracted audio, 64k, 16kHz mono
	TranscriptionDir string
	MasterJSON       string
	TopicsJSON       string
	ExtractedJSON    string
	CacheDir         string
	SegmentsTxt      string
	WordsTxt         string
}

// Files resolves all artifact paths for one recording.
func (l *Layout) Files(slug int64, recordingID string) (RecordingFiles, error) {
	dir, err := l.RecordingDir(slug, recordingID)
	if err != nil {
		return RecordingFiles{}, err
	}
	tdir := filepath.Join(dir, "transcriptions")
	cache := filepath.Join(tdir, "cache")
	return RecordingFiles{
		Dir:              dir,
		SourceVideo:      filepath.Join(dir, "source.mp4"),
		SourceAudio:      filepath.Join(dir, "source.mp3"),
		ProcessedVideo:   filepath.Join(dir, "video.mp4"),
		ProcessedAudio:   filepath.Join(dir, "audio.mp3"),
		TranscriptionDir: tdir,
		MasterJSON:       filepath.Join(tdir, "master.json"),
		TopicsJSON:       filepath.Join(tdir, "topics.json"),
		ExtractedJSON:    filepath.Join(tdir, "extracted.json"),
		CacheDir:         cache,
		SegmentsTxt:      filepath.Join(cache, "segments.txt"),
		WordsTxt:         filepath.Join(cache, "words.txt"),
	}, nil
}
