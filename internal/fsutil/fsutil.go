// SPDX-License-Identifier: MIT

// Package fsutil holds small filesystem helpers shared by the quota ledger,
// the janitor and the stage actions.
package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// DirSize walks root and sums the size of all regular files underneath it.
// A missing root counts as zero bytes.
func DirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	if err != nil && os.IsNotExist(err) {
		return 0, nil
	}
	return total, err
}

// WriteAtomic writes data to path via a temp file and rename, creating parent
// directories as needed. Readers never observe a partial file.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return renameio.WriteFile(path, data, perm)
}

// RemoveDir removes a directory tree. Removing a missing tree is not an error.
func RemoveDir(path string) error {
	return os.RemoveAll(path)
}
