// Copyright 2025 Longwave Instruments
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package usb

import (
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/bmatcuk/doublestar/v4"
)

// copyEntry is one file scheduled for transfer.
type copyEntry struct {
	// Rel is the path relative to the source root, preserved on the
	// destination.
	Rel string
	// Size in bytes, used for the capacity check.
	Size int64
}

// planCopy resolves the glob patterns against the source root and returns
// the matching regular files with their total size. Duplicate matches across
// overlapping patterns are collapsed.
func planCopy(root string, patterns []string) ([]copyEntry, int64, error) {
	fsys := os.DirFS(root)
	seen := make(map[string]struct{})
	var entries []copyEntry
	var total int64

	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, 0, err
		}
		for _, rel := range matches {
			if _, dup := seen[rel]; dup {
				continue
			}
			info, err := os.Stat(filepath.Join(root, rel))
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			seen[rel] = struct{}{}
			entries = append(entries, copyEntry{Rel: rel, Size: info.Size()})
			total += info.Size()
		}
	}
	return entries, total, nil
}

// freeSpace reports the bytes available to unprivileged writers at path. A
// variable so tests can simulate full media without filling a disk.
var freeSpace = func(path string) (uint64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// copyFile transfers one file, creating parent directories as needed. The
// file is fsynced before close: operators pull the media without unmounting,
// so data must be on the device by the time the done signal fires.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// syncDir flushes a directory's entries so freshly created files survive an
// immediate media pull.
func syncDir(path string) error {
	d, err := os.Open(path)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
