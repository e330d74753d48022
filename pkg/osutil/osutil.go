// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package osutil collects small filesystem helpers used by pkg/corpus to
// persist corpus and solution files (spec.md section 4.11) and by
// pkg/testutil to lay out test fixtures, adapted from the conventions the
// teacher's own pkg/osutil follows elsewhere in the tree.
package osutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// MkdirAll is os.MkdirAll with the directory's default permissions;
// present mainly so callers depend on one osutil surface instead of mixing
// os and osutil calls, matching the teacher's own pkg/osutil style.
func MkdirAll(dir string) error {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("osutil: mkdir %s: %w", dir, err)
	}
	return nil
}

// WriteFile atomically replaces the contents of path with data: it writes
// to a temporary file in the same directory, then renames over path, so a
// reader never observes a partially-written corpus or solution file.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := MkdirAll(dir); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".osutil-tmp-*")
	if err != nil {
		return fmt.Errorf("osutil: creating temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("osutil: writing temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("osutil: closing temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("osutil: renaming temp file onto %s: %w", path, err)
	}
	return nil
}

// ReadFile reads the whole file at path, wrapping os.ReadFile's error the
// same way the rest of this package wraps its filesystem errors.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("osutil: reading %s: %w", path, err)
	}
	return data, nil
}

// IsExist reports whether path exists.
func IsExist(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadDirFileNames returns the base names of the regular files directly
// inside dir, skipping subdirectories -- used by pkg/corpus to enumerate a
// persisted corpus or solutions directory, where "no index file; the
// directory listing is the index" (spec.md section 6).
func ReadDirFileNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("osutil: reading directory %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}
