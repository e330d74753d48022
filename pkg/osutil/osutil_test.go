// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package osutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileCreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "solution.bin")

	require.NoError(t, WriteFile(path, []byte("payload")))
	assert.True(t, IsExist(path))

	names, err := ReadDirFileNames(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	assert.Equal(t, []string{"solution.bin"}, names)
}

func TestWriteFileOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus-entry")

	require.NoError(t, WriteFile(path, []byte("first")))
	require.NoError(t, WriteFile(path, []byte("second")))

	names, err := ReadDirFileNames(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"corpus-entry"}, names)
}

func TestIsExistFalseForMissingPath(t *testing.T) {
	assert.False(t, IsExist(filepath.Join(t.TempDir(), "nope")))
}
