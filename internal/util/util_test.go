// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	data := []byte("audit payload")

	require.NoError(t, AtomicWriteFile(path, data, 0600))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestAtomicWriteFile_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "out.bin")
	require.NoError(t, AtomicWriteFile(path, []byte("x"), 0600))
	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestAtomicWriteFile_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, AtomicWriteFile(path, []byte("old"), 0600))
	require.NoError(t, AtomicWriteFile(path, []byte("new"), 0600))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
}

func TestAtomicWriteFile_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AtomicWriteFile(filepath.Join(dir, "out.bin"), []byte("x"), 0600))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAtomicWriteFile_LargeData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.bin")
	data := bytes.Repeat([]byte("0123456789abcdef"), 64*1024)

	require.NoError(t, AtomicWriteFile(path, data, 0600))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestAtomicWriteFileWithDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")
	path := filepath.Join(dir, "k1.key")

	require.NoError(t, AtomicWriteFileWithDir(path, []byte("key material"), 0600, 0700))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "short", TruncateRunes("short", 10))
	assert.Equal(t, "exactly10!", TruncateRunes("exactly10!", 10))
	assert.Equal(t, "long st...", TruncateRunes("long string here", 10))
	assert.Equal(t, "", TruncateRunes("anything", 0))
	assert.Equal(t, "ab", TruncateRunes("abcdef", 2))
}

func TestTruncateRunes_UTF8(t *testing.T) {
	// 5 runes, 15 bytes; byte truncation would split a character.
	s := "日本語文字"
	assert.Equal(t, s, TruncateRunes(s, 5))
	assert.Equal(t, "日本", TruncateRunes(s, 2))
}

func TestTruncateRunesNoEllipsis(t *testing.T) {
	assert.Equal(t, "long strin", TruncateRunesNoEllipsis("long string here", 10))
	assert.Equal(t, "short", TruncateRunesNoEllipsis("short", 10))
	assert.Equal(t, "", TruncateRunesNoEllipsis("x", 0))
}
