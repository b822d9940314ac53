package resolver

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}

func TestFromCurrentDirectoryAbsolute(t *testing.T) {
	assert.Equal(t, "/bin/true", FromCurrentDirectory("/bin/true", "/home/x"))
}

func TestFromCurrentDirectoryRelative(t *testing.T) {
	assert.Equal(t, filepath.Join("/home/x", "a.out"), FromCurrentDirectory("a.out", "/home/x"))
}

func TestFromPathWithSlashIsCwdRelative(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix executable bits only")
	}
	dir := t.TempDir()
	makeExecutable(t, dir, "tool")

	got, err := FromPath("./tool", dir, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tool"), got)
}

func TestFromPathSearchesPATH(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix executable bits only")
	}
	dir := t.TempDir()
	bin := makeExecutable(t, dir, "cc")

	got, err := FromPath("cc", "/irrelevant", map[string]string{"PATH": "/nonexistent:" + dir})
	require.NoError(t, err)
	assert.Equal(t, bin, got)
}

func TestFromPathEmptyPathEntryIsCwd(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix executable bits only")
	}
	dir := t.TempDir()
	makeExecutable(t, dir, "cc")

	got, err := FromPath("cc", dir, map[string]string{"PATH": ""})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cc"), got)
}

func TestFromPathMissingPATHUsesDefault(t *testing.T) {
	_, err := FromPath("nonexistent-xyz", "/tmp", map[string]string{})
	require.Error(t, err)
}

func TestFromPathNotFoundReturnsENOENT(t *testing.T) {
	_, err := FromPath("nonexistent-xyz", "/tmp", map[string]string{"PATH": "/tmp"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENOENT")
}

func TestFromSearchPathCustomList(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix executable bits only")
	}
	dir := t.TempDir()
	bin := makeExecutable(t, dir, "ld")

	got, err := FromSearchPath("ld", "/irrelevant", dir)
	require.NoError(t, err)
	assert.Equal(t, bin, got)
}
