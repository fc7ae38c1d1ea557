package stream

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirStorageCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), DefaultCaptureDir)
	s := DirStorage{Dir: dir}

	path, err := s.Save("MI_20261018_093015.123_abcdef01.png", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "MI_20261018_093015.123_abcdef01.png"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
}

func TestDirStorageNeverOverwrites(t *testing.T) {
	s := DirStorage{Dir: t.TempDir()}

	_, err := s.Save("frame.png", []byte("first"))
	require.NoError(t, err)
	_, err = s.Save("frame.png", []byte("second"))
	assert.Error(t, err)

	data, err := os.ReadFile(filepath.Join(s.Dir, "frame.png"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestDirStorageStaysInDirectory(t *testing.T) {
	s := DirStorage{Dir: t.TempDir()}

	path, err := s.Save("../escape.png", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir, "escape.png"), path)
}

func TestDirStorageUnavailable(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := DirStorage{Dir: filepath.Join(file, "captures")}.Save("frame.png", []byte("x"))
	assert.Error(t, err)

	_, err = DirStorage{}.Save("frame.png", []byte("x"))
	assert.Error(t, err)
}
