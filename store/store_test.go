package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "credentials.yaml"))

	creds, err := s.Load()
	require.NoError(t, err)
	assert.True(t, creds.Empty())
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "credentials.yaml")
	s := NewFileStore(path)

	require.NoError(t, s.Save(Credentials{IP: "10.0.0.5", Username: "admin", Password: "p@ss: word"}))

	creds, err := NewFileStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, Credentials{IP: "10.0.0.5", Username: "admin", Password: "p@ss: word"}, creds)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSaveIsFlatMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	require.NoError(t, NewFileStore(path).Save(Credentials{IP: "10.0.0.5", Username: "admin"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ip: 10.0.0.5\n")
	assert.Contains(t, string(data), "username: admin\n")
	assert.Contains(t, string(data), "password:")
}

func TestSaveReplaces(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "credentials.yaml"))

	require.NoError(t, s.Save(Credentials{IP: "10.0.0.5", Username: "admin", Password: "one"}))
	require.NoError(t, s.Save(Credentials{IP: "10.0.0.6", Username: "viewer", Password: "two"}))

	creds, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.6", creds.IP)
	assert.Equal(t, "viewer", creds.Username)
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ip: [10.0.0.5"), 0o600))

	_, err := NewFileStore(path).Load()
	assert.Error(t, err)
}
