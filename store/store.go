package store

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/juju/errors"
	"gopkg.in/yaml.v2"
)

// Credentials are the last address and login used to reach a camera
type Credentials struct {
	IP       string `yaml:"ip"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Empty reports whether nothing has been saved
func (c Credentials) Empty() bool {
	return c.IP == "" && c.Username == "" && c.Password == ""
}

// FileStore keeps Credentials as a flat YAML map in a single file readable
// only by its owner
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

// Load returns the saved credentials; a missing file loads as empty
func (s *FileStore) Load() (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var creds Credentials
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return creds, nil
	}
	if err != nil {
		return creds, errors.Annotatef(err, "reading %s", s.path)
	}
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return Credentials{}, errors.Annotatef(err, "parsing %s", s.path)
	}
	return creds, nil
}

// Save replaces the stored credentials
func (s *FileStore) Save(creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(creds)
	if err != nil {
		return errors.Annotate(err, "encoding credentials")
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return errors.Annotatef(err, "creating %s", dir)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Annotatef(err, "writing %s", tmp)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return errors.Annotatef(err, "replacing %s", s.path)
	}
	return nil
}
