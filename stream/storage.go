package stream

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"
)

// DefaultCaptureDir is the directory captures are written to under the
// configured root
const DefaultCaptureDir = "ONVIFScreenshots"

// DirStorage writes captures into Dir, creating it on first use. Existing
// files are never overwritten.
type DirStorage struct {
	Dir string
}

func (s DirStorage) Save(name string, data []byte) (string, error) {
	if s.Dir == "" {
		return "", errors.NotValidf("empty capture directory")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", errors.Annotatef(err, "creating %s", s.Dir)
	}

	path := filepath.Join(s.Dir, filepath.Base(name))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", errors.Annotatef(err, "creating %s", path)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", errors.Annotatef(err, "writing %s", path)
	}
	if err := f.Close(); err != nil {
		return "", errors.Annotatef(err, "closing %s", path)
	}
	return path, nil
}
