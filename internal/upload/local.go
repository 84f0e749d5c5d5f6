// Package upload stores submitted documents until extraction finishes
// with them.
package upload

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// FileRef identifies a stored document. Opaque to callers.
type FileRef string

// Storage persists uploaded documents.
type Storage interface {
	Save(r io.Reader, filename string) (FileRef, error)
	Open(ref FileRef) (io.ReadCloser, error)
	Remove(ref FileRef) error
}

// ErrFileTooLarge is returned when an upload exceeds the configured cap.
var ErrFileTooLarge = eris.New("upload: file too large")

// ErrBadExtension is returned for file types outside the allow-list.
var ErrBadExtension = eris.New("upload: file type not allowed")

// Local stores uploads on the local filesystem under a single directory,
// one randomly named file per upload.
type Local struct {
	dir        string
	maxBytes   int64
	extensions map[string]bool
}

// NewLocal creates the upload directory if needed. maxSizeMB <= 0 means
// no size cap; an empty extension list allows everything.
func NewLocal(dir string, maxSizeMB int64, allowedExtensions []string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "upload: create dir %s", dir)
	}
	exts := make(map[string]bool, len(allowedExtensions))
	for _, e := range allowedExtensions {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			exts["."+e] = true
		}
	}
	return &Local{
		dir:        dir,
		maxBytes:   maxSizeMB * 1024 * 1024,
		extensions: exts,
	}, nil
}

// Save validates and writes the upload, returning a reference usable
// with Open and Remove. The original filename only contributes its
// extension; the stored name is random.
func (l *Local) Save(r io.Reader, filename string) (FileRef, error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(l.extensions) > 0 && !l.extensions[ext] {
		return "", eris.Wrapf(ErrBadExtension, "%q", ext)
	}

	name := uuid.New().String() + ext
	path := filepath.Join(l.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", eris.Wrap(err, "upload: create file")
	}

	src := r
	if l.maxBytes > 0 {
		src = io.LimitReader(r, l.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", eris.Wrap(err, "upload: write file")
	}
	if l.maxBytes > 0 && n > l.maxBytes {
		_ = os.Remove(path)
		return "", eris.Wrapf(ErrFileTooLarge, "limit %d bytes", l.maxBytes)
	}
	return FileRef(name), nil
}

func (l *Local) Open(ref FileRef) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(l.dir, filepath.Base(string(ref))))
	if err != nil {
		return nil, eris.Wrapf(err, "upload: open %s", ref)
	}
	return f, nil
}

func (l *Local) Remove(ref FileRef) error {
	err := os.Remove(filepath.Join(l.dir, filepath.Base(string(ref))))
	if err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "upload: remove %s", ref)
	}
	return nil
}
