// Package spool stages incoming uploads on local disk before they are
// forwarded to the object store. Every staged file lives under a single
// directory and is named from a generated token, so concurrent uploads that
// share an original filename never touch the same path.
package spool

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/gyanasetu/upload-relay/internal/domain"
)

const filePrefix = "gyanasetu-"

// maxExtLen bounds the extension carried over from the original filename.
const maxExtLen = 16

var errFinalized = errors.New("spool file already finalized")

// Spool creates and removes staged upload files in one directory.
type Spool struct {
	dir string
}

// New creates a Spool rooted at dir, creating the directory if needed. An
// empty dir selects the process temp directory.
func New(dir string) (*Spool, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("spool: failed to create directory %q: %w", dir, err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("spool: failed to resolve absolute path for %q: %w", dir, err)
	}
	return &Spool{dir: abs}, nil
}

// Dir returns the absolute directory staged files are written to.
func (s *Spool) Dir() string {
	return s.dir
}

// Open creates a new, empty staged file for an upload called filename.
func (s *Spool) Open(filename string) (*File, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, domain.NewValidationError("File name is required")
	}

	path := filepath.Join(s.dir, filePrefix+uuid.NewString()+safeExt(filename))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, domain.NewSpoolWriteError("Failed to store upload", err)
	}

	return &File{spool: s, f: f, path: path, name: filename}, nil
}

// Release removes the staged file at path. Removing a file that no longer
// exists is not an error.
func (s *Spool) Release(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("spool: failed to remove %q: %w", path, err)
	}
	return nil
}

// File is a single staged upload. It is owned by one request and is not safe
// for concurrent use, apart from Release which may race with a Write that is
// being aborted.
type File struct {
	spool *Spool
	path  string
	name  string

	mu   sync.Mutex
	f    *os.File
	size int64
}

// Path returns the absolute path of the staged file.
func (f *File) Path() string {
	return f.path
}

// Name returns the original filename supplied by the client.
func (f *File) Name() string {
	return f.name
}

// Size returns the number of bytes written so far.
func (f *File) Size() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

// Write appends p to the staged file.
func (f *File) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.f == nil {
		return 0, domain.NewSpoolWriteError("Failed to store upload", errFinalized)
	}
	n, err := f.f.Write(p)
	f.size += int64(n)
	if err != nil {
		return n, domain.NewSpoolWriteError("Failed to store upload", err)
	}
	return n, nil
}

// Finalize flushes and closes the staged file. Only a finalized file may be
// handed to the object store.
func (f *File) Finalize() (string, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.f == nil {
		return "", 0, domain.NewSpoolWriteError("Failed to store upload", errFinalized)
	}
	syncErr := f.f.Sync()
	closeErr := f.f.Close()
	f.f = nil
	if err := errors.Join(syncErr, closeErr); err != nil {
		return "", 0, domain.NewSpoolWriteError("Failed to store upload", err)
	}
	return f.path, f.size, nil
}

// Release closes the staged file if it is still open and removes it.
func (f *File) Release() error {
	f.mu.Lock()
	if f.f != nil {
		_ = f.f.Close()
		f.f = nil
	}
	f.mu.Unlock()

	return f.spool.Release(f.path)
}

// safeExt returns a short, path-safe extension taken from an untrusted
// filename, or "" when there is nothing usable.
func safeExt(filename string) string {
	ext := filepath.Ext(filepath.Base(filepath.Clean("/" + filename)))
	if len(ext) < 2 || len(ext) > maxExtLen {
		return ""
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	return strings.ToLower(ext)
}
