package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/gyanasetu/upload-relay/internal/domain"
)

const sidecarExt = ".json"

// LocalStore keeps objects in a directory on the local filesystem, next to a
// JSON sidecar holding the original name and MIME type. Links are file://
// URLs. Objects are private (0600) until GrantPublicRead relaxes them.
type LocalStore struct {
	baseDir string
}

type localMeta struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

// NewLocalStore creates a LocalStore that writes objects under baseDir. The
// directory is created if it does not already exist.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: failed to create local base directory %q: %w", baseDir, err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to resolve absolute path for %q: %w", baseDir, err)
	}
	return &LocalStore{baseDir: abs}, nil
}

// Upload copies the spooled body at req.Path to a new object.
func (s *LocalStore) Upload(_ context.Context, req *UploadRequest) (*domain.Object, error) {
	src, err := os.Open(req.Path)
	if err != nil {
		return nil, domain.NewUploadError("Failed to upload file", err)
	}
	defer src.Close()

	id := uuid.NewString()
	dest := s.objectPath(id)

	dst, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, domain.NewUploadError("Failed to upload file", err)
	}
	written, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(dest)
		return nil, domain.NewUploadError("Failed to upload file", fmt.Errorf("write %q: %w", dest, err))
	}

	meta, err := json.Marshal(localMeta{Name: req.Name, MimeType: req.MimeType})
	if err == nil {
		err = os.WriteFile(dest+sidecarExt, meta, 0o600)
	}
	if err != nil {
		_ = os.Remove(dest)
		return nil, domain.NewUploadError("Failed to upload file", fmt.Errorf("write metadata for %q: %w", id, err))
	}

	return &domain.Object{ID: id, Name: req.Name, MimeType: req.MimeType, Size: written}, nil
}

// GrantPublicRead makes the object world-readable.
func (s *LocalStore) GrantPublicRead(_ context.Context, fileID string) error {
	if err := s.validID(fileID); err != nil {
		return domain.NewPermissionError("Failed to share file", err)
	}
	if err := os.Chmod(s.objectPath(fileID), 0o644); err != nil {
		return domain.NewPermissionError("Failed to share file", err)
	}
	return nil
}

// Remove deletes the object and its sidecar.
func (s *LocalStore) Remove(_ context.Context, fileID string) error {
	if err := s.validID(fileID); err != nil {
		return domain.NewNotFoundError("File not found", err)
	}
	err := os.Remove(s.objectPath(fileID))
	if errors.Is(err, fs.ErrNotExist) {
		return domain.NewNotFoundError("File not found", err)
	}
	if err != nil {
		return domain.NewDeleteError("Failed to delete file", err)
	}
	if err := os.Remove(s.objectPath(fileID) + sidecarExt); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return domain.NewDeleteError("Failed to delete file", err)
	}
	return nil
}

// Describe reads the object's sidecar and size.
func (s *LocalStore) Describe(_ context.Context, fileID string) (*domain.Object, error) {
	if err := s.validID(fileID); err != nil {
		return nil, domain.NewNotFoundError("File not found", err)
	}
	info, err := os.Stat(s.objectPath(fileID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.NewNotFoundError("File not found", err)
	}
	if err != nil {
		return nil, domain.NewLookupError("Failed to get file info", err)
	}

	var meta localMeta
	data, err := os.ReadFile(s.objectPath(fileID) + sidecarExt)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, domain.NewLookupError("Failed to get file info", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, domain.NewLookupError("Failed to get file info", err)
		}
	}

	links := s.Links(fileID)
	return &domain.Object{
		ID:             fileID,
		Name:           meta.Name,
		MimeType:       meta.MimeType,
		Size:           info.Size(),
		WebViewLink:    links.ViewURL,
		WebContentLink: links.DownloadURL,
	}, nil
}

// Links returns file:// URLs pointing at the object.
func (s *LocalStore) Links(fileID string) domain.Links {
	u := (&url.URL{Scheme: "file", Path: filepath.ToSlash(s.objectPath(fileID))}).String()
	return domain.Links{ViewURL: u, DownloadURL: u, EmbedURL: u}
}

// Path returns where the object with fileID is stored.
func (s *LocalStore) Path(fileID string) string {
	return s.objectPath(fileID)
}

func (s *LocalStore) objectPath(fileID string) string {
	return filepath.Join(s.baseDir, fileID)
}

func (s *LocalStore) validID(fileID string) error {
	if _, err := uuid.Parse(fileID); err != nil {
		return fmt.Errorf("invalid object id %q", fileID)
	}
	return nil
}
