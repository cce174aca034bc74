package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/gyanasetu/upload-relay/internal/domain"
)

const originalNameKey = "original-name"

// GCSScopes are the scopes a GCSStore needs; changing object ACLs requires
// full control.
var GCSScopes = []string{storage.ScopeFullControl}

// GCSStore uploads objects to a Google Cloud Storage bucket. Object names are
// generated ids; the original filename is kept in the object metadata.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a GCSStore for the given bucket. opts are passed
// through to the underlying GCS client, allowing credential injection.
func NewGCSStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("storage: GCS bucket is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Upload writes the spooled body at req.Path to a new object.
func (s *GCSStore) Upload(ctx context.Context, req *UploadRequest) (*domain.Object, error) {
	f, err := os.Open(req.Path)
	if err != nil {
		return nil, domain.NewUploadError("Failed to upload file", err)
	}
	defer f.Close()

	id := uuid.NewString()
	w := s.object(id).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = req.MimeType
	w.ContentDisposition = mime.FormatMediaType("inline", map[string]string{"filename": req.Name})
	w.Metadata = map[string]string{originalNameKey: req.Name}

	written, err := io.Copy(w, f)
	if err != nil {
		_ = w.Close()
		return nil, domain.NewUploadError("Failed to upload file", fmt.Errorf("write %q: %w", id, err))
	}
	if err := w.Close(); err != nil {
		return nil, domain.NewUploadError("Failed to upload file", fmt.Errorf("close %q: %w", id, err))
	}

	return &domain.Object{
		ID:       id,
		Name:     req.Name,
		MimeType: req.MimeType,
		Size:     written,
	}, nil
}

// GrantPublicRead grants allUsers read access to the object.
func (s *GCSStore) GrantPublicRead(ctx context.Context, fileID string) error {
	if err := s.object(fileID).ACL().Set(ctx, storage.AllUsers, storage.RoleReader); err != nil {
		return domain.NewPermissionError("Failed to share file", err)
	}
	return nil
}

// Remove deletes the object.
func (s *GCSStore) Remove(ctx context.Context, fileID string) error {
	if err := s.object(fileID).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return domain.NewNotFoundError("File not found", err)
		}
		return domain.NewDeleteError("Failed to delete file", err)
	}
	return nil
}

// Describe reads the object's attributes.
func (s *GCSStore) Describe(ctx context.Context, fileID string) (*domain.Object, error) {
	attrs, err := s.object(fileID).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, domain.NewNotFoundError("File not found", err)
		}
		return nil, domain.NewLookupError("Failed to get file info", err)
	}

	name := attrs.Metadata[originalNameKey]
	if name == "" {
		name = attrs.Name
	}
	links := s.Links(fileID)
	return &domain.Object{
		ID:             fileID,
		Name:           name,
		MimeType:       attrs.ContentType,
		Size:           attrs.Size,
		WebViewLink:    links.ViewURL,
		WebContentLink: links.DownloadURL,
	}, nil
}

// Links returns the public object URLs. Public objects are served directly,
// so all three links point at the same resource.
func (s *GCSStore) Links(fileID string) domain.Links {
	u := (&url.URL{
		Scheme: "https",
		Host:   "storage.googleapis.com",
		Path:   "/" + s.bucket + "/" + fileID,
	}).String()
	return domain.Links{ViewURL: u, DownloadURL: u, EmbedURL: u}
}

func (s *GCSStore) object(name string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(name)
}
