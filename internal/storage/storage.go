// Package storage provides the object store adapters the relay forwards
// uploads to. Google Drive is the production backend; Cloud Storage and the
// local filesystem satisfy the same interface for alternative deployments and
// development.
package storage

import (
	"context"

	"github.com/gyanasetu/upload-relay/internal/domain"
)

// Store persists staged uploads in a remote object store and manages their
// visibility. Implementations never retry a failed call: a retried upload can
// leave a duplicate object behind.
type Store interface {
	// Upload streams the file at req.Path into the store and returns the
	// created object. Any non-success response is a total failure.
	Upload(ctx context.Context, req *UploadRequest) (*domain.Object, error)

	// GrantPublicRead lets anyone holding a link read the object.
	GrantPublicRead(ctx context.Context, fileID string) error

	// Remove deletes the object. A missing object yields a KindNotFound error.
	Remove(ctx context.Context, fileID string) error

	// Describe fetches the object's metadata. A missing object yields a
	// KindNotFound error.
	Describe(ctx context.Context, fileID string) (*domain.Object, error)

	// Links derives the shareable URLs for fileID without any I/O.
	Links(fileID string) domain.Links
}

type UploadRequest struct {
	// Path is the finalized spool file holding the object body.
	Path string

	// Name is the object name shown to users, usually the original filename.
	Name string

	// MimeType is the content type stored with the object.
	MimeType string

	// ParentID is the folder the object is created in. Backends without
	// folders ignore it.
	ParentID string
}
