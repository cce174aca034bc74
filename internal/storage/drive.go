package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/gyanasetu/upload-relay/internal/domain"
)

// tracerName is the instrumentation name for the storage package.
const tracerName = "github.com/gyanasetu/upload-relay/internal/storage"

const driveDescribeFields = "id, name, mimeType, size, webViewLink, webContentLink, thumbnailLink"

// DriveScopes are the scopes a DriveStore needs. drive.file only reaches
// files the service account created itself.
var DriveScopes = []string{drive.DriveFileScope}

// DriveStore uploads objects to Google Drive.
type DriveStore struct {
	service  *drive.Service
	folderID string
}

// NewDriveStore creates a DriveStore that places uploads in folderID unless a
// request names its own parent. opts are passed through to the underlying
// Drive client, allowing credential injection.
func NewDriveStore(ctx context.Context, folderID string, opts ...option.ClientOption) (*DriveStore, error) {
	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to create Drive client: %w", err)
	}
	return &DriveStore{service: service, folderID: folderID}, nil
}

// Upload creates a Drive file from the spooled body at req.Path.
func (s *DriveStore) Upload(ctx context.Context, req *UploadRequest) (*domain.Object, error) {
	ctx, span := s.start(ctx, "drive.files.create", attribute.String("drive.file.name", req.Name))
	defer span.End()

	f, err := os.Open(req.Path)
	if err != nil {
		return nil, fail(span, domain.NewUploadError("Failed to upload file", err))
	}
	defer f.Close()

	meta := &drive.File{Name: req.Name, MimeType: req.MimeType}
	if parent := s.parent(req.ParentID); parent != "" {
		meta.Parents = []string{parent}
	}

	call := s.service.Files.Create(meta).
		SupportsAllDrives(true).
		Fields("id, name, mimeType, size")
	if req.MimeType != "" {
		call = call.Media(f, googleapi.ContentType(req.MimeType))
	} else {
		call = call.Media(f)
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fail(span, domain.NewUploadError("Failed to upload file", err))
	}
	if created.Id == "" {
		return nil, fail(span, domain.NewUploadError("Failed to upload file", errors.New("drive returned no file id")))
	}
	span.SetAttributes(attribute.String("drive.file.id", created.Id))

	return s.toObject(created), nil
}

// GrantPublicRead adds an "anyone with the link can read" permission.
func (s *DriveStore) GrantPublicRead(ctx context.Context, fileID string) error {
	ctx, span := s.start(ctx, "drive.permissions.create", attribute.String("drive.file.id", fileID))
	defer span.End()

	perm := &drive.Permission{Role: "reader", Type: "anyone"}
	_, err := s.service.Permissions.Create(fileID, perm).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return fail(span, domain.NewPermissionError("Failed to share file", err))
	}
	return nil
}

// Remove deletes the Drive file.
func (s *DriveStore) Remove(ctx context.Context, fileID string) error {
	ctx, span := s.start(ctx, "drive.files.delete", attribute.String("drive.file.id", fileID))
	defer span.End()

	err := s.service.Files.Delete(fileID).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		if isNotFound(err) {
			return fail(span, domain.NewNotFoundError("File not found", err))
		}
		return fail(span, domain.NewDeleteError("Failed to delete file", err))
	}
	return nil
}

// Describe fetches a Drive file's metadata and links.
func (s *DriveStore) Describe(ctx context.Context, fileID string) (*domain.Object, error) {
	ctx, span := s.start(ctx, "drive.files.get", attribute.String("drive.file.id", fileID))
	defer span.End()

	file, err := s.service.Files.Get(fileID).
		SupportsAllDrives(true).
		Fields(driveDescribeFields).
		Context(ctx).
		Do()
	if err != nil {
		if isNotFound(err) {
			return nil, fail(span, domain.NewNotFoundError("File not found", err))
		}
		return nil, fail(span, domain.NewLookupError("Failed to get file info", err))
	}
	return s.toObject(file), nil
}

// Links returns the Drive sharing URLs for fileID.
func (s *DriveStore) Links(fileID string) domain.Links {
	return DriveURLs(fileID)
}

// DriveURLs derives the view, download and embed URLs of a Drive file. It
// performs no I/O.
func DriveURLs(fileID string) domain.Links {
	escaped := url.PathEscape(fileID)
	return domain.Links{
		ViewURL:     "https://drive.google.com/file/d/" + escaped + "/view",
		DownloadURL: "https://drive.google.com/uc?export=download&id=" + url.QueryEscape(fileID),
		EmbedURL:    "https://drive.google.com/file/d/" + escaped + "/preview",
	}
}

func (s *DriveStore) parent(requested string) string {
	if requested != "" {
		return requested
	}
	return s.folderID
}

func (s *DriveStore) toObject(f *drive.File) *domain.Object {
	return &domain.Object{
		ID:             f.Id,
		Name:           f.Name,
		MimeType:       f.MimeType,
		Size:           f.Size,
		WebViewLink:    f.WebViewLink,
		WebContentLink: f.WebContentLink,
		ThumbnailLink:  f.ThumbnailLink,
	}
}

func (s *DriveStore) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("storage.backend", "drive"))
	return otel.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func fail(span trace.Span, err *domain.Error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Message)
	return err
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
