// Package relay coordinates an upload from the moment its bytes arrive to the
// moment a public link exists: the file is spooled to disk, pushed to the
// object store, shared, and the spool is always released. The package knows
// nothing about the hosting runtime; HTTP bindings live elsewhere.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/gyanasetu/upload-relay/internal/domain"
	"github.com/gyanasetu/upload-relay/internal/logging"
	"github.com/gyanasetu/upload-relay/internal/spool"
	"github.com/gyanasetu/upload-relay/internal/storage"
)

// DefaultFileField is the multipart field the file is read from.
const DefaultFileField = "file"

const (
	// formOverhead is the allowance for multipart boundaries, part headers
	// and small text fields when judging a declared Content-Length.
	formOverhead = 1 << 20

	compensationTimeout = 30 * time.Second

	octetStream = "application/octet-stream"
)

// Observer receives upload and operation outcomes, typically for metrics.
type Observer interface {
	RecordUpload(duration time.Duration, sizeBytes int64, kind string, err error)
	RecordOperation(operation string, duration time.Duration, kind string, err error)
}

// Form yields the parts of a multipart body. *multipart.Reader satisfies it.
type Form interface {
	NextPart() (*multipart.Part, error)
}

// UploadRequest is a host-neutral view of an upload call.
type UploadRequest struct {
	Method string

	// ContentLength is the declared body size, or -1 when unknown.
	ContentLength int64

	// Form is nil when the body is not multipart.
	Form Form

	// Body, when set, is closed if the upload's context ends while the form
	// is still being read, so a stalled client cannot hold the request open.
	Body io.Closer
}

// FilePart is an upload that does not arrive as multipart form data.
type FilePart struct {
	Name     string
	MimeType string
	Content  io.Reader
}

type Options struct {
	// ParentID is the folder uploads are created in.
	ParentID string

	// MaxBytes limits the size of an uploaded file. Zero means no limit.
	MaxBytes int64

	// Timeout bounds a whole upload. Zero means no timeout.
	Timeout time.Duration

	// FileField overrides DefaultFileField.
	FileField string

	Observer Observer
	Logger   *slog.Logger
}

// Relay runs uploads, deletes and lookups against a Store. It holds no
// per-request state and is safe for concurrent use.
type Relay struct {
	store     storage.Store
	spool     *spool.Spool
	parentID  string
	maxBytes  int64
	timeout   time.Duration
	fileField string
	observer  Observer
	logger    *slog.Logger
}

// New creates a Relay.
func New(store storage.Store, sp *spool.Spool, opts Options) *Relay {
	r := &Relay{
		store:     store,
		spool:     sp,
		parentID:  opts.ParentID,
		maxBytes:  opts.MaxBytes,
		timeout:   opts.Timeout,
		fileField: opts.FileField,
		observer:  opts.Observer,
		logger:    opts.Logger,
	}
	if r.fileField == "" {
		r.fileField = DefaultFileField
	}
	if r.observer == nil {
		r.observer = noopObserver{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// BodyLimit is the largest request body a host should accept for one
// upload, or zero when uploads are unbounded.
func (r *Relay) BodyLimit() int64 {
	if r.maxBytes <= 0 {
		return 0
	}
	return r.maxBytes + formOverhead
}

// HandleUpload validates an upload request, spools its single file part and
// relays it to the store.
func (r *Relay) HandleUpload(ctx context.Context, req *UploadRequest) (*domain.UploadResult, error) {
	if req.Method != http.MethodPost {
		return nil, domain.NewMethodNotAllowedError("Method not allowed",
			fmt.Errorf("%s is not supported, use POST", req.Method))
	}
	if limit := r.BodyLimit(); limit > 0 && req.ContentLength > limit {
		return nil, r.tooLarge()
	}
	if req.Form == nil {
		return nil, errNoFile()
	}

	return r.run(ctx, func(ctx context.Context) (*spool.File, string, error) {
		defer closeOnDone(ctx, req.Body)()
		return r.spoolForm(ctx, req.Form)
	})
}

// UploadFile relays content that is already available as a stream.
func (r *Relay) UploadFile(ctx context.Context, part FilePart) (*domain.UploadResult, error) {
	if part.Content == nil || strings.TrimSpace(part.Name) == "" {
		return nil, errNoFile()
	}

	return r.run(ctx, func(ctx context.Context) (*spool.File, string, error) {
		closer, _ := part.Content.(io.Closer)
		defer closeOnDone(ctx, closer)()
		f, err := r.stage(ctx, part.Name, part.Content)
		return f, part.MimeType, err
	})
}

// Delete removes a remote object. Deleting an object that no longer exists
// succeeds.
func (r *Relay) Delete(ctx context.Context, fileID string) error {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return domain.NewValidationError("File ID is required")
	}
	ctx = logging.AppendCtx(ctx, slog.String("file_id", fileID))

	start := time.Now()
	err := r.store.Remove(ctx, fileID)
	if domain.IsKind(err, domain.KindNotFound) {
		r.logger.InfoContext(ctx, "file already absent, treating delete as done")
		err = nil
	}
	r.observer.RecordOperation("delete", time.Since(start), kindLabel(err), err)
	if err != nil {
		r.logger.ErrorContext(ctx, "delete failed", logging.ErrKey, err, "kind", domain.KindOf(err))
		return err
	}
	r.logger.InfoContext(ctx, "file deleted")
	return nil
}

// Info describes a remote object.
func (r *Relay) Info(ctx context.Context, fileID string) (*domain.Object, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return nil, domain.NewValidationError("File ID is required")
	}
	ctx = logging.AppendCtx(ctx, slog.String("file_id", fileID))

	start := time.Now()
	obj, err := r.store.Describe(ctx, fileID)
	r.observer.RecordOperation("info", time.Since(start), kindLabel(err), err)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			r.logger.InfoContext(ctx, "file not found")
		} else {
			r.logger.ErrorContext(ctx, "lookup failed", logging.ErrKey, err, "kind", domain.KindOf(err))
		}
		return nil, err
	}
	return obj, nil
}

// Timeout returns the per-upload deadline, or zero when there is none.
func (r *Relay) Timeout() time.Duration {
	return r.timeout
}

type spoolFunc func(ctx context.Context) (*spool.File, string, error)

// run drives one upload through spool → upload → share. The spool file is
// released on every path out of run. A panic in a store is recovered and
// reported as an internal error.
func (r *Relay) run(ctx context.Context, spoolFn spoolFunc) (res *domain.UploadResult, err error) {
	start := time.Now()
	ctx = logging.AppendCtx(ctx, slog.String("upload_id", uuid.NewString()))
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	t := newTracker(ctx, r.logger)
	var (
		staged   *spool.File
		size     int64
		remoteID string
	)

	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = domain.NewInternalError("Failed to upload file", fmt.Errorf("panic: %v", p))
			r.logger.ErrorContext(ctx, "recovered from panic during upload",
				"panic", fmt.Sprint(p),
				"stack", string(debug.Stack()),
			)
		}
		if err != nil {
			err = classify(ctx, err)
			t.fail(func() { r.release(ctx, staged) })
			r.logFailure(ctx, err, remoteID)
		} else {
			r.release(ctx, staged)
		}
		r.observer.RecordUpload(time.Since(start), size, kindLabel(err), err)
	}()
	staged, declared, err := spoolFn(ctx)
	if err != nil {
		return nil, err
	}
	t.to(StateSpooled)

	path, size, err := staged.Finalize()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.to(StateUploading)
	obj, err := r.store.Upload(ctx, &storage.UploadRequest{
		Path:     path,
		Name:     staged.Name(),
		MimeType: resolveMimeType(path, declared),
		ParentID: r.parentID,
	})
	if err != nil {
		return nil, err
	}
	remoteID = obj.ID

	t.to(StatePermissionGranting)
	if err := r.store.GrantPublicRead(ctx, obj.ID); err != nil {
		r.compensate(ctx, obj.ID)
		return nil, err
	}
	t.to(StateDone)

	r.logger.InfoContext(ctx, "upload relayed",
		"file_id", obj.ID,
		"file_name", staged.Name(),
		"size", size,
		"duration", time.Since(start).String(),
	)

	return &domain.UploadResult{
		FileID:   obj.ID,
		FileName: staged.Name(),
		Size:     size,
		Links:    r.store.Links(obj.ID),
	}, nil
}

// spoolForm walks the form, spooling the one file part and skipping every
// other field.
func (r *Relay) spoolForm(ctx context.Context, form Form) (*spool.File, string, error) {
	var (
		staged   *spool.File
		declared string
	)
	for {
		part, err := form.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return staged, declared, r.formError(ctx, err)
		}
		if part.FormName() != r.fileField || part.FileName() == "" {
			_ = part.Close()
			continue
		}
		if staged != nil {
			_ = part.Close()
			return staged, declared, domain.NewValidationError("Only one file may be uploaded per request")
		}

		staged, err = r.stage(ctx, part.FileName(), part)
		_ = part.Close()
		if err != nil {
			return staged, declared, err
		}
		declared = part.Header.Get("Content-Type")
	}
	if staged == nil {
		return nil, "", errNoFile()
	}
	return staged, declared, nil
}

// stage copies src into a new spool file. The file is returned even on error
// so the caller can release it.
func (r *Relay) stage(ctx context.Context, name string, src io.Reader) (*spool.File, error) {
	f, err := r.spool.Open(name)
	if err != nil {
		return nil, err
	}

	var reader io.Reader = &ctxReader{ctx: ctx, r: src}
	if r.maxBytes > 0 {
		reader = io.LimitReader(reader, r.maxBytes+1)
	}

	n, err := io.Copy(f, reader)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return f, ctxErr
		}
		if domain.IsKind(err, domain.KindSpoolWrite) {
			return f, err
		}
		return f, r.formError(ctx, err)
	}
	if r.maxBytes > 0 && n > r.maxBytes {
		return f, r.tooLarge()
	}
	return f, nil
}

func (r *Relay) formError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return domain.NewTimeoutError("Upload timed out", err)
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return r.tooLarge()
	}
	return domain.NewValidationError("Malformed upload body", err)
}

func (r *Relay) tooLarge() error {
	return domain.NewTooLargeError("File too large",
		fmt.Errorf("uploads are limited to %d bytes", r.maxBytes))
}

// compensate removes an object that was uploaded but could not be shared. It
// runs even if the request context is already cancelled.
func (r *Relay) compensate(ctx context.Context, fileID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	start := time.Now()
	err := r.store.Remove(ctx, fileID)
	r.observer.RecordOperation("compensating_delete", time.Since(start), kindLabel(err), err)
	if err != nil {
		r.logger.ErrorContext(ctx, "compensating delete failed, remote object is orphaned",
			logging.ErrKey, err,
			"file_id", fileID,
			logging.PriorityCritical(),
		)
		return
	}
	r.logger.WarnContext(ctx, "removed unshared object after permission failure", "file_id", fileID)
}

func (r *Relay) release(ctx context.Context, f *spool.File) {
	if f == nil {
		return
	}
	if err := f.Release(); err != nil {
		r.logger.ErrorContext(ctx, "failed to release spool file",
			logging.ErrKey, err,
			"path", f.Path(),
			logging.PriorityCritical(),
		)
	}
}

func (r *Relay) logFailure(ctx context.Context, err error, remoteID string) {
	kind := domain.KindOf(err)
	attrs := []any{logging.ErrKey, err, "kind", kind}
	if remoteID != "" {
		attrs = append(attrs, "file_id", remoteID)
	}
	switch kind {
	case domain.KindValidation, domain.KindTooLarge, domain.KindMethodNotAllowed:
		r.logger.InfoContext(ctx, "upload rejected", attrs...)
	case domain.KindAuthConfig:
		attrs = append(attrs, logging.PriorityCritical())
		r.logger.ErrorContext(ctx, "upload failed: storage credentials misconfigured", attrs...)
	default:
		r.logger.ErrorContext(ctx, "upload failed", attrs...)
	}
}

// classify turns context failures into relay errors.
func classify(ctx context.Context, err error) error {
	var relayErr *domain.Error
	if errors.As(err, &relayErr) && relayErr.Kind != domain.KindUpload && relayErr.Kind != domain.KindPermission {
		return err
	}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return domain.NewTimeoutError("Upload timed out", err)
	case errors.Is(ctx.Err(), context.Canceled):
		return domain.NewValidationError("Upload cancelled", err)
	case relayErr != nil:
		return err
	default:
		return domain.NewInternalError("Failed to upload file", err)
	}
}

// resolveMimeType prefers the type the client declared, sniffing the spooled
// bytes when the declaration is missing or generic.
func resolveMimeType(path, declared string) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != octetStream {
		return mt
	}
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return octetStream
	}
	return detected.String()
}

func errNoFile() error {
	return domain.NewValidationError("No file provided")
}

func kindLabel(err error) string {
	if err == nil {
		return ""
	}
	return domain.KindOf(err).String()
}

// closeOnDone closes c once ctx ends, unblocking any read stuck on it. The
// returned func disarms the close.
func closeOnDone(ctx context.Context, c io.Closer) (stop func()) {
	if c == nil {
		return func() {}
	}
	disarm := context.AfterFunc(ctx, func() { _ = c.Close() })
	return func() { disarm() }
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

type noopObserver struct{}

func (noopObserver) RecordUpload(time.Duration, int64, string, error)    {}
func (noopObserver) RecordOperation(string, time.Duration, string, error) {}
