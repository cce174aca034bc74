package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/gyanasetu/upload-relay/internal/domain"
	"github.com/gyanasetu/upload-relay/internal/spool"
	"github.com/gyanasetu/upload-relay/internal/storage"
)

type formFile struct {
	field, name, contentType, content string
}

func buildForm(t *testing.T, fields map[string]string, files ...formFile) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.name))
		if f.contentType != "" {
			h.Set("Content-Type", f.contentType)
		}
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.Boundary()
}

func uploadRequest(t *testing.T, fields map[string]string, files ...formFile) *UploadRequest {
	t.Helper()
	buf, boundary := buildForm(t, fields, files...)
	return &UploadRequest{
		Method:        http.MethodPost,
		ContentLength: int64(buf.Len()),
		Form:          multipart.NewReader(buf, boundary),
	}
}

func newTestRelay(t *testing.T, store storage.Store, opts Options) (*Relay, *spool.Spool) {
	t.Helper()
	sp, err := spool.New(t.TempDir())
	require.NoError(t, err)
	if opts.MaxBytes == 0 {
		opts.MaxBytes = 1 << 20
	}
	return New(store, sp, opts), sp
}

func assertSpoolEmpty(t *testing.T, sp *spool.Spool) {
	t.Helper()
	entries, err := os.ReadDir(sp.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "spool directory should be empty")
}

func TestHandleUpload_Success(t *testing.T) {
	store := new(storage.MockStore)
	r, sp := newTestRelay(t, store, Options{ParentID: "folder-1"})

	store.On("Upload", mock.Anything, mock.MatchedBy(func(req *storage.UploadRequest) bool {
		data, err := os.ReadFile(req.Path)
		return err == nil &&
			string(data) == "hello world" &&
			req.Name == "notes.txt" &&
			req.ParentID == "folder-1" &&
			req.MimeType == "text/plain"
	})).Return(&domain.Object{ID: "abc123", Name: "notes.txt"}, nil).Once()
	store.On("GrantPublicRead", mock.Anything, "abc123").Return(nil).Once()

	res, err := r.HandleUpload(context.Background(), uploadRequest(t,
		map[string]string{"title": "ignored"},
		formFile{field: "file", name: "notes.txt", contentType: "text/plain", content: "hello world"},
	))
	require.NoError(t, err)

	assert.Equal(t, "abc123", res.FileID)
	assert.Equal(t, "notes.txt", res.FileName)
	assert.Equal(t, int64(11), res.Size)
	assert.Equal(t, "https://drive.google.com/file/d/abc123/view", res.ViewURL)
	assert.Equal(t, "https://drive.google.com/uc?export=download&id=abc123", res.DownloadURL)
	assert.Equal(t, "https://drive.google.com/file/d/abc123/preview", res.EmbedURL)

	store.AssertExpectations(t)
	assertSpoolEmpty(t, sp)
}

func TestHandleUpload_UploadsBeforeGrantingPermission(t *testing.T) {
	store := new(storage.MockStore)
	r, _ := newTestRelay(t, store, Options{})

	store.On("Upload", mock.Anything, mock.Anything).Return(&domain.Object{ID: "abc123"}, nil).Once()
	store.On("GrantPublicRead", mock.Anything, "abc123").Return(nil).Once()

	_, err := r.HandleUpload(context.Background(), uploadRequest(t, nil,
		formFile{field: "file", name: "a.bin", content: "data"},
	))
	require.NoError(t, err)

	require.Len(t, store.Calls, 2)
	assert.Equal(t, "Upload", store.Calls[0].Method)
	assert.Equal(t, "GrantPublicRead", store.Calls[1].Method)
}

func TestHandleUpload_PermissionFailureRemovesObject(t *testing.T) {
	store := new(storage.MockStore)
	r, sp := newTestRelay(t, store, Options{})

	store.On("Upload", mock.Anything, mock.Anything).Return(&domain.Object{ID: "abc123"}, nil).Once()
	store.On("GrantPublicRead", mock.Anything, "abc123").
		Return(domain.NewPermissionError("Failed to share file", errors.New("forbidden"))).Once()
	store.On("Remove", mock.Anything, "abc123").Return(nil).Once()

	res, err := r.HandleUpload(context.Background(), uploadRequest(t, nil,
		formFile{field: "file", name: "a.txt", content: "data"},
	))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, domain.IsKind(err, domain.KindPermission))

	var relayErr *domain.Error
	require.ErrorAs(t, err, &relayErr)
	assert.Equal(t, "Failed to share file", relayErr.Message)
	assert.Equal(t, "forbidden", relayErr.Details())

	store.AssertExpectations(t)
	assertSpoolEmpty(t, sp)
}

func TestHandleUpload_CompensationFailureIsLoggedAsCritical(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	store := new(storage.MockStore)
	r, sp := newTestRelay(t, store, Options{Logger: logger})

	store.On("Upload", mock.Anything, mock.Anything).Return(&domain.Object{ID: "abc123"}, nil).Once()
	store.On("GrantPublicRead", mock.Anything, "abc123").
		Return(domain.NewPermissionError("Failed to share file", errors.New("forbidden"))).Once()
	store.On("Remove", mock.Anything, "abc123").
		Return(domain.NewDeleteError("Failed to delete file", errors.New("backend down"))).Once()

	_, err := r.HandleUpload(context.Background(), uploadRequest(t, nil,
		formFile{field: "file", name: "a.txt", content: "data"},
	))
	assert.True(t, domain.IsKind(err, domain.KindPermission))
	assert.Contains(t, logs.String(), "compensating delete failed")
	assert.Contains(t, logs.String(), `"priority":"critical"`)
	assertSpoolEmpty(t, sp)
}

func TestHandleUpload_RejectsWrongMethod(t *testing.T) {
	store := new(storage.MockStore)
	r, _ := newTestRelay(t, store, Options{})

	_, err := r.HandleUpload(context.Background(), &UploadRequest{Method: http.MethodGet})
	require.Error(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, domain.KindOf(err).HTTPStatus())
	store.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
}

func TestHandleUpload_Validation(t *testing.T) {
	tests := map[string]struct {
		req     func(t *testing.T) *UploadRequest
		message string
	}{
		"not multipart": {
			req: func(*testing.T) *UploadRequest {
				return &UploadRequest{Method: http.MethodPost, ContentLength: 10}
			},
			message: "No file provided",
		},
		"no file part": {
			req: func(t *testing.T) *UploadRequest {
				return uploadRequest(t, map[string]string{"title": "x"})
			},
			message: "No file provided",
		},
		"file under another field": {
			req: func(t *testing.T) *UploadRequest {
				return uploadRequest(t, nil, formFile{field: "attachment", name: "a.txt", content: "x"})
			},
			message: "No file provided",
		},
		"two files": {
			req: func(t *testing.T) *UploadRequest {
				return uploadRequest(t, nil,
					formFile{field: "file", name: "a.txt", content: "one"},
					formFile{field: "file", name: "b.txt", content: "two"},
				)
			},
			message: "Only one file may be uploaded per request",
		},
		"truncated body": {
			req: func(*testing.T) *UploadRequest {
				body := "--xyz\r\nContent-Disposition: form-data; name=\"file\"; filename=\"a.txt\"\r\n\r\npartial"
				return &UploadRequest{
					Method:        http.MethodPost,
					ContentLength: int64(len(body)),
					Form:          multipart.NewReader(strings.NewReader(body), "xyz"),
				}
			},
			message: "Malformed upload body",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			store := new(storage.MockStore)
			r, sp := newTestRelay(t, store, Options{})

			_, err := r.HandleUpload(context.Background(), tt.req(t))
			require.Error(t, err)

			var relayErr *domain.Error
			require.ErrorAs(t, err, &relayErr)
			assert.Equal(t, domain.KindValidation, relayErr.Kind)
			assert.Equal(t, tt.message, relayErr.Message)

			store.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
			assertSpoolEmpty(t, sp)
		})
	}
}

func TestHandleUpload_TooLarge(t *testing.T) {
	t.Run("file exceeds limit", func(t *testing.T) {
		store := new(storage.MockStore)
		r, sp := newTestRelay(t, store, Options{MaxBytes: 8})

		_, err := r.HandleUpload(context.Background(), uploadRequest(t, nil,
			formFile{field: "file", name: "big.bin", content: strings.Repeat("x", 9)},
		))
		require.Error(t, err)
		assert.Equal(t, http.StatusRequestEntityTooLarge, domain.KindOf(err).HTTPStatus())
		store.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
		assertSpoolEmpty(t, sp)
	})

	t.Run("file at limit", func(t *testing.T) {
		store := new(storage.MockStore)
		r, _ := newTestRelay(t, store, Options{MaxBytes: 8})
		store.On("Upload", mock.Anything, mock.Anything).Return(&domain.Object{ID: "id"}, nil).Once()
		store.On("GrantPublicRead", mock.Anything, "id").Return(nil).Once()

		res, err := r.HandleUpload(context.Background(), uploadRequest(t, nil,
			formFile{field: "file", name: "ok.bin", content: strings.Repeat("x", 8)},
		))
		require.NoError(t, err)
		assert.Equal(t, int64(8), res.Size)
	})

	t.Run("declared length exceeds limit", func(t *testing.T) {
		store := new(storage.MockStore)
		r, _ := newTestRelay(t, store, Options{MaxBytes: 8})

		_, err := r.HandleUpload(context.Background(), &UploadRequest{
			Method:        http.MethodPost,
			ContentLength: 8 + formOverhead + 1,
			Form:          multipart.NewReader(strings.NewReader(""), "xyz"),
		})
		assert.True(t, domain.IsKind(err, domain.KindTooLarge))
	})

	t.Run("body limit tripped by host", func(t *testing.T) {
		store := new(storage.MockStore)
		r, sp := newTestRelay(t, store, Options{MaxBytes: 1 << 20})

		buf, boundary := buildForm(t, nil, formFile{field: "file", name: "a.bin", content: strings.Repeat("x", 4096)})
		body := http.MaxBytesReader(nil, io.NopCloser(buf), 512)

		_, err := r.HandleUpload(context.Background(), &UploadRequest{
			Method:        http.MethodPost,
			ContentLength: -1,
			Form:          multipart.NewReader(body, boundary),
		})
		assert.True(t, domain.IsKind(err, domain.KindTooLarge))
		assertSpoolEmpty(t, sp)
	})
}

func TestHandleUpload_UploadFailure(t *testing.T) {
	store := new(storage.MockStore)
	r, sp := newTestRelay(t, store, Options{})

	store.On("Upload", mock.Anything, mock.Anything).
		Return(nil, domain.NewUploadError("Failed to upload file", errors.New("quota exceeded"))).Once()

	_, err := r.HandleUpload(context.Background(), uploadRequest(t, nil,
		formFile{field: "file", name: "a.txt", content: "data"},
	))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindUpload))
	store.AssertNotCalled(t, "GrantPublicRead", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything)
	assertSpoolEmpty(t, sp)
}

func TestHandleUpload_Timeout(t *testing.T) {
	store := new(storage.MockStore)
	r, sp := newTestRelay(t, store, Options{Timeout: 50 * time.Millisecond})

	store.On("Upload", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, domain.NewUploadError("Failed to upload file", context.DeadlineExceeded)).Once()

	_, err := r.HandleUpload(context.Background(), uploadRequest(t, nil,
		formFile{field: "file", name: "slow.txt", content: "data"},
	))
	require.Error(t, err)
	assert.Equal(t, http.StatusRequestTimeout, domain.KindOf(err).HTTPStatus())
	assertSpoolEmpty(t, sp)
}

func TestHandleUpload_SniffsGenericMimeType(t *testing.T) {
	store := new(storage.MockStore)
	r, _ := newTestRelay(t, store, Options{})

	store.On("Upload", mock.Anything, mock.MatchedBy(func(req *storage.UploadRequest) bool {
		return req.MimeType == "application/pdf"
	})).Return(&domain.Object{ID: "pdf1"}, nil).Once()
	store.On("GrantPublicRead", mock.Anything, "pdf1").Return(nil).Once()

	_, err := r.HandleUpload(context.Background(), uploadRequest(t, nil,
		formFile{field: "file", name: "doc", contentType: "application/octet-stream", content: "%PDF-1.4\n%âãÏÓ\n1 0 obj\n"},
	))
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestHandleUpload_RecordsStateTransitions(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tests := map[string]struct {
		grantErr error
		want     []State
	}{
		"success": {
			want: []State{StateSpooled, StateUploading, StatePermissionGranting, StateDone},
		},
		"permission failure": {
			grantErr: domain.NewPermissionError("Failed to share file"),
			want:     []State{StateSpooled, StateUploading, StatePermissionGranting, StateCleaningUp, StateFailed},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			logs.Reset()
			store := new(storage.MockStore)
			r, _ := newTestRelay(t, store, Options{Logger: logger})

			store.On("Upload", mock.Anything, mock.Anything).Return(&domain.Object{ID: "x"}, nil)
			store.On("GrantPublicRead", mock.Anything, "x").Return(tt.grantErr)
			store.On("Remove", mock.Anything, "x").Return(nil)

			_, _ = r.HandleUpload(context.Background(), uploadRequest(t, nil,
				formFile{field: "file", name: "a.txt", content: "data"},
			))
			assert.Equal(t, tt.want, transitionsFrom(t, &logs))
		})
	}
}

func TestHandleUpload_ConcurrentUploadsAreIsolated(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	r, sp := newTestRelay(t, store, Options{})

	const n = 16
	results := make([]string, n)
	requests := make([]*UploadRequest, n)
	for i := range n {
		requests[i] = uploadRequest(t, nil, formFile{
			field:   "file",
			name:    "notes.pdf",
			content: fmt.Sprintf("payload %d %s", i, strings.Repeat("z", i*100)),
		})
	}

	g, ctx := errgroup.WithContext(context.Background())
	for i := range n {
		g.Go(func() error {
			res, err := r.HandleUpload(ctx, requests[i])
			if err != nil {
				return err
			}
			results[i] = res.FileID
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for i, id := range results {
		data, err := os.ReadFile(store.Path(id))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("payload %d %s", i, strings.Repeat("z", i*100)), string(data))

		obj, err := store.Describe(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "notes.pdf", obj.Name)
	}
	assertSpoolEmpty(t, sp)
}

func TestUploadFile(t *testing.T) {
	store := new(storage.MockStore)
	r, sp := newTestRelay(t, store, Options{})

	store.On("Upload", mock.Anything, mock.MatchedBy(func(req *storage.UploadRequest) bool {
		return req.Name == "direct.csv" && req.MimeType == "text/csv"
	})).Return(&domain.Object{ID: "csv1"}, nil).Once()
	store.On("GrantPublicRead", mock.Anything, "csv1").Return(nil).Once()

	res, err := r.UploadFile(context.Background(), FilePart{
		Name:     "direct.csv",
		MimeType: "text/csv",
		Content:  strings.NewReader("a,b\n1,2\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, "csv1", res.FileID)
	assertSpoolEmpty(t, sp)

	_, err = r.UploadFile(context.Background(), FilePart{Name: "x"})
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}

func TestDelete(t *testing.T) {
	tests := map[string]struct {
		fileID   string
		storeErr error
		wantKind domain.ErrorKind
		wantErr  bool
		noCall   bool
	}{
		"deleted": {
			fileID: "abc123",
		},
		"already gone": {
			fileID:   "abc123",
			storeErr: domain.NewNotFoundError("File not found"),
		},
		"backend failure": {
			fileID:   "abc123",
			storeErr: domain.NewDeleteError("Failed to delete file", errors.New("boom")),
			wantErr:  true,
			wantKind: domain.KindDelete,
		},
		"missing id": {
			fileID:   "  ",
			wantErr:  true,
			wantKind: domain.KindValidation,
			noCall:   true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			store := new(storage.MockStore)
			r, _ := newTestRelay(t, store, Options{})
			if !tt.noCall {
				store.On("Remove", mock.Anything, tt.fileID).Return(tt.storeErr).Once()
			}

			err := r.Delete(context.Background(), tt.fileID)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, domain.KindOf(err))
			} else {
				require.NoError(t, err)
			}
			store.AssertExpectations(t)
		})
	}
}

func TestInfo(t *testing.T) {
	store := new(storage.MockStore)
	r, _ := newTestRelay(t, store, Options{})

	want := &domain.Object{ID: "abc123", Name: "a.pdf", MimeType: "application/pdf", Size: 42}
	store.On("Describe", mock.Anything, "abc123").Return(want, nil).Once()
	store.On("Describe", mock.Anything, "missing").Return(nil, domain.NewNotFoundError("File not found")).Once()

	got, err := r.Info(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = r.Info(context.Background(), "missing")
	assert.Equal(t, http.StatusNotFound, domain.KindOf(err).HTTPStatus())

	_, err = r.Info(context.Background(), "")
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}

type recordingObserver struct {
	uploads []string
	ops     []string
}

func (o *recordingObserver) RecordUpload(_ time.Duration, _ int64, kind string, _ error) {
	o.uploads = append(o.uploads, kind)
}

func (o *recordingObserver) RecordOperation(op string, _ time.Duration, kind string, _ error) {
	o.ops = append(o.ops, op+":"+kind)
}

func TestObserverReceivesOutcomes(t *testing.T) {
	obs := &recordingObserver{}
	store := new(storage.MockStore)
	r, _ := newTestRelay(t, store, Options{Observer: obs, MaxBytes: 4})

	store.On("Remove", mock.Anything, "gone").Return(domain.NewNotFoundError("File not found")).Once()

	_, _ = r.HandleUpload(context.Background(), uploadRequest(t, nil,
		formFile{field: "file", name: "a.txt", content: "too long"},
	))
	require.NoError(t, r.Delete(context.Background(), "gone"))

	assert.Equal(t, []string{"too_large"}, obs.uploads)
	assert.Equal(t, []string{"delete:"}, obs.ops)
}

func transitionsFrom(t *testing.T, logs *bytes.Buffer) []State {
	t.Helper()
	var states []State
	dec := json.NewDecoder(logs)
	for dec.More() {
		var entry struct {
			Msg string `json:"msg"`
			To  State  `json:"to"`
		}
		require.NoError(t, dec.Decode(&entry))
		if entry.Msg == "upload state changed" {
			states = append(states, entry.To)
		}
	}
	return states
}

// stalledForm starts a multipart body that sends a partial file part and then
// stops sending without closing.
func stalledForm(t *testing.T) *UploadRequest {
	t.Helper()

	pr, pw := io.Pipe()
	w := multipart.NewWriter(pw)
	go func() {
		part, err := w.CreateFormFile("file", "lecture.mp4")
		if err != nil {
			return
		}
		// The part is never finished and the pipe is left open.
		_, _ = part.Write(bytes.Repeat([]byte("a"), 8192))
	}()
	t.Cleanup(func() { _ = pw.Close() })

	return &UploadRequest{
		Method:        http.MethodPost,
		ContentLength: -1,
		Form:          multipart.NewReader(pr, w.Boundary()),
		Body:          pr,
	}
}

func TestHandleUpload_StalledClientTimesOut(t *testing.T) {
	store := new(storage.MockStore)
	r, sp := newTestRelay(t, store, Options{Timeout: 100 * time.Millisecond})
	req := stalledForm(t)

	done := make(chan error, 1)
	go func() {
		_, err := r.HandleUpload(context.Background(), req)
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, domain.KindTimeout, domain.KindOf(err))
	case <-time.After(5 * time.Second):
		t.Fatal("upload did not end after its timeout")
	}
	store.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
	assertSpoolEmpty(t, sp)
}

func TestHandleUpload_ClientCancelReleasesSpool(t *testing.T) {
	store := new(storage.MockStore)
	r, sp := newTestRelay(t, store, Options{Timeout: time.Minute})
	req := stalledForm(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.HandleUpload(ctx, req)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		var relayErr *domain.Error
		require.ErrorAs(t, err, &relayErr)
		assert.Equal(t, domain.KindValidation, relayErr.Kind)
		assert.Equal(t, "Upload cancelled", relayErr.Message)
	case <-time.After(5 * time.Second):
		t.Fatal("upload did not end after cancellation")
	}
	assertSpoolEmpty(t, sp)
}

func TestHandleUpload_RecoversFromStorePanic(t *testing.T) {
	store := new(storage.MockStore)
	r, sp := newTestRelay(t, store, Options{})

	store.On("Upload", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("driver bug") }).
		Return(nil, nil).Once()

	var (
		res *domain.UploadResult
		err error
	)
	require.NotPanics(t, func() {
		res, err = r.HandleUpload(context.Background(), uploadRequest(t, nil,
			formFile{field: "file", name: "a.txt", content: "data"},
		))
	})
	assert.Nil(t, res)

	var relayErr *domain.Error
	require.ErrorAs(t, err, &relayErr)
	assert.Equal(t, domain.KindInternal, relayErr.Kind)
	assert.Equal(t, "Failed to upload file", relayErr.Message)
	assert.Equal(t, "panic: driver bug", relayErr.Details())
	store.AssertNotCalled(t, "GrantPublicRead", mock.Anything, mock.Anything)
	assertSpoolEmpty(t, sp)
}

func TestUploadFile_StalledReaderTimesOut(t *testing.T) {
	store := new(storage.MockStore)
	r, sp := newTestRelay(t, store, Options{Timeout: 100 * time.Millisecond})

	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })
	go func() { _, _ = pw.Write([]byte("partial")) }()

	_, err := r.UploadFile(context.Background(), FilePart{Name: "slow.txt", Content: pr})
	assert.Equal(t, domain.KindTimeout, domain.KindOf(err))
	assertSpoolEmpty(t, sp)
}
