// Package gyanasetu exposes the upload relay as HTTP functions for a
// function-as-a-service host. Each exported function matches the
// http.HandlerFunc signature:
//
//	UploadFile   POST multipart/form-data with a "file" field
//	DeleteFile   DELETE or POST, id from ?fileId= or a {"fileId"} body
//	GetFileInfo  GET with ?fileId=
//
// The relay is built once per process from the environment when the package
// is initialised.
package gyanasetu

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gyanasetu/upload-relay/internal/app"
	"github.com/gyanasetu/upload-relay/internal/config"
	"github.com/gyanasetu/upload-relay/internal/logging"
	"github.com/gyanasetu/upload-relay/internal/server"
)

type functions struct {
	upload http.Handler
	delete http.Handler
	info   http.Handler

	// err is set when the relay could not be built; every call then fails.
	err error
}

var fns = build(context.Background(), config.Load, prometheus.DefaultRegisterer)

func build(ctx context.Context, load func() (*config.Config, error), reg prometheus.Registerer) *functions {
	cfg, err := load()
	if err != nil {
		slog.ErrorContext(ctx, "relay configuration failed", logging.ErrKey, err, logging.PriorityCritical())
		return &functions{err: err}
	}

	logging.Init(logging.Options{Level: cfg.LogLevel, AddSource: cfg.LogAddSource})

	a, err := app.New(ctx, cfg, reg)
	if err != nil {
		slog.ErrorContext(ctx, "relay initialisation failed", logging.ErrKey, err, logging.PriorityCritical())
		return &functions{err: err}
	}

	return &functions{
		upload: a.Server.UploadHandler(),
		delete: a.Server.DeleteHandler(),
		info:   a.Server.InfoHandler(),
	}
}

func (f *functions) serve(w http.ResponseWriter, r *http.Request, h http.Handler) {
	if f.err != nil {
		server.WriteError(w, http.StatusInternalServerError, "Service misconfigured", f.err)
		return
	}
	h.ServeHTTP(w, r)
}

// UploadFile relays one uploaded file to the object store and answers with
// its public links.
func UploadFile(w http.ResponseWriter, r *http.Request) {
	fns.serve(w, r, fns.upload)
}

// DeleteFile deletes an uploaded file.
func DeleteFile(w http.ResponseWriter, r *http.Request) {
	fns.serve(w, r, fns.delete)
}

// GetFileInfo describes an uploaded file.
func GetFileInfo(w http.ResponseWriter, r *http.Request) {
	fns.serve(w, r, fns.info)
}
