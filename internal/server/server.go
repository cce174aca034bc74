// Package server binds the relay to HTTP.
//
// Endpoints:
//
//	POST   /upload            relay one multipart file and make it public
//	DELETE /delete/{fileId}   delete a remote object
//	POST   /delete            delete, id from {"fileId"} body or ?fileId=
//	GET    /info?fileId=      describe a remote object
//	GET    /                  health and endpoint listing
//	GET    /metrics           Prometheus metrics
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/gyanasetu/upload-relay/internal/domain"
	"github.com/gyanasetu/upload-relay/internal/logging"
	"github.com/gyanasetu/upload-relay/internal/middleware"
	"github.com/gyanasetu/upload-relay/internal/relay"
)

const (
	serviceName = "gyanasetu-upload-relay"

	shutdownTimeout = 10 * time.Second

	readDeadlineGrace = time.Second

	// maxJSONBody bounds the body of a delete request.
	maxJSONBody = 64 << 10
)

type route struct {
	name    string
	pattern string
	handler http.HandlerFunc
}

type Options struct {
	// AllowedOrigins lists the origins permitted to call the API from a
	// browser.
	AllowedOrigins []string

	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// Server holds the dependencies shared across HTTP handlers.
type Server struct {
	relay    *relay.Relay
	origins  []string
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	routes   []route
	handler  http.Handler
}

// New creates a Server for r.
func New(r *relay.Relay, opts Options) *Server {
	s := &Server{
		relay:    r,
		origins:  opts.AllowedOrigins,
		gatherer: opts.Gatherer,
		logger:   opts.Logger,
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.routes = []route{
		{name: "upload", pattern: "/upload", handler: s.handleUpload},
		{name: "delete", pattern: "DELETE /delete/{fileId}", handler: s.handleDelete},
		{name: "deleteByQuery", pattern: "DELETE /delete", handler: s.handleDelete},
		{name: "deleteByBody", pattern: "POST /delete", handler: s.handleDelete},
		{name: "info", pattern: "GET /info", handler: s.handleInfo},
		{name: "metrics", pattern: "GET /metrics", handler: promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}).ServeHTTP},
		{name: "health", pattern: "GET /{$}", handler: s.handleHealth},
	}

	mux := http.NewServeMux()
	for _, rt := range s.routes {
		mux.HandleFunc(rt.pattern, rt.handler)
	}
	s.handler = s.wrap(mux, "http.server")

	return s
}

// Handler returns the full API with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// UploadHandler serves uploads on its own, for hosts that route each
// function separately.
func (s *Server) UploadHandler() http.Handler {
	return s.wrap(http.HandlerFunc(s.handleUpload), "upload")
}

// DeleteHandler serves deletes on its own. DELETE and POST are accepted.
func (s *Server) DeleteHandler() http.Handler {
	return s.wrap(allowMethods(s.handleDelete, http.MethodDelete, http.MethodPost), "delete")
}

// InfoHandler serves lookups on its own. Only GET is accepted.
func (s *Server) InfoHandler() http.Handler {
	return s.wrap(allowMethods(s.handleInfo, http.MethodGet), "info")
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 3 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.InfoContext(ctx, "starting http server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http listener: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.InfoContext(ctx, "shutting down http server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// wrap applies the middleware chain. The first middleware added runs last.
func (s *Server) wrap(h http.Handler, operation string) http.Handler {
	h = middleware.RequestLoggerMiddleware()(h)
	h = middleware.RequestIDMiddleware()(h)
	h = middleware.CORSMiddleware(s.origins)(h)
	return otelhttp.NewHandler(h, operation, otelhttp.WithServerName(serviceName))
}

type uploadResponse struct {
	Success bool `json:"success"`
	*domain.UploadResult
}

type deleteRequest struct {
	FileID string `json:"fileId"`
}

type deleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type infoResponse struct {
	Success bool           `json:"success"`
	File    *domain.Object `json:"file"`
}

type healthResponse struct {
	Status    string            `json:"status"`
	Endpoints map[string]string `json:"endpoints"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	req := &relay.UploadRequest{
		Method:        r.Method,
		ContentLength: r.ContentLength,
	}
	if r.Method == http.MethodPost {
		if timeout := s.relay.Timeout(); timeout > 0 {
			// Closing a server request body does not interrupt a read that
			// is already blocked, so the connection gets a deadline as well.
			// The grace keeps the relay's own timeout the one that fires.
			rc := http.NewResponseController(w)
			if err := rc.SetReadDeadline(time.Now().Add(timeout + readDeadlineGrace)); err != nil {
				s.logger.DebugContext(r.Context(), "read deadline not supported", logging.ErrKey, err)
			}
		}
		if limit := s.relay.BodyLimit(); limit > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		req.Body = r.Body
		// A body that is not multipart leaves Form nil, which the relay
		// reports as a missing file.
		if form, err := r.MultipartReader(); err == nil {
			req.Form = form
		}
	}

	res, err := s.relay.HandleUpload(r.Context(), req)
	if err != nil {
		if domain.IsKind(err, domain.KindMethodNotAllowed) {
			w.Header().Set("Allow", http.MethodPost)
		}
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{Success: true, UploadResult: res})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	fileID, err := deleteTarget(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.relay.Delete(r.Context(), fileID); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, deleteResponse{Success: true, Message: "File deleted"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	obj, err := s.relay.Info(r.Context(), r.URL.Query().Get("fileId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, infoResponse{Success: true, File: obj})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	endpoints := lo.Associate(s.routes, func(rt route) (string, string) {
		return rt.name, rt.pattern
	})
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Endpoints: endpoints})
}

// deleteTarget finds the file id in the path, the query or a JSON body, in
// that order.
func deleteTarget(r *http.Request) (string, error) {
	if id := r.PathValue("fileId"); id != "" {
		return id, nil
	}
	if id := r.URL.Query().Get("fileId"); id != "" {
		return id, nil
	}
	if r.Body == nil || r.ContentLength == 0 {
		return "", nil
	}

	var body deleteRequest
	err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&body)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", domain.NewValidationError("Invalid request body", err)
	}
	return body.FileID, nil
}

func allowMethods(h http.HandlerFunc, methods ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !lo.Contains(methods, r.Method) {
			w.Header().Set("Allow", strings.Join(methods, ", "))
			writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
			return
		}
		h(w, r)
	}
}

// writeError maps err onto a status code and a {error, details} body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var relayErr *domain.Error
	if !errors.As(err, &relayErr) {
		s.logger.ErrorContext(r.Context(), "unclassified error", logging.ErrKey, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "Internal server error",
			Details: err.Error(),
		})
		return
	}

	resp := errorResponse{Error: relayErr.Message}
	if relayErr.Err != nil {
		resp.Details = relayErr.Err.Error()
	}
	writeJSON(w, relayErr.Kind.HTTPStatus(), resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes err the way every endpoint does. It lets other bindings
// report failures that happen before a Server exists.
func WriteError(w http.ResponseWriter, status int, message string, err error) {
	resp := errorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
