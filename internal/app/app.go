// Package app assembles the relay from its configuration. The standalone
// server, the function entry points and the CLI all start here.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gyanasetu/upload-relay/internal/config"
	"github.com/gyanasetu/upload-relay/internal/metrics"
	"github.com/gyanasetu/upload-relay/internal/relay"
	"github.com/gyanasetu/upload-relay/internal/server"
	"github.com/gyanasetu/upload-relay/internal/spool"
	"github.com/gyanasetu/upload-relay/internal/storage"
)

// App holds the process-wide relay components.
type App struct {
	Config *config.Config
	Store  storage.Store
	Spool  *spool.Spool
	Relay  *relay.Relay
	Server *server.Server
}

// New builds every component for cfg. Metrics are registered with reg, or
// with the default registerer when reg is nil.
func New(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*App, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	logger := slog.Default().With("backend", cfg.Backend)

	store, err := NewStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sp, err := spool.New(cfg.SpoolDir)
	if err != nil {
		return nil, err
	}

	observer, err := metrics.NewObserver("", reg)
	if err != nil {
		return nil, err
	}

	r := relay.New(store, sp, relay.Options{
		ParentID: cfg.DriveFolderID,
		MaxBytes: cfg.MaxUploadBytes,
		Timeout:  cfg.UploadTimeout,
		Observer: observer,
		Logger:   logger,
	})

	gatherer, ok := reg.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}

	srv := server.New(r, server.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		Gatherer:       gatherer,
		Logger:         logger,
	})

	logger.DebugContext(ctx, "relay initialised",
		"spool_dir", sp.Dir(),
		"max_upload_bytes", cfg.MaxUploadBytes,
		"upload_timeout", cfg.UploadTimeout.String(),
	)

	return &App{
		Config: cfg,
		Store:  store,
		Spool:  sp,
		Relay:  r,
		Server: srv,
	}, nil
}

// NewStore creates the object store selected by cfg.Backend.
func NewStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	creds := storage.Credentials{JSON: cfg.CredentialsJSON, File: cfg.CredentialsFile}

	switch cfg.Backend {
	case config.BackendDrive:
		opts, err := storage.Authenticate(ctx, creds, storage.DriveScopes...)
		if err != nil {
			return nil, err
		}
		return storage.NewDriveStore(ctx, cfg.DriveFolderID, opts...)
	case config.BackendGCS:
		opts, err := storage.Authenticate(ctx, creds, storage.GCSScopes...)
		if err != nil {
			return nil, err
		}
		return storage.NewGCSStore(ctx, cfg.GCSBucket, opts...)
	case config.BackendLocal:
		return storage.NewLocalStore(cfg.LocalDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
