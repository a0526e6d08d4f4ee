// Package api provides interfaces for dependency injection
package api

import (
	"context"
	"log/slog"

	"github.com/ssargent/glogstore/pkg/store"
)

// Stream is the part of a store handle the HTTP surface uses.
type Stream interface {
	Write(p []byte) error
	Flush() error
	ArchiveSnapshot(cond store.SnapshotCondition, order store.FileOrder) (store.Snapshot, error)
	ResetExpireSeconds(seconds int64) (int, error)
	Stats() store.Stats
	Config() store.Config
	CacheFileName() string
	OpenReader(path string, opts ...store.ReaderOption) (*store.Reader, error)
}

// ServerStarter defines the interface for starting the API server
type ServerStarter interface {
	// StartServer serves until ctx is cancelled
	StartServer(ctx context.Context, registry *store.Registry, config ServerConfig, logger *slog.Logger) error
}

// ServerFactory creates server instances
type ServerFactory interface {
	// CreateServerStarter creates a server starter
	CreateServerStarter() ServerStarter
}
