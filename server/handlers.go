package server

import (
	"context"
	"database/sql"

	"github.com/tunebridge/tunebridge/config"
	"github.com/tunebridge/tunebridge/session"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db      *sql.DB
	ctx     context.Context
	cfg     *config.Config
	mgr     *session.Manager
	monitor *session.Monitor
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, db *sql.DB, cfg *config.Config, mgr *session.Manager, monitor *session.Monitor) *Handlers {
	return &Handlers{
		db:      db,
		ctx:     ctx,
		cfg:     cfg,
		mgr:     mgr,
		monitor: monitor,
	}
}
