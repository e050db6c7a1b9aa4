package storage

import (
	"context"
	"errors"
	"time"

	"statusbot/internal/status"
)

var (
	ErrClosed   = errors.New("storage closed")
	ErrNotFound = errors.New("not found")

	ErrUnknownDriver = errors.New("unknown storage driver")
)

const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records an operator action or a report lifecycle event.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At            time.Time `json:"at"`
	ActorID       int64     `json:"actor_id,omitempty"`
	ActorUsername string    `json:"actor_username,omitempty"`
	ChatID        int64     `json:"chat_id,omitempty"`
	ThreadID      int       `json:"thread_id,omitempty"`
	Action        string    `json:"action"`
	Target        string    `json:"target,omitempty"`
	OK            bool      `json:"ok"`
	Error         string    `json:"error,omitempty"`
	TookMS        int64     `json:"took_ms,omitempty"`
	MetaJSON      string    `json:"meta,omitempty"`
}

// Store is everything the bot persists.
type Store interface {
	status.ReportStore
	status.RecordSource

	// UpsertService registers a monitored service, keeping its counters.
	UpsertService(ctx context.Context, name, url string) error
	// PruneServices removes services whose name is not in keep.
	PruneServices(ctx context.Context, keep []string) (int, error)
	// RecordCheck folds one probe result into the service's counters.
	// Unknown services are created.
	RecordCheck(ctx context.Context, name string, up bool, responseMs int64, at time.Time) error

	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}
