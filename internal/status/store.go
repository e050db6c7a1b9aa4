package status

import (
	"context"
	"time"
)

// Pointer locates the published report of one broadcast target.
type Pointer struct {
	TargetID    string
	ChatID      int64
	ThreadID    int
	MessageID   int
	PublishedAt time.Time
}

// RecordSource yields the current service records in a stable order.
type RecordSource interface {
	ListServices(ctx context.Context) ([]ServiceRecord, error)
}

// ReportStore persists at most one Pointer per target.
// Operations on different targets must not interfere.
type ReportStore interface {
	Upsert(ctx context.Context, targetID string, p Pointer) error
	// DeleteByTargetAndMessage is a no-op when the stored message differs.
	DeleteByTargetAndMessage(ctx context.Context, targetID string, messageID int) error
	Find(ctx context.Context, targetID string) (Pointer, bool, error)
	// Touch refreshes PublishedAt if the stored message still matches.
	Touch(ctx context.Context, targetID string, messageID int, at time.Time) error
	List(ctx context.Context) ([]Pointer, error)
}

// ChartFunc renders the chart image for a set of records.
type ChartFunc func(ctx context.Context, records []ServiceRecord, s Settings, kind string) ([]byte, error)
