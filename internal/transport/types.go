package transport

import (
	"context"
	"time"
)

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// EmbedField is one titled block of a report.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is the platform-neutral shape of a status report.
// Adapters render it however their platform allows.
type Embed struct {
	Title        string
	Color        string // "#rrggbb"
	ThumbnailURL string
	Fields       []EmbedField
	Footer       string
	Timestamp    time.Time
}

// Report is one channel update: text fields plus an optional image.
// A nil Image on edit keeps the previously attached image.
type Report struct {
	Embed     Embed
	Image     []byte
	ImageName string
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// ReportChannel publishes and refreshes reports.
// EditReport errors are classified with KindOf.
type ReportChannel interface {
	SendReport(ctx context.Context, to ChatTarget, r Report) (MessageRef, error)
	EditReport(ctx context.Context, ref MessageRef, r Report) error
}
