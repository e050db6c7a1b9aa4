package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"statusbot/internal/status"
	logx "statusbot/pkg/logx"
)

// fileStore keeps the whole state in memory and rewrites a JSON snapshot
// on every structural change.
//
// Files:
//   - <prefix>.state.json  (snapshot, replaced via rename)
//   - <prefix>.audit.jsonl (append-only JSON Lines)
//
// Touch only marks the snapshot dirty; it is written with the next change or on Close.
type fileStore struct {
	log logx.Logger

	mu        sync.Mutex
	st        *state
	statePath string
	auditFile *os.File
	dirty     bool
}

type snapshot struct {
	Version  int               `json:"version"`
	Reports  []snapshotReport  `json:"reports"`
	Services []snapshotService `json:"services"`
}

type snapshotReport struct {
	TargetID    string    `json:"target_id"`
	ChatID      int64     `json:"chat_id"`
	ThreadID    int       `json:"thread_id,omitempty"`
	MessageID   int       `json:"message_id"`
	PublishedAt time.Time `json:"published_at"`
}

type snapshotService struct {
	Name              string    `json:"name"`
	URL               string    `json:"url,omitempty"`
	IsUp              bool      `json:"is_up"`
	ResponseTimeMs    int64     `json:"response_time_ms"`
	LastCheckedAt     time.Time `json:"last_checked_at"`
	UptimeAccumulated float64   `json:"uptime_accumulated"`
	CheckCount        int64     `json:"check_count"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	st := newState()
	statePath := prefix + ".state.json"
	if err := loadSnapshot(statePath, st); err != nil {
		return nil, fmt.Errorf("load %s: %w", statePath, err)
	}

	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	log.Debug("file store opened", logx.String("state", statePath), logx.Int("reports", len(st.reports)), logx.Int("services", len(st.services)))
	return &fileStore{log: log, st: st, statePath: statePath, auditFile: af}, nil
}

func (s *fileStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.auditFile == nil {
		return ErrClosed
	}
	return nil
}

func (s *fileStore) Upsert(ctx context.Context, targetID string, p status.Pointer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.st.upsert(targetID, p)
	return s.persistLocked()
}

func (s *fileStore) DeleteByTargetAndMessage(ctx context.Context, targetID string, messageID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if !s.st.deleteMatching(targetID, messageID) {
		return nil
	}
	return s.persistLocked()
}

func (s *fileStore) Find(ctx context.Context, targetID string) (status.Pointer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return status.Pointer{}, false, err
	}
	p, ok := s.st.reports[targetID]
	return p, ok, nil
}

func (s *fileStore) Touch(ctx context.Context, targetID string, messageID int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if s.st.touch(targetID, messageID, at) {
		s.dirty = true
	}
	return nil
}

func (s *fileStore) List(ctx context.Context) ([]status.Pointer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.st.list(), nil
}

func (s *fileStore) ListServices(ctx context.Context) ([]status.ServiceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.st.records(), nil
}

func (s *fileStore) UpsertService(ctx context.Context, name, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if !s.st.upsertService(name, url) {
		return nil
	}
	return s.persistLocked()
}

func (s *fileStore) PruneServices(ctx context.Context, keep []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	n := s.st.prune(keep)
	if n == 0 {
		return 0, nil
	}
	return n, s.persistLocked()
}

func (s *fileStore) RecordCheck(ctx context.Context, name string, up bool, responseMs int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.st.recordCheck(name, up, responseMs, at)
	return s.persistLocked()
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return nil
	}
	var err1 error
	if s.dirty {
		err1 = s.persistLocked()
	}
	err2 := s.auditFile.Close()
	s.auditFile = nil
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) persistLocked() error {
	snap := snapshot{Version: 1}
	for _, p := range s.st.list() {
		snap.Reports = append(snap.Reports, snapshotReport{
			TargetID: p.TargetID, ChatID: p.ChatID, ThreadID: p.ThreadID, MessageID: p.MessageID, PublishedAt: p.PublishedAt,
		})
	}
	for _, row := range s.st.services {
		r := row.rec
		snap.Services = append(snap.Services, snapshotService{
			Name: r.Name, URL: row.url, IsUp: r.IsUp, ResponseTimeMs: r.ResponseTimeMs,
			LastCheckedAt: r.LastCheckedAt, UptimeAccumulated: r.UptimeAccumulated, CheckCount: r.CheckCount,
		})
	}

	tmp := s.statePath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.statePath); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

func loadSnapshot(path string, st *state) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	var snap snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	for _, r := range snap.Reports {
		st.upsert(r.TargetID, status.Pointer{
			TargetID: r.TargetID, ChatID: r.ChatID, ThreadID: r.ThreadID, MessageID: r.MessageID, PublishedAt: r.PublishedAt,
		})
	}
	for _, svc := range snap.Services {
		st.upsertService(svc.Name, svc.URL)
		st.services[st.index[svc.Name]].rec = status.ServiceRecord{
			Name: svc.Name, IsUp: svc.IsUp, ResponseTimeMs: svc.ResponseTimeMs, LastCheckedAt: svc.LastCheckedAt,
			UptimeAccumulated: svc.UptimeAccumulated, CheckCount: svc.CheckCount,
		}
	}
	return nil
}
