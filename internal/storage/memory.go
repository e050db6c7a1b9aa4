package storage

import (
	"context"
	"sync"
	"time"

	"statusbot/internal/status"
)

const memAuditCap = 1000

type memStore struct {
	mu     sync.Mutex
	st     *state
	audit  []AuditEntry
	closed bool
}

func openMemory() *memStore { return &memStore{st: newState()} }

func (s *memStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *memStore) Upsert(ctx context.Context, targetID string, p status.Pointer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.st.upsert(targetID, p)
	return nil
}

func (s *memStore) DeleteByTargetAndMessage(ctx context.Context, targetID string, messageID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.st.deleteMatching(targetID, messageID)
	return nil
}

func (s *memStore) Find(ctx context.Context, targetID string) (status.Pointer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return status.Pointer{}, false, err
	}
	p, ok := s.st.reports[targetID]
	return p, ok, nil
}

func (s *memStore) Touch(ctx context.Context, targetID string, messageID int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.st.touch(targetID, messageID, at)
	return nil
}

func (s *memStore) List(ctx context.Context) ([]status.Pointer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.st.list(), nil
}

func (s *memStore) ListServices(ctx context.Context) ([]status.ServiceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.st.records(), nil
}

func (s *memStore) UpsertService(ctx context.Context, name, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.st.upsertService(name, url)
	return nil
}

func (s *memStore) PruneServices(ctx context.Context, keep []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	return s.st.prune(keep), nil
}

func (s *memStore) RecordCheck(ctx context.Context, name string, up bool, responseMs int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.st.recordCheck(name, up, responseMs, at)
	return nil
}

func (s *memStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.audit = append(s.audit, e)
	if len(s.audit) > memAuditCap {
		s.audit = append([]AuditEntry(nil), s.audit[len(s.audit)-memAuditCap:]...)
	}
	return nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
