package status

import (
	"context"
	"sync"
	"time"

	"statusbot/internal/transport"
)

type fakeSource struct {
	mu      sync.Mutex
	records []ServiceRecord
	err     error
	calls   int
}

func (f *fakeSource) ListServices(context.Context) ([]ServiceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]ServiceRecord(nil), f.records...), nil
}

type fakeStore struct {
	mu      sync.Mutex
	ptrs    map[string]Pointer
	touches int
	deletes int
}

func newFakeStore() *fakeStore { return &fakeStore{ptrs: map[string]Pointer{}} }

func (f *fakeStore) Upsert(_ context.Context, targetID string, p Pointer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ptrs[targetID] = p
	return nil
}

func (f *fakeStore) DeleteByTargetAndMessage(_ context.Context, targetID string, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.ptrs[targetID]; ok && p.MessageID == messageID {
		delete(f.ptrs, targetID)
		f.deletes++
	}
	return nil
}

func (f *fakeStore) Find(_ context.Context, targetID string) (Pointer, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.ptrs[targetID]
	return p, ok, nil
}

func (f *fakeStore) Touch(_ context.Context, targetID string, messageID int, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.ptrs[targetID]; ok && p.MessageID == messageID {
		p.PublishedAt = at
		f.ptrs[targetID] = p
		f.touches++
	}
	return nil
}

func (f *fakeStore) List(context.Context) ([]Pointer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Pointer, 0, len(f.ptrs))
	for _, p := range f.ptrs {
		out = append(out, p)
	}
	return out, nil
}

type fakeChannel struct {
	mu      sync.Mutex
	nextID  int
	sends   []transport.Report
	edits   []transport.Report
	editErr error

	// When set, EditReport signals entered and waits for release.
	entered chan struct{}
	release chan struct{}

	// editDelay makes EditReport slow; inFlight tracks concurrent calls.
	editDelay   time.Duration
	inFlight    int
	maxInFlight int
}

func (f *fakeChannel) SendReport(_ context.Context, to transport.ChatTarget, r transport.Report) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sends = append(f.sends, r)
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: f.nextID}, nil
}

func (f *fakeChannel) EditReport(ctx context.Context, _ transport.MessageRef, r transport.Report) error {
	if f.editDelay > 0 {
		f.mu.Lock()
		f.inFlight++
		f.maxInFlight = max(f.maxInFlight, f.inFlight)
		f.mu.Unlock()
		select {
		case <-time.After(f.editDelay):
		case <-ctx.Done():
		}
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}
	if f.entered != nil {
		f.entered <- struct{}{}
		select {
		case <-f.release:
		case <-ctx.Done():
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, r)
	return f.editErr
}

func (f *fakeChannel) editCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.edits)
}

func (f *fakeChannel) concurrency() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

func (f *fakeChannel) lastEdit() transport.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.edits[len(f.edits)-1]
}

type fakeChart struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeChart) render(context.Context, []ServiceRecord, Settings, string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte("png"), nil
}

func (f *fakeChart) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
