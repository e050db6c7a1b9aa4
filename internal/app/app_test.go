package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"statusbot/internal/config"
	"statusbot/internal/status"
	"statusbot/internal/storage"
	"statusbot/internal/transport"
	logx "statusbot/pkg/logx"
)

type fakeChannel struct {
	mu      sync.Mutex
	nextID  int
	texts   []string
	reports []transport.ChatTarget
	edits   int
	started bool
	stopped int
}

func (f *fakeChannel) Start(context.Context, chan<- transport.Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *fakeChannel) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

func (f *fakeChannel) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.texts = append(f.texts, text)
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: f.nextID}, nil
}

func (f *fakeChannel) SendReport(_ context.Context, to transport.ChatTarget, _ transport.Report) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.reports = append(f.reports, to)
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: f.nextID}, nil
}

func (f *fakeChannel) EditReport(context.Context, transport.MessageRef, transport.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits++
	return nil
}

func (f *fakeChannel) SendPlain(int64, int, string) error { return nil }

func (f *fakeChannel) snapshot() (reports int, texts []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reports), append([]string(nil), f.texts...)
}

const owner int64 = 42

func writeConfig(t *testing.T, body string) *config.Manager {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	m := config.NewManager(p)
	m.SetEnv(func(string) string { return "" })
	return m
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func command(chat int64, from int64, text string) transport.Update {
	return transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{
		ID: 1, ChatID: chat, FromID: from, Text: text,
	}}
}

func TestAppStatusCommandLifecycle(t *testing.T) {
	cfgm := writeConfig(t, `{
		"telegram": {"token": "test", "owner_user_ids": [42]},
		"logging": {"level": "error"},
		"status": {"refresh_interval": "1h", "footer_text": "Ops"}
	}`)
	ch := &fakeChannel{}
	a, err := New(t.Context(), cfgm, WithChannel(ch))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stopped := false
	defer func() {
		if !stopped {
			_ = a.Stop(context.Background(), StopUnknown)
		}
	}()

	ctx := t.Context()
	if err := a.Store().RecordCheck(ctx, "api", true, 120, time.Now()); err != nil {
		t.Fatalf("RecordCheck: %v", err)
	}

	a.updates <- command(-100, 7, "/status")
	waitFor(t, "report published", func() bool {
		n, _ := ch.snapshot()
		return n == 1 && a.Status().Active() == 1
	})
	p, ok, err := a.Store().Find(ctx, "-100")
	if err != nil || !ok || p.MessageID == 0 {
		t.Fatalf("pointer = %+v, %v, %v", p, ok, err)
	}

	a.updates <- command(-100, 7, "/unwatch")
	waitFor(t, "unauthorized reply", func() bool {
		_, texts := ch.snapshot()
		return len(texts) > 0 && texts[len(texts)-1] == "unauthorized"
	})

	a.updates <- command(-100, owner, "/unwatch")
	waitFor(t, "report stopped", func() bool {
		_, texts := ch.snapshot()
		return a.Status().Active() == 0 && len(texts) > 0 && texts[len(texts)-1] == "live updates stopped"
	})
	if _, ok, _ := a.Store().Find(ctx, "-100"); ok {
		t.Fatal("pointer should be deleted after unwatch")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx, StopSignal); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	stopped = true
	if err := a.Stop(stopCtx, StopSignal); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if ch.stopped != 1 {
		t.Fatalf("channel stopped %d times", ch.stopped)
	}
	if a.Status().State() != status.StateStopped {
		t.Fatalf("engine state = %v", a.Status().State())
	}
}

func TestAppResumesStoredReports(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store")
	cfg := `{
		"telegram": {"token": "test"},
		"logging": {"level": "error"},
		"storage": {"driver": "file", "path": "` + filepath.ToSlash(path) + `"},
		"status": {"refresh_interval": "1h"}
	}`

	seed, err := storage.Open(storage.Config{Driver: storage.DriverFile, Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("seed open: %v", err)
	}
	if err := seed.Upsert(t.Context(), "-5", status.Pointer{TargetID: "-5", ChatID: -5, MessageID: 77, PublishedAt: time.Now()}); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}
	if err := seed.Close(); err != nil {
		t.Fatalf("seed close: %v", err)
	}

	a, err := New(t.Context(), writeConfig(t, cfg), WithChannel(&fakeChannel{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = a.Stop(context.Background(), StopUnknown) }()

	if got := a.Status().Active(); got != 1 {
		t.Fatalf("active reports = %d, want 1", got)
	}
}

func TestOpenStoreRetries(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := storage.Config{Driver: storage.DriverFile, Path: filepath.Join(blocker, "sub", "store")}

	_, err := openStore(t.Context(), cfg, logx.Nop(), 3, time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "after 3 attempts") {
		t.Fatalf("err = %v", err)
	}

	_, err = openStore(t.Context(), storage.Config{Driver: "postgres"}, logx.Nop(), 3, time.Hour)
	if err == nil || strings.Contains(err.Error(), "attempts") {
		t.Fatalf("unknown driver should fail fast, got %v", err)
	}
}

func TestNewRejectsMissingToken(t *testing.T) {
	cfgm := writeConfig(t, `{"telegram": {"token": ""}}`)
	if _, err := New(t.Context(), cfgm, WithChannel(&fakeChannel{})); err == nil {
		t.Fatal("expected an error without a token")
	}
}

func TestTargetID(t *testing.T) {
	if got := targetID(transport.ChatTarget{ChatID: -100123}); got != "-100123" {
		t.Fatalf("got %q", got)
	}
	if got := targetID(transport.ChatTarget{ChatID: -100123, ThreadID: 9}); got != "-100123:9" {
		t.Fatalf("got %q", got)
	}
}
