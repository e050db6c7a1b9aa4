package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

const sampleJSON = `{
  "telegram": {"token": "file-token", "owner_user_ids": [42], "group_log": "-100", "poll_timeout": "10s"},
  "logging": {"level": "info", "console": true},
  "storage": {"driver": "sqlite", "path": "./statusbot.db", "busy_timeout": "2s"},
  "status": {"refresh_interval": "1s", "chart_interval": "60s", "footer_text": "Ops"},
  "monitor": {"enabled": true, "schedule": "@every 30s", "services": [{"name": "api", "url": "https://api.example.com/health"}]}
}`

const sampleYAML = `
telegram:
  token: file-token
  owner_user_ids: [42]
status:
  refresh_interval: 2s
  resume_on_start: false
monitor:
  enabled: true
  services:
    - name: db
      url: tcp://127.0.0.1:5432
ops:
  enabled: true
  addr: 127.0.0.1:6060
`

func noEnv(string) string { return "" }

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestDecodeJSON(t *testing.T) {
	cfg, err := Decode("config.json", []byte(sampleJSON))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Telegram.Token != "file-token" || !slices.Equal(cfg.Telegram.OwnerUserIDs, []int64{42}) {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if len(cfg.Monitor.Services) != 1 || cfg.Monitor.Services[0].Name != "api" {
		t.Fatalf("monitor = %+v", cfg.Monitor)
	}
	if !cfg.Status.Resume() {
		t.Fatal("resume_on_start should default to true")
	}
}

func TestDecodeYAML(t *testing.T) {
	cfg, err := Decode("config.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Status.RefreshInterval != "2s" {
		t.Fatalf("refresh_interval = %q", cfg.Status.RefreshInterval)
	}
	if cfg.Status.Resume() {
		t.Fatal("resume_on_start: false was ignored")
	}
	if !cfg.Ops.Enabled || cfg.Ops.Addr != "127.0.0.1:6060" {
		t.Fatalf("ops = %+v", cfg.Ops)
	}
	if cfg.Monitor.Services[0].URL != "tcp://127.0.0.1:5432" {
		t.Fatalf("services = %+v", cfg.Monitor.Services)
	}
}

func TestDecodeRejects(t *testing.T) {
	cases := []struct {
		name string
		file string
		body string
	}{
		{"unknown field", "c.json", `{"telegram": {"token": "x", "nope": 1}}`},
		{"trailing data", "c.json", `{"telegram": {"token": "x"}} {}`},
		{"bad yaml", "c.yml", "telegram: [unclosed"},
		{"unknown yaml key", "c.yaml", "plugins: {}"},
		{"multiple yaml documents", "c.yaml", "telegram:\n  token: a\n---\ntelegram:\n  token: b\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode(tc.file, []byte(tc.body)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvTelegramToken: "env-token",
		EnvLogLevel:      "debug",
		EnvStoragePath:   "/var/lib/statusbot",
	}
	cfg := &Config{}
	ApplyEnv(cfg, func(k string) string { return env[k] })

	if cfg.Telegram.Token != "env-token" || cfg.Logging.Level != "debug" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" || cfg.Storage.Path != "/var/lib/statusbot" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}

	kept := &Config{Telegram: TelegramConfig{Token: "keep"}}
	ApplyEnv(kept, noEnv)
	if kept.Telegram.Token != "keep" || kept.Storage != nil {
		t.Fatalf("empty env must not override: %+v", kept)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, ".env", "STATUSBOT_TEST_DOTENV=from-file\n")
	t.Setenv("STATUSBOT_TEST_DOTENV", "")
	os.Unsetenv("STATUSBOT_TEST_DOTENV")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), p); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("STATUSBOT_TEST_DOTENV"); got != "from-file" {
		t.Fatalf("env = %q", got)
	}
}

func TestManagerLoadAppliesEnv(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.json", sampleJSON)
	m := NewManager(p)
	m.SetEnv(func(k string) string {
		if k == EnvTelegramToken {
			return "env-token"
		}
		return ""
	})
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if m.Get() != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestManagerReload(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.json", sampleJSON)
	m := NewManager(p)
	m.SetEnv(noEnv)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ok, err := m.Reload(t.Context())
	if err != nil || ok {
		t.Fatalf("unchanged reload = %v, %v", ok, err)
	}

	writeFile(t, dir, "config.json", `{"telegram": {"token": "file-token"}, "status": {"refresh_interval": "5s"}}`)
	ok, err = m.Reload(t.Context())
	if err != nil || !ok {
		t.Fatalf("changed reload = %v, %v", ok, err)
	}
	select {
	case got := <-sub:
		if got.Status.RefreshInterval != "5s" {
			t.Fatalf("published %+v", got.Status)
		}
	default:
		t.Fatal("no config published")
	}

	rejected := errors.New("nope")
	m.SetValidator(func(context.Context, *Config) error { return rejected })
	writeFile(t, dir, "config.json", `{"telegram": {"token": "other"}}`)
	if _, err := m.Reload(t.Context()); !errors.Is(err, rejected) {
		t.Fatalf("err = %v, want validator error", err)
	}
	if m.Get().Telegram.Token != "file-token" {
		t.Fatal("rejected config was committed")
	}
}

func TestManagerWatchPublishesChanges(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.json", sampleJSON)
	m := NewManager(p)
	m.SetEnv(noEnv)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(4)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(300 * time.Millisecond)
	defer tick.Stop()
	for {
		// rewrite until the watcher is up and sees it
		writeFile(t, dir, "config.json", `{"telegram": {"token": "file-token"}, "status": {"footer_text": "changed"}}`)
		select {
		case got := <-sub:
			if got.Status.FooterText != "changed" {
				t.Fatalf("published %+v", got.Status)
			}
			return
		case <-tick.C:
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	m := NewManager("unused.json")
	ch := m.Subscribe(1)
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	m.publish(&Config{})
}

func TestSummarizeChange(t *testing.T) {
	old := &Config{
		Telegram: TelegramConfig{Token: "a", OwnerUserIDs: []int64{1}},
		Status:   StatusConfig{RefreshInterval: "1s"},
	}
	next := &Config{
		Telegram: TelegramConfig{Token: "b", OwnerUserIDs: []int64{1, 2}},
		Status:   StatusConfig{RefreshInterval: "2s"},
		Storage:  &StorageConfig{Driver: "file", Path: "./data"},
		Ops:      OpsConfig{Enabled: true},
	}
	sections, attrs := SummarizeChange(old, next)
	want := []string{"ops", "status", "storage", "telegram"}
	if !slices.Equal(sections, want) {
		t.Fatalf("sections = %v, want %v", sections, want)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
	restart := RestartRequired(old, next)
	if !slices.Equal(restart, []string{"telegram.token", "storage"}) {
		t.Fatalf("restart = %v", restart)
	}

	if s, _ := SummarizeChange(next, next); len(s) != 0 {
		t.Fatalf("identical configs reported %v", s)
	}
}

func TestParseDuration(t *testing.T) {
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty = %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative duration accepted")
	}
	if _, err := ParseDurationField("x", "soon"); err == nil {
		t.Fatal("garbage accepted")
	}
	if d, _ := ParseDurationOrDefault("x", "0s", time.Minute); d != time.Minute {
		t.Fatalf("zero should default, got %v", d)
	}
	if d, _ := ParseDurationOrDefault("x", "250ms", time.Minute); d != 250*time.Millisecond {
		t.Fatalf("got %v", d)
	}
	if _, ok, err := ParseDurationOptional("x", "  "); ok || err != nil {
		t.Fatalf("blank: ok=%v err=%v", ok, err)
	}
	if d, ok, err := ParseDurationOptional("x", "0s"); !ok || d != 0 || err != nil {
		t.Fatalf("explicit zero: %v ok=%v err=%v", d, ok, err)
	}
}

func TestFormatOf(t *testing.T) {
	cases := map[string]Format{
		"config.json": FormatJSON,
		"config.YML":  FormatYAML,
		"c.yaml":      FormatYAML,
		"config":      FormatJSON,
	}
	for name, want := range cases {
		if got := FormatOf(name); got != want {
			t.Errorf("FormatOf(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestDecodeEmptyYAML(t *testing.T) {
	cfg, err := Decode("c.yaml", nil)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if cfg.Telegram.Token != "" || cfg.Storage != nil {
		t.Fatalf("cfg = %+v", cfg)
	}
}
