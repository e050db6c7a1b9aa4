package ops

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	logx "statusbot/pkg/logx"
)

func newServer(t *testing.T, cfg Config, health HealthFunc) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "statusbot_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()
	return New(cfg, logx.Nop(), reg, health)
}

func get(t *testing.T, h http.Handler, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	healthy := true
	s := newServer(t, Config{}, func() (bool, map[string]any) {
		return healthy, map[string]any{"engine": "active", "reports": 2}
	})
	h := s.Handler(Config{})

	rec := get(t, h, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["engine"] != "active" {
		t.Fatalf("body = %v", body)
	}

	healthy = false
	if rec := get(t, h, "/healthz", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy code = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t, Config{}, nil)
	rec := get(t, s.Handler(Config{}), "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "statusbot_test_total 1") {
		t.Fatalf("metrics body missing counter:\n%s", rec.Body.String())
	}
}

func TestTokenAuth(t *testing.T) {
	cfg := Config{Token: "s3cret"}
	h := newServer(t, cfg, nil).Handler(cfg)

	cases := []struct {
		name   string
		target string
		header http.Header
		want   int
	}{
		{"missing", "/healthz", nil, http.StatusUnauthorized},
		{"bad query", "/healthz?token=nope", nil, http.StatusUnauthorized},
		{"query", "/healthz?token=s3cret", nil, http.StatusOK},
		{"bearer", "/metrics", http.Header{"Authorization": {"Bearer s3cret"}}, http.StatusOK},
		{"bad bearer", "/metrics", http.Header{"Authorization": {"Bearer x"}}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := get(t, h, tc.target, tc.header); rec.Code != tc.want {
				t.Fatalf("code = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestPprofCustomPrefix(t *testing.T) {
	cfg := Config{PprofPrefix: "internal/pprof"}
	h := newServer(t, cfg, nil).Handler(cfg)
	rec := get(t, h, "/internal/pprof/", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "goroutine") {
		t.Fatalf("index code = %d", rec.Code)
	}
}

func TestRefusesInsecureBind(t *testing.T) {
	s := newServer(t, Config{Enabled: true, Addr: "0.0.0.0:0"}, nil)
	if err := s.Start(t.Context()); !errors.Is(err, ErrInsecureBind) {
		t.Fatalf("err = %v, want ErrInsecureBind", err)
	}
	if s.Addr() != "" {
		t.Fatal("server should not be running")
	}
}

func TestStartStopReconfigure(t *testing.T) {
	s := newServer(t, Config{Enabled: true, Addr: "127.0.0.1:0"}, nil)
	if err := s.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := s.Addr()
	if addr == "" {
		t.Fatal("no address after start")
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("code = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 3*time.Second)
	defer cancel()
	if err := s.Reconfigure(ctx, Config{Enabled: false}); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if s.Addr() != "" {
		t.Fatal("server still bound after disable")
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":6060":          false,
		"0.0.0.0:6060":   false,
		"10.0.0.5:6060":  false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddr(addr); got != want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
