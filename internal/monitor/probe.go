package monitor

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Target is one monitored service. URLs starting with tcp:// are checked
// with a plain connect, systemd://<unit> by the unit's ActiveState, and
// everything else with an HTTP GET.
type Target struct {
	Name      string
	URL       string
	ExpectMin int // default 200
	ExpectMax int // default 399
}

func (t Target) expect() (int, int) {
	lo, hi := t.ExpectMin, t.ExpectMax
	if lo == 0 && hi == 0 {
		return 200, 399
	}
	if hi == 0 {
		hi = lo
	}
	return lo, hi
}

// Result is the outcome of one probe.
type Result struct {
	Up         bool
	ResponseMs int64
	StatusCode int
	Err        string
}

// UnitChecker reads a systemd unit's ActiveState ("active", "failed", ...).
type UnitChecker interface {
	ActiveState(ctx context.Context, unit string) (string, error)
}

// Prober performs health checks.
type Prober struct {
	Client *http.Client
	Dialer *net.Dialer
	Units  UnitChecker // default: system bus
}

func (p Prober) Probe(ctx context.Context, t Target, timeout time.Duration) Result {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if addr, ok := strings.CutPrefix(t.URL, "tcp://"); ok {
		return p.probeTCP(ctx, addr)
	}
	if unit, ok := strings.CutPrefix(t.URL, "systemd://"); ok {
		return p.probeUnit(ctx, unit)
	}
	return p.probeHTTP(ctx, t)
}

func (p Prober) probeTCP(ctx context.Context, addr string) Result {
	d := p.Dialer
	if d == nil {
		d = &net.Dialer{}
	}
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Result{Err: err.Error()}
	}
	ms := time.Since(start).Milliseconds()
	_ = conn.Close()
	return Result{Up: true, ResponseMs: ms}
}

func (p Prober) probeUnit(ctx context.Context, unit string) Result {
	units := p.Units
	if units == nil {
		units = systemUnits{}
	}
	if !strings.Contains(unit, ".") {
		unit += ".service"
	}
	start := time.Now()
	state, err := units.ActiveState(ctx, unit)
	if err != nil {
		return Result{Err: err.Error()}
	}
	res := Result{Up: state == "active", ResponseMs: time.Since(start).Milliseconds()}
	if !res.Up {
		res.Err = fmt.Sprintf("unit %s is %s", unit, state)
	}
	return res
}

func (p Prober) probeHTTP(ctx context.Context, t Target) Result {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return Result{Err: err.Error()}
	}
	req.Header.Set("User-Agent", "statusbot-monitor/1")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return Result{Err: err.Error()}
	}
	ms := time.Since(start).Milliseconds()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()

	lo, hi := t.expect()
	res := Result{ResponseMs: ms, StatusCode: resp.StatusCode}
	res.Up = resp.StatusCode >= lo && resp.StatusCode <= hi
	if !res.Up {
		res.Err = fmt.Sprintf("unexpected status %d (want %d-%d)", resp.StatusCode, lo, hi)
	}
	return res
}
