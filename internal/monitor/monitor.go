// Package monitor probes the configured services on a cron schedule and
// folds the results into the service records the status reports show.
package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	logx "statusbot/pkg/logx"
)

const (
	DefaultSchedule = "@every 30s"
	DefaultTimeout  = 10 * time.Second
	maxParallel     = 8
)

type Config struct {
	Enabled  bool
	Schedule string
	Timeout  time.Duration
	Targets  []Target
}

// Recorder is the storage the monitor writes to.
type Recorder interface {
	UpsertService(ctx context.Context, name, url string) error
	PruneServices(ctx context.Context, keep []string) (int, error)
	RecordCheck(ctx context.Context, name string, up bool, responseMs int64, at time.Time) error
}

type Monitor struct {
	log    logx.Logger
	rec    Recorder
	prober Prober
	parser cron.Parser
	now    func() time.Time
	probes *prometheus.CounterVec

	mu     sync.Mutex
	cfg    Config
	c      *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	first  sync.WaitGroup
}

func New(cfg Config, rec Recorder, log logx.Logger, reg prometheus.Registerer) *Monitor {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Monitor{
		log:    log,
		rec:    rec,
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		now:    time.Now,
		cfg:    cfg,
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statusbot", Subsystem: "monitor", Name: "probes_total",
			Help: "Service probes by service and result.",
		}, []string{"service", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.probes)
	}
	return m
}

func (m *Monitor) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Enabled
}

// Start syncs the configured services into storage, probes once and then
// follows the schedule. It is a no-op when disabled.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.c != nil || !m.cfg.Enabled {
		return nil
	}
	sched, err := m.parser.Parse(scheduleOf(m.cfg))
	if err != nil {
		return err
	}
	if err := m.syncLocked(ctx); err != nil {
		return err
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.c = cron.New(cron.WithParser(m.parser), cron.WithChain(cron.SkipIfStillRunning(cronLogger{m.log})))
	m.c.Schedule(sched, cron.FuncJob(func() { m.RunOnce(m.ctx) }))
	m.c.Start()
	m.first.Add(1)
	go func(ctx context.Context) {
		defer m.first.Done()
		m.RunOnce(ctx)
	}(m.ctx)

	m.log.Info("monitor started", logx.String("schedule", scheduleOf(m.cfg)), logx.Int("services", len(m.cfg.Targets)))
	return nil
}

// Stop halts the schedule and waits for a running round (bounded by ctx).
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	c, cancel := m.c, m.cancel
	m.c, m.cancel = nil, nil
	m.mu.Unlock()
	if c == nil {
		return nil
	}
	cancel()
	done := make(chan struct{})
	go func() {
		<-c.Stop().Done()
		m.first.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Apply swaps the configuration, restarting the schedule when running.
func (m *Monitor) Apply(ctx context.Context, cfg Config) error {
	if _, err := m.parser.Parse(scheduleOf(cfg)); err != nil {
		return err
	}
	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := m.Stop(stopCtx); err != nil {
		return err
	}
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	return m.Start(ctx)
}

func (m *Monitor) syncLocked(ctx context.Context) error {
	keep := make([]string, 0, len(m.cfg.Targets))
	for _, t := range m.cfg.Targets {
		if err := m.rec.UpsertService(ctx, t.Name, t.URL); err != nil {
			return err
		}
		keep = append(keep, t.Name)
	}
	n, err := m.rec.PruneServices(ctx, keep)
	if err != nil {
		return err
	}
	if n > 0 {
		m.log.Info("removed services no longer configured", logx.Int("count", n))
	}
	return nil
}

// RunOnce probes every configured service and records the results.
func (m *Monitor) RunOnce(ctx context.Context) {
	m.mu.Lock()
	targets := append([]Target(nil), m.cfg.Targets...)
	timeout := m.cfg.Timeout
	m.mu.Unlock()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup
	for _, t := range targets {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(t Target) {
			defer wg.Done()
			defer func() { <-sem }()
			m.check(ctx, t, timeout)
		}(t)
	}
	wg.Wait()
}

func (m *Monitor) check(ctx context.Context, t Target, timeout time.Duration) {
	res := m.prober.Probe(ctx, t, timeout)
	if ctx.Err() != nil {
		return
	}
	result := "up"
	if !res.Up {
		result = "down"
		m.log.Debug("service check failed", logx.String("service", t.Name), logx.String("err", res.Err))
	}
	m.probes.WithLabelValues(t.Name, result).Inc()

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := m.rec.RecordCheck(rctx, t.Name, res.Up, res.ResponseMs, m.now()); err != nil && !errors.Is(err, context.Canceled) {
		m.log.Warn("record check failed", logx.String("service", t.Name), logx.Err(err))
	}
}

func scheduleOf(cfg Config) string {
	if s := strings.TrimSpace(cfg.Schedule); s != "" {
		return s
	}
	return DefaultSchedule
}

// cronLogger routes cron's own messages to logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kv(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kv(keysAndValues), logx.Err(err))...)
}

func kv(keysAndValues []any) []logx.Field {
	out := make([]logx.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		k, _ := keysAndValues[i].(string)
		out = append(out, logx.Any(k, keysAndValues[i+1]))
	}
	return out
}
