// Package app wires configuration, storage, the Telegram channel, the status
// engine, the monitor and the ops server into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"statusbot/internal/chart"
	"statusbot/internal/config"
	"statusbot/internal/eventbus"
	"statusbot/internal/monitor"
	"statusbot/internal/observability/ops"
	rtsup "statusbot/internal/runtime/supervisor"
	"statusbot/internal/status"
	"statusbot/internal/storage"
	"statusbot/internal/transport"
	"statusbot/internal/transport/telegram"
	"statusbot/internal/transport/telegram/router"
	logx "statusbot/pkg/logx"
)

// Channel is the chat platform the app runs on.
type Channel interface {
	transport.Adapter
	transport.ReportChannel
	logx.Sender
}

type options struct {
	channel    Channel
	storeTries int
	storeDelay time.Duration
}

type Option func(*options)

// WithChannel replaces the Telegram adapter (tests, other platforms).
func WithChannel(ch Channel) Option { return func(o *options) { o.channel = ch } }

// WithStoreRetry overrides the startup storage retry policy.
func WithStoreRetry(attempts int, delay time.Duration) Option {
	return func(o *options) { o.storeTries, o.storeDelay = attempts, delay }
}

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	reg  *prometheus.Registry

	store   storage.Store
	channel Channel
	sched   *status.Scheduler
	mon     *monitor.Monitor
	router  *router.Router
	ops     *ops.Server

	settings atomic.Pointer[status.Settings]
	applied  atomic.Pointer[config.Config]

	sup      *rtsup.Supervisor
	updates  chan transport.Update
	stopOnce sync.Once
}

// New builds the app from the manager's current config (loading it if needed).
// Storage is opened here, with retries, so a dead database fails startup.
func New(ctx context.Context, cfgm *config.Manager, opts ...Option) (*App, error) {
	o := options{storeTries: 5, storeDelay: 5 * time.Second}
	for _, fn := range opts {
		fn(&o)
	}

	cfg := cfgm.Get()
	if cfg == nil {
		var err error
		if cfg, err = cfgm.Load(); err != nil {
			return nil, err
		}
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	settings, err := mapStatusSettings(cfg)
	if err != nil {
		return nil, err
	}
	storeCfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	monCfg, err := mapMonitorConfig(cfg)
	if err != nil {
		return nil, err
	}
	opsCfg, err := mapOpsConfig(cfg)
	if err != nil {
		return nil, err
	}

	ch := o.channel
	if ch == nil {
		tgCfg, err := mapTelegramConfig(cfg)
		if err != nil {
			return nil, err
		}
		ad, err := telegram.New(tgCfg, logx.NewConsole("INFO").With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, err
		}
		ch = ad
	}

	logs, log := logx.New(mapLogConfig(cfg), ch)
	log = log.With(logx.String("comp", "app"))

	store, err := openStore(ctx, storeCfg, log.With(logx.String("comp", "storage")), o.storeTries, o.storeDelay)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bus := eventbus.New()

	sched, err := status.New(status.Config{
		Source:  store,
		Store:   store,
		Channel: ch,
		Chart:   chart.Render,
		Bus:     bus,
		Metrics: status.NewMetrics(reg),
		Log:     log.With(logx.String("comp", "status")),
	})
	if err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, err
	}

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logs,
		bus:     bus,
		reg:     reg,
		store:   store,
		channel: ch,
		sched:   sched,
		mon:     monitor.New(monCfg, store, log.With(logx.String("comp", "monitor")), reg),
		router:  router.New(log.With(logx.String("comp", "commands")), ch, cfg.Telegram.OwnerUserIDs),
		updates: make(chan transport.Update, 256),
	}
	a.ops = ops.New(opsCfg, log.With(logx.String("comp", "ops")), reg, a.health)
	a.settings.Store(&settings)
	a.applied.Store(cfg)
	a.router.Register(a.commands()...)
	return a, nil
}

// openStore retries transient open failures; an unknown driver fails at once.
func openStore(ctx context.Context, cfg storage.Config, log logx.Logger, attempts int, delay time.Duration) (storage.Store, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		st, err := storage.Open(cfg, log)
		if err == nil {
			log.Info("storage ready", logx.String("driver", cfg.Driver), logx.Int("attempt", i))
			return st, nil
		}
		lastErr = err
		if errors.Is(err, storage.ErrUnknownDriver) {
			return nil, err
		}
		log.Warn("storage open failed", logx.Int("attempt", i), logx.Int("max", attempts), logx.Err(err))
		if i == attempts {
			break
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return nil, fmt.Errorf("storage unavailable after %d attempts: %w", attempts, lastErr)
}

// Settings returns the snapshot handed to newly published reports.
func (a *App) Settings() status.Settings { return *a.settings.Load() }

func (a *App) Status() *status.Scheduler { return a.sched }

func (a *App) Store() storage.Store { return a.store }

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the app supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validateConfig(cfg) })

	// Report loops outlive the app context; Stop ends them in order.
	if err := a.sched.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	if cfg := a.applied.Load(); cfg.Status.Resume() {
		n, err := a.sched.Resume(ctx, a.Settings())
		if err != nil {
			a.log.Warn("resume reports failed", logx.Err(err))
		} else if n > 0 {
			a.log.Info("reports resumed", logx.Int("count", n))
		}
	}

	if err := a.mon.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	if err := a.channel.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.Run(c, a.updates, 4)
	})
	a.startAudit()

	if err := a.ops.Start(a.sup.Context()); err != nil {
		// ops is optional
		a.log.Warn("ops server not started", logx.Err(err))
	}

	a.startReload()
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.Int("reports", a.sched.Active()),
		logx.Bool("monitor", a.mon.Enabled()),
		logx.Bool("ops", a.ops.Enabled()),
	)
	return nil
}

// startReload applies committed config changes to the running components.
func (a *App) startReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				// coalesce bursts
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							cfg = newer
						}
					default:
						drained = true
					}
				}
				a.apply(c, cfg)
			}
		}
	})
}

func (a *App) apply(ctx context.Context, cfg *config.Config) {
	prev := a.applied.Swap(cfg)
	sections, attrs := config.SummarizeChange(prev, cfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(prev, cfg); len(restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("keys", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLogConfig(cfg))
	a.router.SetOwners(cfg.Telegram.OwnerUserIDs)

	// running reports keep their snapshot
	if set, err := mapStatusSettings(cfg); err != nil {
		a.log.Warn("invalid status config; keeping previous", logx.Err(err))
	} else {
		a.settings.Store(&set)
	}
	if mc, err := mapMonitorConfig(cfg); err != nil {
		a.log.Warn("invalid monitor config; keeping previous", logx.Err(err))
	} else if err := a.mon.Apply(ctx, mc); err != nil {
		a.log.Warn("monitor reconfigure failed", logx.Err(err))
	}
	if oc, err := mapOpsConfig(cfg); err != nil {
		a.log.Warn("invalid ops config; keeping previous", logx.Err(err))
	} else if err := a.ops.Reconfigure(ctx, oc); err != nil {
		a.log.Warn("ops reconfigure failed", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) health() (bool, map[string]any) {
	st := a.sched.State()
	detail := map[string]any{
		"engine":  st.String(),
		"reports": a.sched.Active(),
		"monitor": a.mon.Enabled(),
	}
	if a.sup != nil {
		detail["goroutines"] = a.sup.Counters()
	}
	return st == status.StateActive, detail
}

// Stop shuts down in order: intake (ops, channel), report loops, monitor,
// background goroutines, storage. Only the first call does anything.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	var err error
	a.stopOnce.Do(func() { err = a.stop(ctx, reason) })
	return err
}

func (a *App) stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if a.sup != nil {
		a.sup.Cancel()
	}

	var errs []error
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		if err := runStep(ctx, a.log, name, limit, fn); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	step("ops", time.Second, a.ops.Stop)
	step("channel", 2*time.Second, a.channel.Stop)
	step("status", 3*time.Second, a.sched.Shutdown)
	step("monitor", 2*time.Second, a.mon.Stop)
	if a.sup != nil {
		step("supervisor", 2*time.Second, func(c context.Context) error {
			if err := a.sup.Wait(c); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}

// runStep bounds one shutdown step. The caller's deadline is never extended;
// a step that overruns is logged and left behind.
func runStep(ctx context.Context, log logx.Logger, name string, limit time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		limit = min(limit, time.Until(dl))
	}
	if limit <= 0 {
		log.Warn("stop step skipped (no time left)", logx.String("name", name))
		return context.DeadlineExceeded
	}
	sctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- fn(sctx)
	}()

	select {
	case err := <-done:
		took := time.Since(start)
		if err != nil {
			log.Warn("stop step error", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
			return err
		}
		log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		return nil
	case <-sctx.Done():
		log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		return sctx.Err()
	}
}
