package status

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"statusbot/internal/eventbus"
	rtsup "statusbot/internal/runtime/supervisor"
	"statusbot/internal/transport"
	logx "statusbot/pkg/logx"
)

const (
	EventPublished = "status.published"
	EventStopped   = "status.stopped"
	EventOrphaned  = "status.orphaned"
)

// Event is the payload of status lifecycle events on the bus.
type Event struct {
	TargetID  string `json:"target_id"`
	ChatID    int64  `json:"chat_id"`
	MessageID int    `json:"message_id"`
	Reason    string `json:"reason,omitempty"`
}

type Config struct {
	Source   RecordSource
	Store    ReportStore
	Channel  transport.ReportChannel
	Chart    ChartFunc
	Renderer Renderer  // default TextRenderer
	Registry *Registry // default NewRegistry()
	Bus      eventbus.Bus
	Metrics  *Metrics
	Log      logx.Logger
}

type tickResult int

const (
	tickOK tickResult = iota
	tickSkipped
	tickFailed
	tickOrphaned
	tickCanceled
)

func (r tickResult) String() string {
	switch r {
	case tickOK:
		return "ok"
	case tickSkipped:
		return "skipped"
	case tickFailed:
		return "failed"
	case tickOrphaned:
		return "orphaned"
	default:
		return "canceled"
	}
}

// Scheduler drives every published report from creation to termination.
//
// Each report gets its own goroutine. The next tick is armed only after the
// previous one returns, so ticks of one report never overlap; different
// reports tick independently.
type Scheduler struct {
	source   RecordSource
	store    ReportStore
	channel  transport.ReportChannel
	chart    ChartFunc
	renderer Renderer
	registry *Registry
	bus      eventbus.Bus
	metrics  *Metrics
	log      logx.Logger

	now    func() time.Time
	jitter func(base time.Duration) time.Duration

	mu       sync.Mutex
	sup      *rtsup.Supervisor
	byTarget map[string]*entry
}

func New(cfg Config) (*Scheduler, error) {
	switch {
	case cfg.Source == nil:
		return nil, errors.New("status: record source is required")
	case cfg.Store == nil:
		return nil, errors.New("status: report store is required")
	case cfg.Channel == nil:
		return nil, errors.New("status: report channel is required")
	case cfg.Chart == nil:
		return nil, errors.New("status: chart renderer is required")
	}
	if cfg.Renderer == nil {
		cfg.Renderer = TextRenderer{}
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.Log.IsZero() {
		cfg.Log = logx.Nop()
	}
	return &Scheduler{
		source:   cfg.Source,
		store:    cfg.Store,
		channel:  cfg.Channel,
		chart:    cfg.Chart,
		renderer: cfg.Renderer,
		registry: cfg.Registry,
		bus:      cfg.Bus,
		metrics:  cfg.Metrics,
		log:      cfg.Log,
		now:      time.Now,
		jitter:   uniformJitter,
		byTarget: map[string]*entry{},
	}, nil
}

// uniformJitter returns a duration in [0, base).
func uniformJitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(base)))
}

// Start activates the registry. ctx bounds every report loop; Shutdown is the
// orderly way to end them.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return s.registry.checkActive()
	}
	if err := s.registry.Start(); err != nil {
		return err
	}
	s.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(s.log))
	s.log.Info("report scheduler started")
	return nil
}

// State reports the lifecycle state of the underlying registry.
func (s *Scheduler) State() State { return s.registry.State() }

// Active returns the number of live report loops.
func (s *Scheduler) Active() int { return s.registry.Len() }

// Shutdown stops every report loop and waits for in-flight ticks (bounded by ctx).
// Stored pointers are kept so Resume can pick the reports up again.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	n := s.registry.StopAll()

	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	if n > 0 {
		s.log.Info("stopping report loops", logx.Int("entries", n))
	}
	return sup.Stop(ctx)
}

// Publish sends a fresh report to `to` and keeps it updated.
// A previous report of the same target stops being updated.
func (s *Scheduler) Publish(ctx context.Context, targetID string, to transport.ChatTarget, set Settings) (Pointer, error) {
	p, err := s.publish(ctx, targetID, to, set)
	s.metrics.publish(err)
	return p, err
}

func (s *Scheduler) publish(ctx context.Context, targetID string, to transport.ChatTarget, set Settings) (Pointer, error) {
	if strings.TrimSpace(targetID) == "" || to.ChatID == 0 {
		return Pointer{}, fmt.Errorf("%w: empty broadcast target", ErrInvalidSettings)
	}
	if err := set.Validate(); err != nil {
		return Pointer{}, err
	}
	set = set.Normalize()
	if err := s.registry.checkActive(); err != nil {
		return Pointer{}, err
	}

	now := s.now()
	records, err := s.fetch(ctx, set)
	if err != nil {
		return Pointer{}, fmt.Errorf("fetch service records: %w", err)
	}
	img, err := s.renderChart(ctx, records, set)
	if err != nil {
		return Pointer{}, fmt.Errorf("render chart: %w", err)
	}
	report := transport.Report{
		Embed:     s.renderer.RenderText(Aggregate(records, now), set, now),
		Image:     img,
		ImageName: ChartFileName,
	}

	sctx, cancel := context.WithTimeout(ctx, set.CallTimeout)
	ref, err := s.channel.SendReport(sctx, to, report)
	cancel()
	if err != nil {
		return Pointer{}, fmt.Errorf("send report: %w", err)
	}
	if ref.ChatID == 0 {
		ref.ChatID, ref.ThreadID = to.ChatID, to.ThreadID
	}

	p := Pointer{TargetID: targetID, ChatID: ref.ChatID, ThreadID: ref.ThreadID, MessageID: ref.MessageID, PublishedAt: now}
	uctx, cancel := context.WithTimeout(ctx, set.CallTimeout)
	err = s.store.Upsert(uctx, targetID, p)
	cancel()
	if err != nil {
		return p, fmt.Errorf("save report pointer: %w", err)
	}

	if _, err := s.launch(p, set, now); err != nil {
		return p, err
	}
	s.log.Info("report published", logx.String("target", targetID), logx.Int64("chat_id", p.ChatID), logx.Int("message_id", p.MessageID))
	s.emit(EventPublished, p, "")
	return p, nil
}

// Watch starts updating an already published report. Its first tick
// regenerates the chart.
func (s *Scheduler) Watch(p Pointer, set Settings) error {
	if err := set.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(p.TargetID) == "" || p.MessageID == 0 {
		return fmt.Errorf("%w: incomplete report pointer", ErrInvalidSettings)
	}
	_, err := s.launch(p, set.Normalize(), time.Time{})
	return err
}

// Resume watches every stored pointer. Reports whose message is gone are
// dropped on their first tick.
func (s *Scheduler) Resume(ctx context.Context, set Settings) (int, error) {
	if err := s.registry.checkActive(); err != nil {
		return 0, err
	}
	ptrs, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list report pointers: %w", err)
	}
	n := 0
	for _, p := range ptrs {
		if err := s.Watch(p, set); err != nil {
			s.log.Warn("resume report failed", logx.String("target", p.TargetID), logx.Err(err))
			continue
		}
		n++
	}
	if n > 0 {
		s.log.Info("resumed reports", logx.Int("count", n))
	}
	return n, nil
}

// Unpublish stops updating the target's report and forgets its pointer.
func (s *Scheduler) Unpublish(ctx context.Context, targetID string) (bool, error) {
	s.mu.Lock()
	e := s.byTarget[targetID]
	s.mu.Unlock()
	if e == nil {
		return false, nil
	}
	e.Cancel()
	if err := s.store.DeleteByTargetAndMessage(ctx, targetID, e.ref.MessageID); err != nil {
		return true, fmt.Errorf("delete report pointer: %w", err)
	}
	return true, nil
}

func (s *Scheduler) launch(p Pointer, set Settings, lastChart time.Time) (*entry, error) {
	s.mu.Lock()
	sup := s.sup
	if sup == nil {
		s.mu.Unlock()
		if err := s.registry.checkActive(); err != nil {
			return nil, err
		}
		return nil, ErrNotStarted
	}
	ctx, cancel := context.WithCancel(sup.Context())
	e := &entry{
		id:            uuid.NewString(),
		targetID:      p.TargetID,
		ref:           transport.MessageRef{ChatID: p.ChatID, ThreadID: p.ThreadID, MessageID: p.MessageID},
		settings:      set,
		chartInterval: set.ChartInterval + s.jitter(set.ChartInterval),
		lastChartAt:   lastChart,
		cancel:        cancel,
		onStop:        s.stopped,
	}
	if err := s.registry.Register(e); err != nil {
		s.mu.Unlock()
		cancel()
		return nil, err
	}
	prev := s.byTarget[p.TargetID]
	s.byTarget[p.TargetID] = e
	s.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}

	s.metrics.entryStarted()
	sup.GoWith(ctx, "status.entry."+p.TargetID, func(ctx context.Context) error {
		defer s.metrics.entryEnded()
		s.run(ctx, e)
		return nil
	})
	s.log.Debug("report loop started", logx.String("target", e.targetID), logx.String("entry", e.id),
		logx.Duration("refresh", set.RefreshInterval), logx.Duration("chart_every", e.chartInterval))
	return e, nil
}

func (s *Scheduler) run(ctx context.Context, e *entry) {
	timer := time.NewTimer(e.settings.RefreshInterval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		s.metrics.tick(s.tick(ctx, e))
		if !e.active() {
			return
		}
		timer.Reset(e.settings.RefreshInterval)
	}
}

// tick performs one update. After every suspension point it re-checks that
// the entry is still active and drops its results otherwise.
func (s *Scheduler) tick(ctx context.Context, e *entry) tickResult {
	log := s.log.With(logx.String("target", e.targetID), logx.Int("message_id", e.ref.MessageID), logx.String("entry", e.id))
	now := s.now()

	records, err := s.fetch(ctx, e.settings)
	if !e.active() {
		return tickCanceled
	}
	if err != nil {
		log.Warn("fetch service records failed", logx.Err(err))
		return tickSkipped
	}

	report := transport.Report{Embed: s.renderer.RenderText(Aggregate(records, now), e.settings, now)}
	if e.chartDue(now) {
		img, err := s.renderChart(ctx, records, e.settings)
		if !e.active() {
			return tickCanceled
		}
		if err != nil {
			log.Warn("chart render failed; keeping previous image", logx.Err(err))
		} else {
			report.Image = img
			report.ImageName = ChartFileName
			e.lastChartAt = now
		}
	}

	pctx, cancel := context.WithTimeout(ctx, e.settings.CallTimeout)
	err = s.channel.EditReport(pctx, e.ref, report)
	cancel()
	if !e.active() {
		return tickCanceled
	}

	if err != nil {
		switch transport.KindOf(err) {
		case transport.KindTargetGone:
			s.orphan(e, err)
			return tickOrphaned
		case transport.KindNotModified:
		default:
			log.Warn("report update failed", logx.Err(err))
			return tickFailed
		}
	}

	tctx, cancel := context.WithTimeout(ctx, e.settings.CallTimeout)
	if err := s.store.Touch(tctx, e.targetID, e.ref.MessageID, now); err != nil && e.active() {
		log.Debug("refresh report pointer failed", logx.Err(err))
	}
	cancel()
	return tickOK
}

// orphan handles a report whose message disappeared: the loop ends and the
// stored pointer is removed.
func (s *Scheduler) orphan(e *entry, cause error) {
	if !e.transition(entryOrphaned) {
		return
	}
	s.detach(e)

	ctx, cancel := context.WithTimeout(context.Background(), e.settings.CallTimeout)
	defer cancel()
	log := s.log.With(logx.String("target", e.targetID), logx.Int("message_id", e.ref.MessageID))
	if err := s.store.DeleteByTargetAndMessage(ctx, e.targetID, e.ref.MessageID); err != nil {
		log.Error("delete orphaned report pointer failed", logx.Err(err))
	}
	log.Info("report message gone; stopped updating", logx.Err(cause))
	s.metrics.orphan()
	s.emit(EventOrphaned, e.pointer(), "message not found")
}

func (s *Scheduler) stopped(e *entry) {
	s.detach(e)
	s.emit(EventStopped, e.pointer(), "")
}

func (s *Scheduler) detach(e *entry) {
	s.mu.Lock()
	if s.byTarget[e.targetID] == e {
		delete(s.byTarget, e.targetID)
	}
	s.mu.Unlock()
	s.registry.Unregister(e)
}

func (s *Scheduler) fetch(ctx context.Context, set Settings) ([]ServiceRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, set.CallTimeout)
	defer cancel()
	return s.source.ListServices(ctx)
}

func (s *Scheduler) renderChart(ctx context.Context, records []ServiceRecord, set Settings) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, set.CallTimeout)
	defer cancel()
	img, err := s.chart(ctx, records, set, ChartKindStatus)
	if err == nil && len(img) == 0 {
		err = errors.New("chart renderer returned no image")
	}
	s.metrics.chart(err == nil)
	return img, err
}

func (s *Scheduler) emit(typ string, p Pointer, reason string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: Event{TargetID: p.TargetID, ChatID: p.ChatID, MessageID: p.MessageID, Reason: reason}})
}

func (e *entry) pointer() Pointer {
	return Pointer{TargetID: e.targetID, ChatID: e.ref.ChatID, ThreadID: e.ref.ThreadID, MessageID: e.ref.MessageID}
}
