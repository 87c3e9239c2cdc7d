package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phrazzld/scry-reports/internal/domain"
	"github.com/phrazzld/scry-reports/internal/pipeline"
	"github.com/phrazzld/scry-reports/internal/redact"
	"github.com/phrazzld/scry-reports/internal/store"
	"github.com/phrazzld/scry-reports/internal/telemetry"
	"github.com/phrazzld/scry-reports/internal/unit"
)

// Dispatcher is the report scheduler. Construct one per process and share it.
type Dispatcher struct {
	pipelines map[domain.ReportKind]*pipeline.Pipeline
	queues    map[domain.ReportKind]*kindQueue
	registry  *unit.Registry
	allocator *unit.Allocator
	cache     *ReportCache
	reports   store.ReportStore
	metrics   *telemetry.Metrics
	observers []Listener
	logger    *slog.Logger
	now       func() time.Time

	// lifecycle guards closed against worker spawning, so wg.Add never
	// races Shutdown's wg.Wait.
	lifecycle sync.RWMutex
	closed    atomic.Bool
	wg        sync.WaitGroup
	baseCtx   context.Context
	cancel    context.CancelFunc
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics records scheduler metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithObserver adds a listener that receives the callbacks of every report.
func WithObserver(l Listener) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.observers = append(d.observers, l)
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithRetention sets the cache retention.
func WithRetention(retention time.Duration) Option {
	return func(d *Dispatcher) { d.cache = NewReportCache(retention) }
}

// WithLogger sets the dispatcher logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher creates a dispatcher for the given pipelines. reports may be
// nil, in which case nothing is persisted and Get only consults the cache.
func NewDispatcher(
	pipelines []*pipeline.Pipeline,
	registry *unit.Registry,
	allocator *unit.Allocator,
	reports store.ReportStore,
	opts ...Option,
) (*Dispatcher, error) {
	if registry == nil || allocator == nil {
		return nil, errors.New("dispatcher requires a unit registry and allocator")
	}
	if len(pipelines) == 0 {
		return nil, errors.New("dispatcher requires at least one pipeline")
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		pipelines: make(map[domain.ReportKind]*pipeline.Pipeline, len(pipelines)),
		queues:    make(map[domain.ReportKind]*kindQueue, len(pipelines)),
		registry:  registry,
		allocator: allocator,
		cache:     NewReportCache(DefaultRetention),
		reports:   reports,
		logger:    slog.Default(),
		now:       time.Now,
		baseCtx:   ctx,
		cancel:    cancel,
	}

	for _, p := range pipelines {
		if p == nil || len(p.Stages) == 0 {
			cancel()
			return nil, errors.New("pipeline must have at least one stage")
		}
		if _, dup := d.pipelines[p.Kind]; dup {
			cancel()
			return nil, fmt.Errorf("duplicate pipeline for kind %q", p.Kind)
		}
		d.pipelines[p.Kind] = p
		d.queues[p.Kind] = newKindQueue()
	}

	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dispatcher")
	return d, nil
}

// Submit creates a queued report for req and returns immediately. A worker
// is started when the kind has fewer workers than live units of its primary
// capability. The check is best-effort: units registered after the last
// submission are only used once another report is submitted.
func (d *Dispatcher) Submit(ctx context.Context, req Request) (*Future, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	p, ok := d.pipelines[req.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: no pipeline for kind %q", ErrInvalidRequest, req.Kind)
	}

	d.lifecycle.RLock()
	defer d.lifecycle.RUnlock()

	if d.closed.Load() {
		return nil, ErrDispatcherClosed
	}

	now := d.now()
	report, err := domain.NewReport(req.OwnerID, req.Kind, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	t := newTask(report, req, d.observers, d.logger, now)
	d.cache.Put(report)

	q := d.queues[req.Kind]
	q.push(t)

	capacity := d.registry.LiveCount(p.PrimaryCapability())
	spawned := q.trySpawn(capacity)
	if spawned {
		d.wg.Add(1)
		go d.work(req.Kind, q)
	}

	d.metrics.ReportSubmitted(string(req.Kind))
	d.recordQueue(req.Kind, q)
	d.metrics.CacheState(d.cache.Len(), 0)

	d.logger.InfoContext(ctx, "report submitted",
		"sn", report.SN(),
		"kind", req.Kind,
		"owner_id", req.OwnerID,
		"capacity", capacity,
		"worker_spawned", spawned)

	return &Future{task: t}, nil
}

// GetQueuePosition returns the 1-based pending position of sn, or -1 when the
// report is not pending.
func (d *Dispatcher) GetQueuePosition(sn string) int {
	for _, q := range d.queues {
		if pos := q.position(sn); pos > 0 {
			return pos
		}
	}
	return -1
}

// Cancel stops a pending report. Running reports cannot be cancelled
// (ErrReportRunning); finished ones return ErrReportFinished.
func (d *Dispatcher) Cancel(ctx context.Context, sn string) (*domain.Report, error) {
	for kind, q := range d.queues {
		t, ok := q.remove(sn)
		if !ok {
			continue
		}

		d.stop(kind, t)
		d.recordQueue(kind, q)
		d.logger.InfoContext(ctx, "pending report cancelled", "sn", sn, "kind", kind)
		return t.report, nil
	}

	// A cached report that is not pending has been taken by a worker.
	if r := d.cache.Get(sn); r != nil {
		if r.Finished() {
			return nil, ErrReportFinished
		}
		return nil, ErrReportRunning
	}

	for _, q := range d.queues {
		if q.running(sn) {
			return nil, ErrReportRunning
		}
	}

	if _, err := d.Get(ctx, sn); err == nil {
		return nil, ErrReportFinished
	}
	return nil, ErrReportNotFound
}

// Get returns the report from the cache, falling back to the store.
func (d *Dispatcher) Get(ctx context.Context, sn string) (*domain.Report, error) {
	if r := d.cache.Get(sn); r != nil {
		return r, nil
	}
	if d.reports == nil {
		return nil, ErrReportNotFound
	}

	r, err := d.reports.Get(ctx, sn)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to load report: %w", err)
	}
	return r, nil
}

// Tick runs the cache retention sweep and returns the number of evicted reports.
func (d *Dispatcher) Tick(now time.Time) int {
	evicted := d.cache.Sweep(now)
	d.metrics.CacheState(d.cache.Len(), evicted)
	if evicted > 0 {
		d.logger.Info("evicted expired reports from cache",
			"evicted", evicted,
			"remaining", d.cache.Len())
	}
	return evicted
}

// Stats is a snapshot of the scheduler.
type Stats struct {
	Kinds         map[domain.ReportKind]KindStats `json:"kinds"`
	CachedReports int                             `json:"cached_reports"`
}

// Stats returns per-kind queue counts.
func (d *Dispatcher) Stats() Stats {
	s := Stats{
		Kinds:         make(map[domain.ReportKind]KindStats, len(d.queues)),
		CachedReports: d.cache.Len(),
	}
	for kind, q := range d.queues {
		s.Kinds[kind] = q.stats()
	}
	return s
}

// Shutdown stops accepting submissions and stops every pending report.
// Running reports finish normally; when ctx ends first their stage calls are
// cancelled and Shutdown returns ctx.Err() once the workers exit.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.lifecycle.Lock()
	alreadyClosed := d.closed.Swap(true)
	d.lifecycle.Unlock()

	if alreadyClosed {
		return nil
	}

	for kind, q := range d.queues {
		for _, t := range q.drain() {
			d.stop(kind, t)
		}
		d.recordQueue(kind, q)
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		d.logger.Info("dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.logger.Warn("shutdown deadline reached, cancelling running reports")
		d.cancel()
		<-done
		return ctx.Err()
	}
}

// stop finishes a task that never reached a worker.
func (d *Dispatcher) stop(kind domain.ReportKind, t *Task) {
	if t.finish(domain.ReportStateStopped, d.now(), d.pipelines[kind].FirstPhase(), nil) {
		d.metrics.ReportFinished(string(kind), string(domain.ReportStateStopped), d.now().Sub(t.submittedAt))
	}
}

func (d *Dispatcher) recordQueue(kind domain.ReportKind, q *kindQueue) {
	s := q.stats()
	d.metrics.QueueState(string(kind), s.Pending, s.InFlight, s.Workers)
}

func (d *Dispatcher) persist(ctx context.Context, r *domain.Report) {
	if d.reports == nil {
		return
	}
	if err := d.reports.Save(ctx, r); err != nil {
		d.metrics.PersistFailed()
		d.logger.ErrorContext(ctx, "failed to persist report",
			"sn", r.SN(),
			"state", r.State(),
			"error", redact.Error(err))
	}
}
