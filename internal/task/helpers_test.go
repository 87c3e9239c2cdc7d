package task

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/scry-reports/internal/domain"
	"github.com/phrazzld/scry-reports/internal/pipeline"
	"github.com/phrazzld/scry-reports/internal/store"
	"github.com/phrazzld/scry-reports/internal/telemetry"
	"github.com/phrazzld/scry-reports/internal/unit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryStore is a ReportStore that keeps snapshots in memory.
type memoryStore struct {
	mu      sync.Mutex
	reports map[string]domain.ReportSnapshot
	saves   int
	err     error
}

var _ store.ReportStore = (*memoryStore)(nil)

func newMemoryStore() *memoryStore {
	return &memoryStore{reports: make(map[string]domain.ReportSnapshot)}
}

func (s *memoryStore) Save(_ context.Context, r *domain.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saves++
	if s.err != nil {
		return s.err
	}
	s.reports[r.SN()] = r.Snapshot()
	return nil
}

func (s *memoryStore) Get(_ context.Context, sn string) (*domain.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.reports[sn]
	if !ok {
		return nil, store.ErrReportNotFound
	}
	return domain.RestoreReport(snap)
}

func (s *memoryStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// recordingListener records every callback as "sn:callback[:state]".
type recordingListener struct {
	mu     sync.Mutex
	events []string
	states []domain.ReportState
}

var _ Listener = (*recordingListener)(nil)

func (l *recordingListener) add(r *domain.Report, name string, state domain.ReportState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	event := r.SN() + ":" + name
	if state != "" {
		event += ":" + string(state)
	}
	l.events = append(l.events, event)
	l.states = append(l.states, r.State())
}

func (l *recordingListener) OnPredicting(r *domain.Report) { l.add(r, "predicting", "") }
func (l *recordingListener) OnPredictCompleted(r *domain.Report) { l.add(r, "predict_completed", "") }
func (l *recordingListener) OnPredictFailed(r *domain.Report, s domain.ReportState) {
	l.add(r, "predict_failed", s)
}
func (l *recordingListener) OnEvaluating(r *domain.Report) { l.add(r, "evaluating", "") }
func (l *recordingListener) OnEvaluateCompleted(r *domain.Report) { l.add(r, "evaluate_completed", "") }
func (l *recordingListener) OnEvaluateFailed(r *domain.Report, s domain.ReportState) {
	l.add(r, "evaluate_failed", s)
}
func (l *recordingListener) OnScoring(r *domain.Report) { l.add(r, "scoring", "") }
func (l *recordingListener) OnScoreCompleted(r *domain.Report) { l.add(r, "score_completed", "") }
func (l *recordingListener) OnScoreFailed(r *domain.Report, s domain.ReportState) {
	l.add(r, "score_failed", s)
}

func (l *recordingListener) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// gate is a stage body that blocks until released and tracks concurrency.
type gate struct {
	mu        sync.Mutex
	active    int
	maxActive int
	order     []string
	release   chan struct{}
}

func newGate() *gate {
	return &gate{release: make(chan struct{})}
}

func openGate() *gate {
	g := newGate()
	close(g.release)
	return g
}

func (g *gate) run(ctx context.Context, _ *unit.Unit, r *domain.Report, in pipeline.Input) error {
	g.mu.Lock()
	g.active++
	if g.active > g.maxActive {
		g.maxActive = g.active
	}
	g.order = append(g.order, in.ArtifactRef)
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.active--
		g.mu.Unlock()
	}()

	select {
	case <-g.release:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.SetNarrative("narrative", "# Report\n\nnarrative\n")
	return nil
}

func (g *gate) stats() (active, maxActive int, order []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active, g.maxActive, append([]string(nil), g.order...)
}

// singleStagePipeline builds an artifact pipeline with one predictor stage.
func singleStagePipeline(run pipeline.RunFunc) *pipeline.Pipeline {
	return &pipeline.Pipeline{
		Kind: domain.ReportKindArtifact,
		Stages: []pipeline.Stage{{
			Name:         "work",
			State:        domain.ReportStatePredicting,
			Phase:        pipeline.PhasePredict,
			Capability:   unit.CapabilityPredictor,
			DefaultCause: domain.ReportStateUnitError,
			Run:          run,
		}},
	}
}

func registryWith(t *testing.T, capability string, n int) *unit.Registry {
	t.Helper()

	r := unit.NewRegistry()
	for i := 0; i < n; i++ {
		_, err := r.Register(capability, fmt.Sprintf("%s-%d", capability, i))
		require.NoError(t, err)
	}
	return r
}

func newTestDispatcher(
	t *testing.T,
	registry *unit.Registry,
	reports store.ReportStore,
	pipelines []*pipeline.Pipeline,
	opts ...Option,
) *Dispatcher {
	t.Helper()

	alloc := unit.NewAllocator(registry,
		unit.WithSleeper(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
		unit.WithLogger(discardLogger()))

	opts = append([]Option{
		WithLogger(discardLogger()),
		WithMetrics(telemetry.New(prometheus.NewRegistry())),
	}, opts...)

	d, err := NewDispatcher(pipelines, registry, alloc, reports, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Shutdown(ctx)
	})
	return d
}

func artifactRequest(ref string) Request {
	return Request{OwnerID: "owner-1", Kind: domain.ReportKindArtifact, ArtifactRef: ref}
}

func waitReport(t *testing.T, f *Future) *domain.Report {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r, err := f.Wait(ctx)
	require.NoError(t, err)
	return r
}
