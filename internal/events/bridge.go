package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phrazzld/scry-reports/internal/domain"
	"github.com/phrazzld/scry-reports/internal/pipeline"
	"github.com/phrazzld/scry-reports/internal/task"
)

// DefaultBridgeBuffer is the number of events a Bridge queues before it
// starts dropping.
const DefaultBridgeBuffer = 256

// DefaultTerminalWait bounds how long a terminal event waits for buffer space.
const DefaultTerminalWait = 15 * time.Second

// Bridge is a scheduler listener that converts stage callbacks to events and
// emits them from its own goroutine, so slow handlers never hold a worker.
// Stage events are dropped with a warning when the buffer is full. Terminal
// events wait for space instead, up to terminalWait.
type Bridge struct {
	emitter      Emitter
	logger       *slog.Logger
	now          func() time.Time
	terminalWait time.Duration

	mu      sync.RWMutex
	closed  bool
	queue   chan *ReportEvent
	done    chan struct{}
	dropped atomic.Int64
}

var _ task.Listener = (*Bridge)(nil)

// NewBridge creates a Bridge and starts its delivery goroutine. A buffer
// below one uses DefaultBridgeBuffer.
func NewBridge(emitter Emitter, buffer int, logger *slog.Logger) *Bridge {
	if buffer < 1 {
		buffer = DefaultBridgeBuffer
	}
	b := &Bridge{
		emitter:      emitter,
		logger:       logger.With("component", "event_bridge"),
		now:          time.Now,
		terminalWait: DefaultTerminalWait,
		queue:        make(chan *ReportEvent, buffer),
		done:         make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Bridge) run() {
	defer close(b.done)
	for event := range b.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := b.emitter.EmitEvent(ctx, event); err != nil {
			b.logger.Warn("failed to emit report event",
				"error", err,
				"event_type", event.Type,
				"sn", event.SN)
		}
		cancel()
	}
}

// Close stops accepting events and waits until queued ones are delivered or
// ctx is done.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (b *Bridge) Dropped() int {
	return int(b.dropped.Load())
}

// enqueue holds the read lock while sending so Close cannot close the queue
// under a blocked terminal send.
func (b *Bridge) enqueue(typ Type, phase pipeline.Phase, r *domain.Report, state domain.ReportState) {
	event := NewReportEvent(typ, string(phase), r, state, b.now())

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.queue <- event:
		return
	default:
	}

	if event.Terminal {
		timer := time.NewTimer(b.terminalWait)
		defer timer.Stop()
		select {
		case b.queue <- event:
			return
		case <-timer.C:
		}
	}

	b.dropped.Add(1)
	b.logger.Warn("event buffer full, dropping report event",
		"event_type", typ,
		"sn", event.SN,
		"terminal", event.Terminal)
}

func (b *Bridge) OnPredicting(r *domain.Report) {
	b.enqueue(TypeStageStarted, pipeline.PhasePredict, r, r.State())
}

func (b *Bridge) OnPredictCompleted(r *domain.Report) {
	b.enqueue(TypeStageCompleted, pipeline.PhasePredict, r, r.State())
}

func (b *Bridge) OnPredictFailed(r *domain.Report, state domain.ReportState) {
	b.enqueue(TypeStageFailed, pipeline.PhasePredict, r, state)
}

func (b *Bridge) OnEvaluating(r *domain.Report) {
	b.enqueue(TypeStageStarted, pipeline.PhaseEvaluate, r, r.State())
}

func (b *Bridge) OnEvaluateCompleted(r *domain.Report) {
	b.enqueue(TypeStageCompleted, pipeline.PhaseEvaluate, r, r.State())
}

func (b *Bridge) OnEvaluateFailed(r *domain.Report, state domain.ReportState) {
	b.enqueue(TypeStageFailed, pipeline.PhaseEvaluate, r, state)
}

func (b *Bridge) OnScoring(r *domain.Report) {
	b.enqueue(TypeStageStarted, pipeline.PhaseScore, r, r.State())
}

func (b *Bridge) OnScoreCompleted(r *domain.Report) {
	b.enqueue(TypeStageCompleted, pipeline.PhaseScore, r, r.State())
}

func (b *Bridge) OnScoreFailed(r *domain.Report, state domain.ReportState) {
	b.enqueue(TypeStageFailed, pipeline.PhaseScore, r, state)
}
