package task

import (
	"log/slog"

	"github.com/phrazzld/scry-reports/internal/domain"
	"github.com/phrazzld/scry-reports/internal/pipeline"
)

// Listener receives stage milestones of a report. Exactly one terminal
// callback fires per submitted report: OnEvaluateCompleted or OnScoreCompleted
// on success, or one *Failed callback carrying the terminal state.
//
// Callbacks run on the worker goroutine and should return quickly.
type Listener interface {
	OnPredicting(r *domain.Report)
	OnPredictCompleted(r *domain.Report)
	OnPredictFailed(r *domain.Report, state domain.ReportState)

	OnEvaluating(r *domain.Report)
	OnEvaluateCompleted(r *domain.Report)
	OnEvaluateFailed(r *domain.Report, state domain.ReportState)

	OnScoring(r *domain.Report)
	OnScoreCompleted(r *domain.Report)
	OnScoreFailed(r *domain.Report, state domain.ReportState)
}

// BaseListener implements Listener with no-ops. Embed it to handle only
// some callbacks.
type BaseListener struct{}

var _ Listener = BaseListener{}

func (BaseListener) OnPredicting(*domain.Report) {}
func (BaseListener) OnPredictCompleted(*domain.Report) {}
func (BaseListener) OnPredictFailed(*domain.Report, domain.ReportState) {}
func (BaseListener) OnEvaluating(*domain.Report) {}
func (BaseListener) OnEvaluateCompleted(*domain.Report) {}
func (BaseListener) OnEvaluateFailed(*domain.Report, domain.ReportState) {}
func (BaseListener) OnScoring(*domain.Report) {}
func (BaseListener) OnScoreCompleted(*domain.Report) {}
func (BaseListener) OnScoreFailed(*domain.Report, domain.ReportState) {}

// listeners fans a callback out to several listeners. A panicking listener
// is logged and skipped.
type listeners struct {
	all    []Listener
	logger *slog.Logger
}

func newListeners(logger *slog.Logger, ls ...Listener) listeners {
	if logger == nil {
		logger = slog.Default()
	}
	return listeners{all: ls, logger: logger}
}

func (ls listeners) each(r *domain.Report, fn func(Listener)) {
	for _, l := range ls.all {
		func() {
			defer func() {
				if p := recover(); p != nil {
					ls.logger.Error("report listener panicked",
						"sn", r.SN(),
						"state", r.State(),
						"panic", p)
				}
			}()
			fn(l)
		}()
	}
}

func (ls listeners) started(phase pipeline.Phase, r *domain.Report) {
	ls.each(r, func(l Listener) {
		switch phase {
		case pipeline.PhasePredict:
			l.OnPredicting(r)
		case pipeline.PhaseEvaluate:
			l.OnEvaluating(r)
		case pipeline.PhaseScore:
			l.OnScoring(r)
		}
	})
}

func (ls listeners) completed(phase pipeline.Phase, r *domain.Report) {
	ls.each(r, func(l Listener) {
		switch phase {
		case pipeline.PhasePredict:
			l.OnPredictCompleted(r)
		case pipeline.PhaseEvaluate:
			l.OnEvaluateCompleted(r)
		case pipeline.PhaseScore:
			l.OnScoreCompleted(r)
		}
	})
}

func (ls listeners) failed(phase pipeline.Phase, r *domain.Report, state domain.ReportState) {
	ls.each(r, func(l Listener) {
		switch phase {
		case pipeline.PhasePredict:
			l.OnPredictFailed(r, state)
		case pipeline.PhaseEvaluate:
			l.OnEvaluateFailed(r, state)
		case pipeline.PhaseScore:
			l.OnScoreFailed(r, state)
		}
	})
}
