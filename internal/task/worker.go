package task

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/phrazzld/scry-reports/internal/domain"
	"github.com/phrazzld/scry-reports/internal/pipeline"
	"github.com/phrazzld/scry-reports/internal/redact"
	"github.com/phrazzld/scry-reports/internal/unit"
)

// work drains the queue of one kind. The worker exits when the queue is
// empty or the dispatcher is closed.
func (d *Dispatcher) work(kind domain.ReportKind, q *kindQueue) {
	defer d.wg.Done()

	log := d.logger.With("kind", kind)
	log.Debug("worker started")

	for {
		if d.closed.Load() {
			q.retire()
			d.recordQueue(kind, q)
			log.Debug("worker stopped, dispatcher closed")
			return
		}

		t, ok := q.next()
		if !ok {
			d.recordQueue(kind, q)
			log.Debug("worker exiting, queue empty")
			return
		}
		d.recordQueue(kind, q)

		d.execute(d.pipelines[kind], q, t)
		d.recordQueue(kind, q)
	}
}

// execute runs every stage of p for t and finishes the report exactly once.
// t leaves the in-flight set before finish, so a caller woken by the Future
// never sees its report counted as running.
func (d *Dispatcher) execute(p *pipeline.Pipeline, q *kindQueue, t *Task) {
	ctx := d.baseCtx
	r := t.report
	log := d.logger.With("sn", r.SN(), "kind", p.Kind)

	var phase pipeline.Phase
	fail := func(state domain.ReportState) {
		q.finished(t)
		if t.finish(state, d.now(), phase, nil) {
			d.metrics.ReportFinished(string(p.Kind), string(state), d.now().Sub(t.submittedAt))
		}
	}

	for _, s := range p.Stages {
		if s.Phase != phase {
			if phase != "" {
				t.listeners.completed(phase, r)
			}
			phase = s.Phase
			r.Transition(s.State, d.now())
			t.listeners.started(phase, r)
		} else {
			r.Transition(s.State, d.now())
		}

		started := d.now()
		err := d.runStage(ctx, s, t)
		d.metrics.StageCompleted(s.Name, d.now().Sub(started))

		if err != nil {
			state := pipeline.Classify(s, err)
			log.WarnContext(ctx, "report stage failed",
				"stage", s.Name,
				"state", state,
				"error", redact.Error(err))
			fail(state)
			return
		}
		log.DebugContext(ctx, "report stage completed", "stage", s.Name)
	}

	r.Transition(domain.ReportStatePersisting, d.now())

	final := domain.ReportStateCompleted
	if r.Content() == "" {
		final = domain.ReportStateFailure
	}

	q.finished(t)
	if t.finish(final, d.now(), phase, func() { d.persist(ctx, r) }) {
		d.metrics.ReportFinished(string(p.Kind), string(final), d.now().Sub(t.submittedAt))
		log.InfoContext(ctx, "report finished",
			"state", final,
			"elapsed", d.now().Sub(t.submittedAt))
	}
}

// runStage acquires a unit when the stage needs one and runs it. A panicking
// stage is reported as an illegal operation.
func (d *Dispatcher) runStage(ctx context.Context, s pipeline.Stage, t *Task) (err error) {
	var u *unit.Unit
	if s.Capability != "" {
		acquired, ok := d.allocator.Acquire(ctx, s.Capability)
		if !ok {
			return pipeline.Fail(s.Name, domain.ReportStateUnitError,
				fmt.Errorf("no %s unit available", s.Capability))
		}
		u = acquired
		defer u.Release()
	}

	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("report stage panicked",
				"sn", t.SN(),
				"stage", s.Name,
				"panic", p,
				"stack", string(debug.Stack()))
			err = pipeline.Fail(s.Name, domain.ReportStateIllegalOperation,
				fmt.Errorf("stage panicked: %v", p))
		}
	}()

	return s.Run(ctx, u, t.report, t.input)
}
