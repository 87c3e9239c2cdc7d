package task

import (
	"context"
	"testing"
	"time"

	"github.com/phrazzld/scry-reports/internal/domain"
	"github.com/phrazzld/scry-reports/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panickingListener struct{ BaseListener }

func (panickingListener) OnScoreCompleted(*domain.Report) { panic("listener bug") }

func TestTask_FinishOnce(t *testing.T) {
	t.Parallel()

	r, err := domain.NewReport("owner", domain.ReportKindQuestionnaire, time.Now())
	require.NoError(t, err)

	l := &recordingListener{}
	req := Request{OwnerID: "owner", Kind: domain.ReportKindQuestionnaire, Listener: panickingListener{}}
	task := newTask(r, req, []Listener{l}, discardLogger(), time.Now())
	f := &Future{task: task}

	persisted := 0
	assert.True(t, task.finish(domain.ReportStateCompleted, time.Now(), pipeline.PhaseScore, func() { persisted++ }))
	assert.False(t, task.finish(domain.ReportStateStopped, time.Now(), pipeline.PhaseScore, func() { persisted++ }))

	got, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ReportStateCompleted, got.State())
	assert.Equal(t, 1, persisted)
	assert.Equal(t, []string{r.SN() + ":score_completed"}, l.snapshot(),
		"a panicking listener does not block the others")
}

func TestFuture_WaitHonoursContext(t *testing.T) {
	t.Parallel()

	r, err := domain.NewReport("owner", domain.ReportKindArtifact, time.Now())
	require.NoError(t, err)
	f := &Future{task: newTask(r, artifactRequest("a"), nil, discardLogger(), time.Now())}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = f.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Same(t, r, f.Report())
}

func TestRequest_Validate(t *testing.T) {
	t.Parallel()

	valid := []Request{
		artifactRequest("s3://bucket/a.png"),
		{
			OwnerID:       "owner",
			Kind:          domain.ReportKindQuestionnaire,
			Questionnaire: &domain.Questionnaire{ID: "q", Answers: []domain.Answer{{QuestionID: "sleep", Value: "poor"}}},
			Options:       domain.Options{Detail: "brief", Language: "de"},
		},
	}
	for _, req := range valid {
		assert.NoError(t, req.validate())
	}

	dup := Request{
		OwnerID: "owner",
		Kind:    domain.ReportKindQuestionnaire,
		Questionnaire: &domain.Questionnaire{ID: "q", Answers: []domain.Answer{
			{QuestionID: "sleep", Value: "poor"},
			{QuestionID: "sleep", Value: "good"},
		}},
	}
	err := dup.validate()
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, err, domain.ErrDuplicateAnswer)
}
