package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/phrazzld/scry-reports/internal/domain"
	"github.com/phrazzld/scry-reports/internal/generation"
	"github.com/phrazzld/scry-reports/internal/narrative"
	"github.com/phrazzld/scry-reports/internal/unit"
)

// Stage names
const (
	StagePredict  = "predict"
	StageEvaluate = "evaluate"
	StageNarrate  = "narrate"
	StageScore    = "score"
)

// ArtifactSource loads an artifact by reference.
type ArtifactSource interface {
	Open(ctx context.Context, ref string) (*domain.Artifact, error)
}

// FeatureEvaluator scores recognized artifact observations.
type FeatureEvaluator interface {
	Evaluate(recognized *domain.RecognizedArtifact) (*domain.ScoredFeatures, error)
}

// QuestionnaireScorer scores questionnaire answers.
type QuestionnaireScorer interface {
	Score(q *domain.Questionnaire) (*domain.ScoredFeatures, error)
}

// Collaborators are the external pieces the stages call.
type Collaborators struct {
	Source     ArtifactSource
	Recognizer generation.Recognizer
	Evaluator  FeatureEvaluator
	Scorer     QuestionnaireScorer
	Narrator   generation.NarrativeGenerator
	Prompts    *narrative.PromptBuilder
}

func (c Collaborators) validate(kind domain.ReportKind) error {
	var missing []string
	if kind == domain.ReportKindArtifact {
		if c.Source == nil {
			missing = append(missing, "source")
		}
		if c.Recognizer == nil {
			missing = append(missing, "recognizer")
		}
		if c.Evaluator == nil {
			missing = append(missing, "evaluator")
		}
	} else if c.Scorer == nil {
		missing = append(missing, "scorer")
	}
	if c.Narrator == nil {
		missing = append(missing, "narrator")
	}
	if c.Prompts == nil {
		missing = append(missing, "prompts")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s pipeline is missing collaborators: %v", kind, missing)
	}
	return nil
}

// NewArtifactPipeline builds predict, evaluate and narrate.
func NewArtifactPipeline(c Collaborators) (*Pipeline, error) {
	if err := c.validate(domain.ReportKindArtifact); err != nil {
		return nil, err
	}

	return &Pipeline{
		Kind: domain.ReportKindArtifact,
		Stages: []Stage{
			{
				Name:         StagePredict,
				State:        domain.ReportStatePredicting,
				Phase:        PhasePredict,
				Capability:   unit.CapabilityPredictor,
				DefaultCause: domain.ReportStateUnitError,
				Run:          c.predict,
			},
			{
				Name:         StageEvaluate,
				State:        domain.ReportStateEvaluating,
				Phase:        PhaseEvaluate,
				DefaultCause: domain.ReportStateIllegalOperation,
				Run:          c.evaluate,
			},
			{
				Name:         StageNarrate,
				State:        domain.ReportStateNarrating,
				Phase:        PhaseEvaluate,
				Capability:   unit.CapabilityNarrator,
				DefaultCause: domain.ReportStateUnitError,
				Run:          c.narrate,
			},
		},
	}, nil
}

// NewQuestionnairePipeline builds the single scoring stage, which scores the
// answers and narrates the result.
func NewQuestionnairePipeline(c Collaborators) (*Pipeline, error) {
	if err := c.validate(domain.ReportKindQuestionnaire); err != nil {
		return nil, err
	}

	return &Pipeline{
		Kind: domain.ReportKindQuestionnaire,
		Stages: []Stage{
			{
				Name:         StageScore,
				State:        domain.ReportStateScoring,
				Phase:        PhaseScore,
				Capability:   unit.CapabilityNarrator,
				DefaultCause: domain.ReportStateUnitError,
				Run:          c.score,
			},
		},
	}, nil
}

func (c Collaborators) predict(ctx context.Context, u *unit.Unit, r *domain.Report, in Input) error {
	art, err := c.Source.Open(ctx, in.ArtifactRef)
	if err != nil {
		return err
	}

	rec, err := c.Recognizer.Recognize(ctx, u, art)
	if err != nil {
		return err
	}
	if rec.Empty() {
		return generation.ErrUnrecognized
	}

	r.SetRecognition(rec)
	return nil
}

func (c Collaborators) evaluate(_ context.Context, _ *unit.Unit, r *domain.Report, _ Input) error {
	rec := r.Recognition()
	if rec == nil {
		return Fail(StageEvaluate, domain.ReportStateIllegalOperation, errors.New("evaluation ran before recognition"))
	}

	features, err := c.Evaluator.Evaluate(rec)
	if err != nil {
		return err
	}
	if features.Empty() {
		return generation.ErrNoData
	}

	r.SetFeatures(features)
	return nil
}

func (c Collaborators) narrate(ctx context.Context, u *unit.Unit, r *domain.Report, in Input) error {
	label := ""
	var observations []domain.Observation
	if rec := r.Recognition(); rec != nil {
		label = rec.Label
		observations = rec.Observations
	}
	return c.writeNarrative(ctx, u, r, in.Options, label, observations)
}

func (c Collaborators) score(ctx context.Context, u *unit.Unit, r *domain.Report, in Input) error {
	if err := in.Questionnaire.Validate(); err != nil {
		return Fail(StageScore, domain.ReportStateInvalidData, err)
	}

	features, err := c.Scorer.Score(in.Questionnaire)
	if err != nil {
		return err
	}
	if features.Empty() {
		return generation.ErrNoData
	}
	r.SetFeatures(features)

	return c.writeNarrative(ctx, u, r, in.Options, "", nil)
}

func (c Collaborators) writeNarrative(
	ctx context.Context,
	u *unit.Unit,
	r *domain.Report,
	opts domain.Options,
	label string,
	observations []domain.Observation,
) error {
	features := r.Features()
	if features.Empty() {
		return Fail(StageNarrate, domain.ReportStateIllegalOperation, errors.New("narration ran before scoring"))
	}

	opts = opts.WithDefaults()
	prompt, err := c.Prompts.Build(narrative.PromptInput{
		Kind:         r.Kind(),
		Label:        label,
		Observations: observations,
		Scores:       features.Scores,
		Language:     opts.Language,
		Detail:       opts.Detail,
	})
	if err != nil {
		return err
	}

	text, err := c.Narrator.Generate(ctx, u, prompt)
	if err != nil {
		return err
	}

	content := narrative.Assemble(narrative.Document{
		SN:        r.SN(),
		Kind:      r.Kind(),
		Label:     label,
		Scores:    features.Scores,
		Narrative: text,
	})
	r.SetNarrative(text, content)
	return nil
}
