package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Submission input errors wrap ErrValidation. The artifact errors are raised
// while a stage loads the file and do not.
var (
	ErrEmptyArtifactRef     = fmt.Errorf("%w: artifact reference cannot be empty", ErrValidation)
	ErrEmptyQuestionnaire   = fmt.Errorf("%w: questionnaire must contain at least one answer", ErrValidation)
	ErrDuplicateAnswer      = fmt.Errorf("%w: questionnaire answers a question more than once", ErrValidation)
	ErrEmptyQuestionID      = fmt.Errorf("%w: questionnaire answer is missing a question ID", ErrValidation)
	ErrArtifactTooLarge     = errors.New("artifact exceeds the maximum size")
	ErrUnsupportedMediaType = errors.New("artifact media type is not supported")
)

// Artifact is a loaded input file, typically an image.
type Artifact struct {
	Ref      string
	MIMEType string
	Data     []byte
}

// Observation is one attribute a recognition unit reported for an artifact.
type Observation struct {
	Name       string  `json:"name"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// RecognizedArtifact is the output of the recognition stage.
type RecognizedArtifact struct {
	Label        string        `json:"label"`
	Observations []Observation `json:"observations"`
}

// Empty reports whether nothing usable was recognized.
func (r *RecognizedArtifact) Empty() bool {
	return r == nil || len(r.Observations) == 0
}

// FeatureScore is one scored feature on a 0-100 scale.
type FeatureScore struct {
	Name        string  `json:"name"`
	Title       string  `json:"title,omitempty"`
	Score       float64 `json:"score"`
	Level       string  `json:"level"`
	Description string  `json:"description,omitempty"`
}

// ScoredFeatures is the output of feature evaluation or questionnaire scoring.
type ScoredFeatures struct {
	Scores []FeatureScore `json:"scores"`
}

// Empty reports whether no feature received a score.
func (s *ScoredFeatures) Empty() bool {
	return s == nil || len(s.Scores) == 0
}

// Answer is a single questionnaire response.
type Answer struct {
	QuestionID string `json:"question_id" validate:"required"`
	Value      string `json:"value" validate:"required"`
}

// Questionnaire is a completed questionnaire submitted for scoring.
type Questionnaire struct {
	ID      string   `json:"id" validate:"required"`
	Answers []Answer `json:"answers" validate:"required,min=1,dive"`
}

// Validate checks the questionnaire structure.
func (q *Questionnaire) Validate() error {
	if q == nil || len(q.Answers) == 0 {
		return ErrEmptyQuestionnaire
	}

	seen := make(map[string]struct{}, len(q.Answers))
	for _, a := range q.Answers {
		id := strings.TrimSpace(a.QuestionID)
		if id == "" {
			return ErrEmptyQuestionID
		}
		if _, dup := seen[id]; dup {
			return ErrDuplicateAnswer
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Options are caller-supplied generation options.
type Options struct {
	// Language of the narrative, e.g. "en".
	Language string `json:"language,omitempty"`
	// Detail is "brief" or "full".
	Detail string `json:"detail,omitempty" validate:"omitempty,oneof=brief full"`
}

// WithDefaults fills unset options.
func (o Options) WithDefaults() Options {
	if o.Language == "" {
		o.Language = "en"
	}
	if o.Detail == "" {
		o.Detail = "full"
	}
	return o
}
