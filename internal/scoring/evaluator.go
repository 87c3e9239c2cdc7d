package scoring

import (
	"errors"
	"math"
	"strings"

	"github.com/phrazzld/scry-reports/internal/domain"
)

// ErrNilInput is returned when there is nothing to score.
var ErrNilInput = errors.New("nothing to score")

// Evaluator applies a RuleSet. It is safe for concurrent use.
type Evaluator struct {
	rules *RuleSet
}

// NewEvaluator creates an evaluator over the rule set.
func NewEvaluator(rules *RuleSet) *Evaluator {
	return &Evaluator{rules: rules}
}

// Evaluate scores recognized observations. Observation matches are weighted
// by their confidence. Features with no matching signal are left out, so an
// empty result means the artifact carried no usable data.
func (e *Evaluator) Evaluate(recognized *domain.RecognizedArtifact) (*domain.ScoredFeatures, error) {
	if recognized == nil {
		return nil, ErrNilInput
	}

	return e.score(func(s Signal) (float64, bool) {
		if s.Observation == "" {
			return 0, false
		}
		for _, o := range recognized.Observations {
			if strings.EqualFold(o.Name, s.Observation) && strings.EqualFold(o.Value, s.Value) {
				return s.Weight * clamp(o.Confidence, 0, 1), true
			}
		}
		return 0, false
	}), nil
}

// Score scores questionnaire answers.
func (e *Evaluator) Score(q *domain.Questionnaire) (*domain.ScoredFeatures, error) {
	if q == nil {
		return nil, ErrNilInput
	}

	answers := make(map[string]string, len(q.Answers))
	for _, a := range q.Answers {
		answers[strings.ToLower(strings.TrimSpace(a.QuestionID))] = strings.ToLower(strings.TrimSpace(a.Value))
	}

	return e.score(func(s Signal) (float64, bool) {
		if s.Question == "" {
			return 0, false
		}
		if v, ok := answers[strings.ToLower(s.Question)]; ok && v == strings.ToLower(s.Value) {
			return s.Weight, true
		}
		return 0, false
	}), nil
}

func (e *Evaluator) score(match func(Signal) (float64, bool)) *domain.ScoredFeatures {
	out := &domain.ScoredFeatures{Scores: []domain.FeatureScore{}}

	for _, f := range e.rules.Features {
		total := f.Base
		matched := false
		for _, s := range f.Signals {
			if w, ok := match(s); ok {
				total += w
				matched = true
			}
		}
		if !matched {
			continue
		}

		total = math.Round(clamp(total, 0, 100))
		out.Scores = append(out.Scores, domain.FeatureScore{
			Name:        f.Name,
			Title:       f.Title,
			Score:       total,
			Level:       e.rules.level(total),
			Description: f.Description,
		})
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
