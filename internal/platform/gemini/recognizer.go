package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/phrazzld/scry-reports/internal/domain"
	"github.com/phrazzld/scry-reports/internal/generation"
	"github.com/phrazzld/scry-reports/internal/unit"
	"google.golang.org/genai"
)

const recognitionPrompt = `You are an image recognition unit.
Describe the attached artifact as JSON with this shape:
{"label": string, "observations": [{"name": string, "value": string, "confidence": number between 0 and 1}]}
Use lower_snake_case observation names. Return an empty observations list when
the artifact does not show anything you can recognize. Reply with JSON only.`

// Recognizer extracts observations from artifacts with a Gemini vision model.
type Recognizer struct {
	client *Client
}

var _ generation.Recognizer = (*Recognizer)(nil)

// NewRecognizer creates a Recognizer backed by client.
func NewRecognizer(client *Client) *Recognizer {
	return &Recognizer{client: client}
}

// Recognize sends the artifact to the model named by the unit instance.
func (r *Recognizer) Recognize(
	ctx context.Context,
	u *unit.Unit,
	artifact *domain.Artifact,
) (*domain.RecognizedArtifact, error) {
	if u == nil {
		return nil, generation.ErrUnitUnavailable
	}
	if artifact == nil || len(artifact.Data) == 0 {
		return nil, fmt.Errorf("%w: artifact has no content", generation.ErrUnreadableArtifact)
	}

	parts := []*genai.Part{
		{Text: recognitionPrompt},
		{InlineData: &genai.Blob{Data: artifact.Data, MIMEType: artifact.MIMEType}},
	}
	text, err := r.client.generate(ctx, u.Instance(), parts, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, err
	}

	rec, err := parseRecognition(text)
	if err != nil {
		return nil, err
	}

	r.client.logger.InfoContext(ctx, "artifact recognized",
		"model", u.Instance(),
		"label", rec.Label,
		"observation_count", len(rec.Observations))
	return rec, nil
}

func parseRecognition(text string) (*domain.RecognizedArtifact, error) {
	text = stripCodeFence(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty recognition payload", generation.ErrInvalidResponse)
	}

	var rec domain.RecognizedArtifact
	if err := json.Unmarshal([]byte(text), &rec); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON response: %v", generation.ErrInvalidResponse, err)
	}

	for i, o := range rec.Observations {
		if strings.TrimSpace(o.Name) == "" {
			return nil, fmt.Errorf("%w: observation %d missing name", generation.ErrInvalidResponse, i)
		}
		if o.Confidence < 0 || o.Confidence > 1 {
			return nil, fmt.Errorf("%w: observation %q confidence %v out of range",
				generation.ErrInvalidResponse, o.Name, o.Confidence)
		}
	}
	return &rec, nil
}

// stripCodeFence removes a markdown code fence some models wrap JSON in.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
