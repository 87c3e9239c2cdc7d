package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/phrazzld/scry-reports/internal/generation"
	"github.com/phrazzld/scry-reports/internal/unit"
	"google.golang.org/genai"
)

// Narrator writes report narratives with a Gemini text model.
type Narrator struct {
	client *Client
}

var _ generation.NarrativeGenerator = (*Narrator)(nil)

// NewNarrator creates a Narrator backed by client.
func NewNarrator(client *Client) *Narrator {
	return &Narrator{client: client}
}

// Generate returns the model's reply to prompt. A blank reply is ErrNoData.
func (n *Narrator) Generate(ctx context.Context, u *unit.Unit, prompt string) (string, error) {
	if u == nil {
		return "", generation.ErrUnitUnavailable
	}
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: prompt cannot be empty", generation.ErrInvalidConfig)
	}

	text, err := n.client.generate(ctx, u.Instance(), []*genai.Part{{Text: prompt}}, nil)
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: narrator returned no text", generation.ErrNoData)
	}
	return text, nil
}
