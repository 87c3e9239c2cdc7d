// Package narrative builds the prompts sent to narrator units and assembles
// the final Markdown report document.
package narrative

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/phrazzld/scry-reports/internal/domain"
)

//go:embed templates/prompt.tmpl
var defaultPromptTemplate string

// ErrNoFeatures is returned when a prompt is requested without any scores.
var ErrNoFeatures = errors.New("no scored features to narrate")

// PromptInput is the data a prompt template is executed with.
type PromptInput struct {
	Kind         domain.ReportKind
	Label        string
	Observations []domain.Observation
	Scores       []domain.FeatureScore
	Language     string
	Detail       string
}

// PromptBuilder renders narrator prompts.
type PromptBuilder struct {
	tmpl *template.Template
}

// NewPromptBuilder parses the template at path, or the built-in template when
// path is empty.
func NewPromptBuilder(path string) (*PromptBuilder, error) {
	text := defaultPromptTemplate
	name := "prompt"
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt template from %s: %w", path, err)
		}
		text = string(b)
		name = path
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	return &PromptBuilder{tmpl: tmpl}, nil
}

// Build renders the prompt for a report.
func (b *PromptBuilder) Build(in PromptInput) (string, error) {
	if len(in.Scores) == 0 {
		return "", ErrNoFeatures
	}

	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, in); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}
