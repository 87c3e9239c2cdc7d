package generation

import (
	"context"

	"github.com/phrazzld/scry-reports/internal/domain"
	"github.com/phrazzld/scry-reports/internal/unit"
)

// Recognizer extracts observations from an artifact using a predictor unit.
type Recognizer interface {
	// Recognize runs the artifact through the unit. An artifact that holds
	// nothing recognizable yields ErrUnrecognized.
	Recognize(ctx context.Context, u *unit.Unit, artifact *domain.Artifact) (*domain.RecognizedArtifact, error)
}

// NarrativeGenerator writes narrative text for a prompt using a narrator unit.
type NarrativeGenerator interface {
	// Generate returns the narrative text. Errors are one of the package
	// sentinels, possibly wrapped.
	Generate(ctx context.Context, u *unit.Unit, prompt string) (string, error)
}
