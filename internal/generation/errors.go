package generation

import "errors"

// Common errors returned by generation units
var (
	// ErrGenerationFailed is returned when a unit call fails for any general reason
	ErrGenerationFailed = errors.New("failed to generate content")

	// ErrInvalidResponse is returned when the unit response cannot be parsed or is
	// structurally invalid
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the unit blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry
	ErrTransientFailure = errors.New("transient error during generation")

	// ErrInvalidConfig is returned when the generator configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")

	// ErrUnreadableArtifact is returned when the submitted artifact cannot be loaded
	ErrUnreadableArtifact = errors.New("artifact cannot be read")

	// ErrUnrecognized is returned when the unit could not recognize the artifact content
	ErrUnrecognized = errors.New("artifact content not recognized")

	// ErrNoData is returned when a stage produced an empty result
	ErrNoData = errors.New("stage produced no data")

	// ErrUnitUnavailable is returned when the backing unit cannot be reached
	ErrUnitUnavailable = errors.New("generation unit unavailable")
)
