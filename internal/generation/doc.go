// Package generation defines the contracts for the external AI/LLM units
// that recognize artifacts and write report narratives. Adapters such as the
// Gemini implementation live under internal/platform and are selected at
// wiring time, so the scheduler never depends on a specific provider.
package generation
