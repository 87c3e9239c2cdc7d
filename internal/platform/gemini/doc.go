// Package gemini implements the generation.Recognizer and
// generation.NarrativeGenerator contracts on top of Google's Gemini API.
//
// This package is an infrastructure adapter: the scheduler hands it a leased
// unit whose instance names the Gemini model, and the adapter translates
// between domain payloads and genai requests.
//
// Key components:
//
// 1. Client:
//   - Wraps the genai models service
//   - Retries transient API failures with exponential backoff and jitter
//   - Maps blocked, empty or malformed responses to generation sentinels
//
// 2. Recognizer:
//   - Sends the artifact bytes inline with an instruction prompt
//   - Requests a JSON response and decodes it into observations
//
// 3. Narrator:
//   - Sends the rendered narrative prompt and returns the text reply
package gemini
