// Package gemini implements generation.Generator on top of Google's Gemini
// API.
//
// A prompt is rendered from the task's generation config using an embedded
// template, sent to the configured model with a JSON response type, and the
// JSON answer is validated and turned into domain.Content.
//
// Errors are classified with the generation package sentinels: safety
// blocks map to generation.ErrContentBlocked, malformed answers to
// generation.ErrInvalidResponse and API failures to
// generation.ErrTransientFailure. The generator does not retry by itself;
// the task engine's retry policy decides whether a failed step runs again.
package gemini
