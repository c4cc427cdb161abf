// Package generation defines the generation capability: the boundary between
// the orchestration engine and whatever LLM service turns a high-level post
// description into content. The Gemini implementation lives in
// internal/platform/gemini.
package generation
