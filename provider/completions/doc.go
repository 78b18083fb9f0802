// Package completions implements the provider contract for endpoints that
// speak the OpenAI Chat Completions format. It defaults to Gemini's
// OpenAI-compatible base URL but works against any compatible endpoint.
// Streaming, structured output and reasoning replay are not supported.
package completions
