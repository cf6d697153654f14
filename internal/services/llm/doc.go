// Package llm is the classifier client: it sends extracted document text to a
// language model and returns a category and filename.
//
// Two wire shapes are supported. The Ollama shape posts to /api/generate with
// format "json" and stream disabled; the OpenAI-compatible shape posts to
// /chat/completions with a json_object response format. Both probe liveness
// through their model listing (/api/tags and /models).
//
// # Responses
//
// Model output is tolerated inside code fences or surrounding prose, then
// validated against a JSON schema that requires non-empty category and
// filename strings. Anything else fails with services.ErrValidation; the
// caller never receives a defaulted result.
//
// # Retry Behaviour
//
// The client retries HTTP 408/429/5xx, empty model output and network
// timeouts with exponential backoff that honours Retry-After. Context
// cancellation aborts retries immediately.
package llm
