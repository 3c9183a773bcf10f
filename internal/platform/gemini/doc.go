// Package gemini implements the generation.Generator interface using
// Google's Gemini API. Transient API failures are retried with the standard
// backoff policy; malformed or safety-blocked responses surface immediately
// as permanent failures.
package gemini
