// Package generation defines the boundary between the application core and
// external language-model services. Services depend on the Generator
// interface; the concrete Gemini-backed implementation lives in
// internal/platform/gemini.
package generation
