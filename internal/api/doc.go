// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It translates HTTP concerns into calls on the
// application services and maps internal errors to sanitized responses.
package api
