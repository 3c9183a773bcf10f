// Package domain defines the core business entities and errors for the
// mailpilot backend: users, and the operation records that track
// long-running background work (inbox sync, report generation, assistant
// replies) per owner.
package domain
