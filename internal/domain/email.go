package domain

import "time"

// EmailSummary is the lightweight view of a mailbox message that sync stores
// and the report generator consumes. It deliberately carries headers and a
// snippet only; full bodies never enter the engine.
type EmailSummary struct {
	ID         string    `json:"id"`
	ThreadID   string    `json:"thread_id"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	Snippet    string    `json:"snippet"`
	Unread     bool      `json:"unread"`
	ReceivedAt time.Time `json:"received_at"`
}
