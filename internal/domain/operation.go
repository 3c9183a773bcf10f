package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// OperationStatus represents the lifecycle state of a background operation.
type OperationStatus string

// Possible operation status values
const (
	OperationStatusCreated   OperationStatus = "created"
	OperationStatusRunning   OperationStatus = "running"
	OperationStatusSucceeded OperationStatus = "succeeded"
	OperationStatusFailed    OperationStatus = "failed"
)

// OperationKind discriminates which type of background work an operation
// record tracks. Single-flight is enforced per (owner, kind).
type OperationKind string

// Known operation kinds
const (
	OperationKindInboxSync    OperationKind = "inbox_sync"
	OperationKindDailyReport  OperationKind = "daily_report"
	OperationKindChatResponse OperationKind = "chat_response"
)

// Common validation errors for Operation
var (
	ErrEmptyOperationID       = errors.New("operation ID cannot be empty")
	ErrEmptyOperationOwnerID  = errors.New("operation owner ID cannot be empty")
	ErrInvalidOperationStatus = errors.New("invalid operation status")
	ErrInvalidOperationKind   = errors.New("invalid operation kind")
	ErrInvalidProgress        = errors.New("progress out of range for status")
	ErrOperationTerminal      = errors.New("operation is already in a terminal state")
	ErrOperationNotRunning    = errors.New("operation is not running")
)

// Operation represents one background operation instance for a given
// (owner, kind) pair. Its status/progress coupling is the load-bearing
// invariant: a running operation holds progress in [0,99], a terminal one
// holds 0 or 100. UpdatedAt doubles as the heartbeat used to detect
// abandoned work.
type Operation struct {
	ID        uuid.UUID       `json:"id"`
	OwnerID   uuid.UUID       `json:"owner_id"`
	Kind      OperationKind   `json:"kind"`
	Status    OperationStatus `json:"status"`
	Progress  int             `json:"progress"`
	Message   string          `json:"message"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewOperation creates a new Operation for the given owner and kind.
// It generates a new UUID for the operation ID, sets the status to created
// with zero progress, and sets the creation/update timestamps.
// Returns an error if validation fails.
func NewOperation(ownerID uuid.UUID, kind OperationKind) (*Operation, error) {
	op := &Operation{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Kind:      kind,
		Status:    OperationStatusCreated,
		Progress:  0,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := op.Validate(); err != nil {
		return nil, err
	}

	return op, nil
}

// Validate checks if the Operation has valid data, including the
// status/progress coupling. Returns an error if any field fails validation.
func (o *Operation) Validate() error {
	if o.ID == uuid.Nil {
		return ErrEmptyOperationID
	}

	if o.OwnerID == uuid.Nil {
		return ErrEmptyOperationOwnerID
	}

	if !isValidOperationKind(o.Kind) {
		return ErrInvalidOperationKind
	}

	if !isValidOperationStatus(o.Status) {
		return ErrInvalidOperationStatus
	}

	return o.validateProgress()
}

// validateProgress enforces the status/progress coupling.
func (o *Operation) validateProgress() error {
	switch o.Status {
	case OperationStatusRunning:
		if o.Progress < 0 || o.Progress > 99 {
			return ErrInvalidProgress
		}
	case OperationStatusSucceeded, OperationStatusFailed:
		if o.Progress != 0 && o.Progress != 100 {
			return ErrInvalidProgress
		}
	case OperationStatusCreated:
		if o.Progress != 0 {
			return ErrInvalidProgress
		}
	}
	return nil
}

// IsTerminal reports whether the operation has reached a final state.
// No further transitions occur from a terminal state.
func (o *Operation) IsTerminal() bool {
	return o.Status == OperationStatusSucceeded || o.Status == OperationStatusFailed
}

// Start transitions the operation from created to running and refreshes the
// heartbeat. Returns an error if the operation is not in the created state.
func (o *Operation) Start() error {
	if o.Status != OperationStatusCreated {
		return ErrInvalidOperationStatus
	}

	o.Status = OperationStatusRunning
	o.Progress = 0
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// SetProgress updates the progress of a running operation and refreshes the
// heartbeat. progress=100 is rejected: completion must go through Complete.
// An empty message leaves the previous message in place.
func (o *Operation) SetProgress(progress int, message string) error {
	if o.Status != OperationStatusRunning {
		return ErrOperationNotRunning
	}

	if progress < 0 || progress > 99 {
		return ErrInvalidProgress
	}

	o.Progress = progress
	if message != "" {
		o.Message = message
	}
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete transitions a running operation to its terminal state: succeeded
// with progress 100, or failed with progress 0. Calling Complete on a
// non-running operation is a programming error and is reported loudly.
func (o *Operation) Complete(succeeded bool, message string) error {
	if o.IsTerminal() {
		return ErrOperationTerminal
	}
	if o.Status != OperationStatusRunning {
		return ErrOperationNotRunning
	}

	if succeeded {
		o.Status = OperationStatusSucceeded
		o.Progress = 100
	} else {
		o.Status = OperationStatusFailed
		o.Progress = 0
	}
	o.Message = message
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// isValidOperationStatus checks if the given status is a valid OperationStatus.
func isValidOperationStatus(status OperationStatus) bool {
	switch status {
	case OperationStatusCreated, OperationStatusRunning,
		OperationStatusSucceeded, OperationStatusFailed:
		return true
	default:
		return false
	}
}

// isValidOperationKind checks if the given kind is a valid OperationKind.
func isValidOperationKind(kind OperationKind) bool {
	switch kind {
	case OperationKindInboxSync, OperationKindDailyReport, OperationKindChatResponse:
		return true
	default:
		return false
	}
}
