package service

import (
	"errors"
	"fmt"

	"github.com/mailpilot/mailpilot-api/internal/failure"
)

// Service-level errors
var (
	// ErrReplyInProgress is returned when a chat reply is requested while the
	// owner's previous reply is still being generated.
	ErrReplyInProgress = errors.New("a reply is already being generated")

	// ErrInboxNotReady is returned when a payload needs the synced inbox
	// snapshot before any sync has completed for the owner. Classifies as
	// temporary: the snapshot exists once a sync has run.
	ErrInboxNotReady = fmt.Errorf("%w: inbox snapshot", failure.ErrSessionNotReady)

	// ErrReportNotReady is returned when no generated report is available yet
	// for the owner.
	ErrReportNotReady = fmt.Errorf("%w: daily report", failure.ErrSessionNotReady)
)
