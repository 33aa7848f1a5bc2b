package brightdata

import (
	"errors"
	"fmt"
)

// Phase names a step of the collection protocol.
type Phase string

const (
	PhaseTrigger  Phase = "trigger"
	PhasePoll     Phase = "poll"
	PhaseDownload Phase = "download"
)

// Collection outcomes. Every error returned by Collect wraps one of these.
var (
	ErrTriggerFailed    = errors.New("collection trigger failed")
	ErrPollFailed       = errors.New("collection progress check failed")
	ErrJobFailed        = errors.New("remote collection job failed")
	ErrPollTimeout      = errors.New("timed out waiting for collection job")
	ErrDownloadFailed   = errors.New("snapshot download failed")
	ErrEmptyDataset     = errors.New("snapshot contains no records")
	ErrMalformedPayload = errors.New("snapshot payload is malformed")
)

// Error is a single failed exchange with the API.
type Error struct {
	Phase     Phase
	Status    int // HTTP status, 0 if no response was received
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Phase, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth retrying later.
func IsTransient(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Transient
	}
	return false
}
