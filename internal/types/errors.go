package types

import (
	"errors"
	"fmt"
)

var (
	ErrCredentialMissing = errors.New("timeline credential not configured")
	ErrLookupFailed      = errors.New("account lookup failed")
	ErrTimelineRejected  = errors.New("timeline request rejected")
	ErrPassInProgress    = errors.New("poll pass already in progress")
)

type Stage string

const (
	StageFetch  Stage = "fetch"
	StageLookup Stage = "lookup"
	StageDetect Stage = "detect"
)

// SourceError reports a failure confined to one source during a pass.
type SourceError struct {
	Source string
	Stage  Stage
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %s failed: %v", e.Source, e.Stage, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

func NewSourceError(source string, stage Stage, err error) *SourceError {
	return &SourceError{
		Source: source,
		Stage:  stage,
		Err:    err,
	}
}

func IsSourceError(err error) bool {
	var se *SourceError
	return errors.As(err, &se)
}

// SendError reports a rejected or unreachable notification endpoint.
type SendError struct {
	Endpoint   string
	StatusCode int
	RetryAfter float64
	Body       string
	Err        error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("send to %s failed: %v", e.Endpoint, e.Err)
	}
	if e.StatusCode == 429 {
		return fmt.Sprintf("send to %s rate limited (retry_after %.2fs): %s", e.Endpoint, e.RetryAfter, e.Body)
	}
	return fmt.Sprintf("send to %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
