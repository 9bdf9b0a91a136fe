package detection

import (
	"errors"
	"fmt"
)

// Ingestion errors. Submit returns one of these when an event is dropped.
var (
	ErrMalformedEvent = errors.New("malformed event")
	ErrQueueFull      = errors.New("ingest queue full")
	ErrPipelineClosed = errors.New("pipeline closed")
	ErrSourceBlocked  = errors.New("source is blocked")
	ErrSourceFiltered = errors.New("private source filtered")
	ErrSourceLimit    = errors.New("tracked source limit reached")
)

// Error categories used in the error_category log field
const (
	categoryIngestion   = "ingestion"
	categoryEnforcement = "enforcement"
	categoryReporting   = "reporting"
	categoryInternal    = "internal"
)

// EnforcementError wraps a failed Enforcer call
type EnforcementError struct {
	Op       string
	SourceID string
	Err      error
}

func (e *EnforcementError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.SourceID, e.Err)
}

func (e *EnforcementError) Unwrap() error { return e.Err }

// ReportError wraps a failed Reporter call
type ReportError struct {
	SourceID string
	Err      error
}

func (e *ReportError) Error() string {
	return fmt.Sprintf("report %s: %v", e.SourceID, e.Err)
}

func (e *ReportError) Unwrap() error { return e.Err }
