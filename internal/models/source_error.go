package models

import (
	"errors"
	"fmt"
	"time"
)

// Outcome classifies a source API failure so that retry/skip/abort decisions
// are made on structured data rather than error-message matching.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNotFound
	OutcomeRateLimited
	// OutcomeFatal covers failures that retrying cannot fix at this layer:
	// credential failures, malformed requests, source-side 5xx exhaustion.
	OutcomeFatal
)

// String returns the outcome name for logging.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "fatal"
	}
}

// SourceError wraps a platform client failure with its classification. The
// source adapter builds these from the client's typed errors; everything
// above the adapter branches on Outcome only.
type SourceError struct {
	Outcome Outcome
	Message string
	// RetryAfter carries an explicit wait the source named (e.g. from a
	// rate-limit header). Zero when the source named none.
	RetryAfter time.Duration
	Err        error
}

func (e *SourceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("source error (%s): %s", e.Outcome, e.Message)
	}
	return fmt.Sprintf("source error (%s)", e.Outcome)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// OutcomeOf extracts the classification from an error chain. Errors that are
// not SourceErrors are fatal by definition: the adapter is the only place
// allowed to decide something is retryable.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}
	var se *SourceError
	if errors.As(err, &se) {
		return se.Outcome
	}
	return OutcomeFatal
}
