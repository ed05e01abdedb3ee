package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternal      = errors.New("splunk request error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrTransient     = errors.New("transient failure")
)

// Outcome classifies how a recorded run ended.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeRejected marks runs stopped before any write reached the collection.
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
	// OutcomeRestored marks runs whose failure was rolled back from the backup.
	OutcomeRestored Outcome = "restored"
)

// Wrap builds an error message that includes operation context while tagging it
// with the provided marker for later outcome classification. The marker should
// be one of the exported sentinel errors above.
func Wrap(marker error, scope, operation, message string, err error) error {
	detail := buildDetail(scope, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureOutcome maps an operation error to the outcome recorded in history.
func FailureOutcome(err error) Outcome {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConflict):
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}

func buildDetail(scope, operation, message string) string {
	parts := make([]string, 0, 3)
	if scope = strings.TrimSpace(scope); scope != "" {
		parts = append(parts, scope)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
