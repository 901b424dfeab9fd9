package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration       = errors.New("configuration error")
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrStageExecution      = errors.New("stage execution error")
	ErrExternalTool        = errors.New("external tool error")
	ErrResourceUnavailable = errors.New("resource unavailable")
	ErrCancelled           = errors.New("cancelled")
	ErrTransient           = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrStageExecution
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Cancelled reports whether the error stems from cancellation rather than a
// genuine failure, covering both context errors and the sentinel marker.
func Cancelled(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// transientFragments identify failure modes that typically clear on retry:
// GPU memory pressure, network hiccups, and overloaded backends.
var transientFragments = []string{
	"cuda out of memory",
	"connection refused",
	"connection reset",
	"temporarily unavailable",
	"timeout",
	"timed out",
}

// Retryable reports whether a failed job is worth retrying. Configuration and
// validation failures are deterministic and excluded; transient markers and
// well-known transient message fragments qualify.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConfiguration) || errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) {
		return false
	}
	if Cancelled(err) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrResourceUnavailable) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range transientFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
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
