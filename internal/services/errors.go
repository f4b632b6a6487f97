package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrUnavailable   = errors.New("resource unavailable")
)

// FailureClass groups errors by how a camera supervisor should react to them.
type FailureClass string

const (
	// FailureTransient errors are logged and the operation proceeds.
	FailureTransient FailureClass = "transient"
	// FailureUnavailable errors count towards start-failure backoff.
	FailureUnavailable FailureClass = "unavailable"
	// FailureConfiguration errors disable the affected camera.
	FailureConfiguration FailureClass = "configuration"
	// FailureUnexpected errors abandon the current iteration.
	FailureUnexpected FailureClass = "unexpected"
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error to the failure class used by the recorder loop.
func Classify(err error) FailureClass {
	switch {
	case err == nil:
		return FailureTransient
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrValidation):
		return FailureConfiguration
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrExternalTool), errors.Is(err, ErrTimeout):
		return FailureUnavailable
	case errors.Is(err, ErrTransient), errors.Is(err, ErrNotFound):
		return FailureTransient
	default:
		return FailureUnexpected
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
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
