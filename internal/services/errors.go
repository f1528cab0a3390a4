package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrConfiguration     = errors.New("configuration error")
	ErrNotFound          = errors.New("not found")
	ErrTimeout           = errors.New("timeout")
	ErrTransient         = errors.New("transient failure")
	ErrWorkerUnreachable = errors.New("worker unreachable")
	ErrWorkerExecutor    = errors.New("worker executor failure")
)

// Stable message identifiers attached to FATAL item outcomes.
const (
	MessagePreconditionFailed   = "PRECONDITION_FAILED"
	MessageListingFailed        = "LISTING_FAILED"
	MessageWorkerGroupNotFound  = "WORKER_GROUP_NOT_FOUND"
	MessageWorkerUnreachable    = "WORKER_UNREACHABLE"
	MessageWorkerExecutorFailed = "WORKER_EXECUTOR_FAILURE"
	MessageUnexpectedFailure    = "UNEXPECTED_FAILURE"
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later outcome classification. The marker should
// be one of the exported sentinel errors above.
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

// MessageID maps an error to the message identifier reported on a FATAL
// outcome.
func MessageID(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrWorkerUnreachable):
		return MessageWorkerUnreachable
	case errors.Is(err, ErrWorkerExecutor):
		return MessageWorkerExecutorFailed
	case errors.Is(err, ErrValidation):
		return MessagePreconditionFailed
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return MessageListingFailed
	default:
		return MessageUnexpectedFailure
	}
}

// IsTransportFailure reports whether err came from reaching the worker rather
// than from the worker's own handlers. Those failures trigger a liveness probe.
func IsTransportFailure(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrTimeout)
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
