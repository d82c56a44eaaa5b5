package gateway

import (
	"fmt"

	dErrors "annogate/pkg/domain-errors"
)

var (
	// ErrNotFound is returned when the store answers 404.
	ErrNotFound = dErrors.New(dErrors.CodeNotFound, "annotation not found")
	// ErrNotImplemented is returned by the write operations, which the
	// application never performs through the gateway.
	ErrNotImplemented = dErrors.New(dErrors.CodeNotImplemented, "operation not supported through the gateway")
)

// UpstreamError is a store response with an error status other than 404.
// It is rendered with the upstream status.
type UpstreamError struct {
	Op     string
	Status int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("annotation store %s: status %d", e.Op, e.Status)
}

// StatusCode returns the upstream status.
func (e *UpstreamError) StatusCode() int { return e.Status }

func (e *UpstreamError) Unwrap() error {
	return dErrors.New(dErrors.CodeUpstream, e.Error())
}
