package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrCompanyNotFound    = fmt.Errorf("company %w", ErrNotFound)
	ErrCommunication      = errors.New("downstream communication error")
	ErrInvalidSortField   = errors.New("invalid sort field")
	ErrInvalidPageRequest = errors.New("invalid page request")
	ErrPersistence        = errors.New("persistence error")
	ErrUnauthorized       = errors.New("unauthorized")
)

// DownstreamError reports a failed call to a collaborating service.
// It matches ErrCommunication and unwraps to the transport cause.
type DownstreamError struct {
	Service string
	Err     error
}

func (e *DownstreamError) Error() string {
	return fmt.Sprintf("error communicating with %s service: %v", e.Service, e.Err)
}

func (e *DownstreamError) Unwrap() error { return e.Err }

func (e *DownstreamError) Is(target error) bool { return target == ErrCommunication }

type SortFieldError struct{ Field string }

func (e *SortFieldError) Error() string { return fmt.Sprintf("invalid sort field %q", e.Field) }

func (e *SortFieldError) Is(target error) bool { return target == ErrInvalidSortField }

// Persistence wraps a store failure so callers can match ErrPersistence and the cause.
func Persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
