package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("context not found")
	ErrFrameUnavailable = errors.New("frame unavailable")
	ErrNoChannel        = errors.New("no native channel")
	ErrChannelClosed    = errors.New("native channel closed")
	ErrNetwork          = errors.New("network error")
)

// ServiceError is a non-200 answer from the recognition service.
type ServiceError struct {
	Status int
	Body   string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("API response: %d, %s", e.Status, e.Body)
}
