package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation covers malformed payloads: empty text on a text
	// message, missing media fields, unknown message type.
	ErrValidation = fmt.Errorf("invalid payload")
	// ErrForbidden covers identity violations: a non-participant acting
	// on a conversation, or a requester deciding their own media request.
	ErrForbidden = fmt.Errorf("forbidden")
	// ErrMediaNotGranted is returned when an image or voice message is
	// attempted while the conversation's media gate is not granted.
	ErrMediaNotGranted = fmt.Errorf("media permission not granted")
	// ErrRateLimited is a throttling signal, not a failure.
	ErrRateLimited = fmt.Errorf("rate limited")
	ErrNotFound    = fmt.Errorf("not found")
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")
)

// HTTPStatus maps a domain error to the status code the transport layer
// should answer with. Unknown errors are treated as internal.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrMediaNotGranted):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the stable machine-readable code exposed in error bodies.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrMediaNotGranted):
		return "permission_denied"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
