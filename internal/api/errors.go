package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/samcharles93/infill/internal/inference"
	"github.com/samcharles93/infill/internal/registry"
	"github.com/samcharles93/infill/internal/template"
)

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrModelNotFound  = errors.New("model not found")
)

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// classify maps an engine error to an HTTP status, error type and code.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, template.ErrUnresolvedRef):
		return http.StatusBadRequest, "invalid_request_error", ""
	case errors.Is(err, ErrModelNotFound):
		return http.StatusNotFound, "not_found_error", "model_not_found"
	case errors.Is(err, inference.ErrBusy), errors.Is(err, template.ErrBusy):
		return http.StatusConflict, "conflict_error", "busy"
	case errors.Is(err, inference.ErrCancelled), errors.Is(err, context.Canceled):
		return http.StatusConflict, "conflict_error", "cancelled"
	case errors.Is(err, inference.ErrClosed), errors.Is(err, registry.ErrClosed):
		return http.StatusServiceUnavailable, "server_error", "closed"
	default:
		return http.StatusInternalServerError, "server_error", ""
	}
}
