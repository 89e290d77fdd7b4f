package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/runnable/runnable-api/internal/api/response"
	"github.com/runnable/runnable-api/internal/core"
	"github.com/runnable/runnable-api/internal/harbourmaster"
	"github.com/runnable/runnable-api/internal/platform"
)

// Errors writes service errors as HTTP responses. With Debug set the full
// error chain is attached as "stack".
type Errors struct {
	Debug bool
}

// statusFor maps a service error onto an HTTP status and a client message.
func statusFor(err error) (int, string) {
	var se *harbourmaster.StatusError
	switch {
	case errors.Is(err, core.ErrNameConflict):
		return http.StatusForbidden, core.ErrNameConflict.Error()
	case errors.Is(err, core.ErrAlreadyInProgress):
		return http.StatusConflict, core.ErrAlreadyInProgress.Error()
	case errors.Is(err, core.ErrDuplicate):
		return http.StatusConflict, err.Error()
	case errors.Is(err, core.ErrPermissionDenied):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, core.ErrInvalidInput), errors.Is(err, platform.ErrInvalidID):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, harbourmaster.ErrUpstreamUnavailable),
		errors.Is(err, harbourmaster.ErrWhitelistRejected),
		errors.Is(err, harbourmaster.ErrBuildFailed):
		return http.StatusBadGateway, err.Error()
	case errors.As(err, &se):
		return se.StatusCode, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (e Errors) Write(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Int("status", status).Msg("request failed")
	}
	if e.Debug {
		response.WriteErrorStack(w, status, msg, err.Error())
		return
	}
	response.WriteError(w, status, msg)
}

// BadRequest writes a 400 for malformed input.
func (e Errors) BadRequest(w http.ResponseWriter, err error) {
	response.WriteError(w, http.StatusBadRequest, err.Error())
}
