package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	Code  string `json:"code,omitempty"`
}

// Error codes let clients tell apart failures that share a status.
const (
	codeAlreadyShared = "already_shared"
	codeEmailTaken    = "email_taken"
	codeShareWithSelf = "share_with_self"
	codeDuplicate     = "duplicate_request"
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyShared):
		return codeAlreadyShared
	case errors.Is(err, domain.ErrEmailTaken):
		return codeEmailTaken
	case errors.Is(err, domain.ErrShareWithSelf):
		return codeShareWithSelf
	}
	return ""
}

// statusFor maps an action error to its HTTP status and the error stage
// recorded on the request metrics.
func statusFor(err error) (int, string) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, domain.ErrShareWithSelf):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, domain.ErrUnauthenticated),
		errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrEmailNotVerified):
		return http.StatusUnauthorized, "auth"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrAlreadyShared), errors.Is(err, domain.ErrEmailTaken):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "storage"
	}
}

// writeError renders err as JSON. Internal failures are logged and hidden
// from the caller.
func writeError(c echo.Context, err error) error {
	status, stage := statusFor(err)
	m := metricsFrom(c)
	m.SetErrorStage(stage)

	resp := errorResponse{Error: err.Error(), Code: errorCode(err)}
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		resp = errorResponse{Error: ve.Message, Field: ve.Field}
	case errors.Is(err, domain.ErrShareWithSelf):
		resp.Field = "email"
	case status == http.StatusInternalServerError:
		c.Logger().Error(err)
		m.SetCause(err)
		resp.Error = "internal error"
	}
	return c.JSON(status, resp)
}
