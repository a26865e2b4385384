package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/tokquant/pkg/quant"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg   string
	param string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(param, msg string) error {
	return invalidRequestError{msg: msg, param: param}
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "", "")
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg, "", "")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

// writeQuantizeError maps request and kernel errors onto the error envelope.
func writeQuantizeError(c *echo.Context, err error) error {
	var inv invalidRequestError
	switch {
	case errors.As(err, &inv):
		return writeError(c, http.StatusBadRequest, "invalid_request_error", inv.msg, inv.param, "")
	case errors.Is(err, quant.ErrUnsupportedInputType):
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), "input_dtype", "unsupported_input_type")
	case errors.Is(err, quant.ErrUnsupportedTarget):
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), "target", "unsupported_target")
	case errors.Is(err, quant.ErrInvalidShape), errors.Is(err, quant.ErrShapeMismatch):
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), "data", "invalid_shape")
	default:
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}
}
