package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mehlleniumfalke/rideviz/pipeline"
)

// AppError is the request-level error taxonomy. Pipeline errors are wrapped
// with their stage kind so the HTTP mapping stays in one place.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

type ErrorKind int

const (
	ErrParse ErrorKind = iota
	ErrProcess
	ErrPrepare
	ErrRender
	ErrRaster
	ErrNotFound
	ErrBadRequest
	ErrUnauthorized
	ErrInternal
)

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "internal error"
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func notFoundError(fileId string) *AppError {
	return &AppError{Kind: ErrNotFound, Message: fmt.Sprintf("activity not found: %s", fileId)}
}

func badRequestError(format string, args ...any) *AppError {
	return &AppError{Kind: ErrBadRequest, Message: fmt.Sprintf(format, args...)}
}

func unauthorizedError(message string) *AppError {
	return &AppError{Kind: ErrUnauthorized, Message: message}
}

func internalError(format string, args ...any) *AppError {
	return &AppError{Kind: ErrInternal, Message: fmt.Sprintf(format, args...)}
}

// wrapPipelineError classifies an error bubbling out of the rendering
// pipeline into the taxonomy.
func wrapPipelineError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var parseErr *pipeline.ParseError
	var processErr *pipeline.ProcessError
	var prepareErr *pipeline.PrepareError
	var renderErr *pipeline.RenderError
	var rasterErr *pipeline.RasterError
	switch {
	case errors.As(err, &parseErr):
		return &AppError{Kind: ErrParse, Err: err}
	case errors.As(err, &processErr):
		return &AppError{Kind: ErrProcess, Err: err}
	case errors.As(err, &prepareErr):
		return &AppError{Kind: ErrPrepare, Err: err}
	case errors.As(err, &renderErr):
		return &AppError{Kind: ErrRender, Err: err}
	case errors.As(err, &rasterErr):
		return &AppError{Kind: ErrRaster, Err: err}
	}
	return &AppError{Kind: ErrInternal, Err: err}
}

func (e *AppError) StatusCode() int {
	switch e.Kind {
	case ErrParse, ErrProcess, ErrPrepare, ErrBadRequest:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Code is the machine-readable error code used in response bodies.
func (e *AppError) Code() string {
	switch e.Kind {
	case ErrParse, ErrProcess, ErrPrepare, ErrBadRequest:
		return "bad_request"
	case ErrNotFound:
		return "not_found"
	case ErrUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// httpErrorHandler maps AppError (and anything else) onto JSON bodies so
// handlers can just return errors.
func httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		_ = c.JSON(appErr.StatusCode(), errorBody{Error: appErr.Error()})
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		_ = c.JSON(httpErr.Code, errorBody{Error: fmt.Sprintf("%v", httpErr.Message)})
		return
	}

	_ = c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
}
