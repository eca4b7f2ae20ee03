package app

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mehlleniumfalke/rideviz/pipeline"
)

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&pipeline.ParseError{Kind: pipeline.EmptyFile}, http.StatusBadRequest, "bad_request"},
		{&pipeline.ProcessError{Points: 1}, http.StatusBadRequest, "bad_request"},
		{&pipeline.PrepareError{Missing: "elevation"}, http.StatusBadRequest, "bad_request"},
		{&pipeline.RenderError{Reason: "boom"}, http.StatusInternalServerError, "internal"},
		{&pipeline.RasterError{Reason: "boom"}, http.StatusInternalServerError, "internal"},
		{notFoundError("abc"), http.StatusNotFound, "not_found"},
		{badRequestError("nope"), http.StatusBadRequest, "bad_request"},
		{unauthorizedError("nope"), http.StatusUnauthorized, "unauthorized"},
		{internalError("nope"), http.StatusInternalServerError, "internal"},
		{fmt.Errorf("opaque"), http.StatusInternalServerError, "internal"},
	}

	for _, tc := range cases {
		appErr := wrapPipelineError(tc.err)
		assert.Equal(t, tc.status, appErr.StatusCode(), appErr.Error())
		assert.Equal(t, tc.code, appErr.Code(), appErr.Error())
	}
}

func TestWrapPipelineErrorKeepsWrappedKind(t *testing.T) {
	wrapped := fmt.Errorf("frame 3: %w", &pipeline.RasterError{Reason: "encode"})
	assert.Equal(t, ErrRaster, wrapPipelineError(wrapped).Kind)
}

func TestAppErrorMessages(t *testing.T) {
	assert.Equal(t, "activity not found: abc", notFoundError("abc").Error())
	assert.Contains(t, wrapPipelineError(&pipeline.ProcessError{Points: 1}).Error(), "at least 2")
}
