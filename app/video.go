package app

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mehlleniumfalke/rideviz/pipeline"
)

// VideoExportRequest is the /api/export/video body: the visualize fields
// plus the required duration and fps.
type VideoExportRequest struct {
	VisualizeRequest
	DurationSeconds *float64 `json:"duration_seconds"`
	FPS             *int     `json:"fps"`
}

type exportVideoErrorBody struct {
	Error             string `json:"error"`
	Code              string `json:"code"`
	RequestId         string `json:"request_id"`
	RetryAfterSeconds *int64 `json:"retry_after_seconds,omitempty"`
}

func exportVideoError(c echo.Context, status int, code, requestId, message string, retryAfterSeconds *int64) error {
	header := c.Response().Header()
	header.Set("x-request-id", requestId)
	if retryAfterSeconds != nil {
		header.Set("Retry-After", strconv.FormatInt(*retryAfterSeconds, 10))
	}
	return c.JSON(status, exportVideoErrorBody{
		Error:             message,
		Code:              code,
		RequestId:         requestId,
		RetryAfterSeconds: retryAfterSeconds,
	})
}

func exportVideoAppError(c echo.Context, requestId string, err error) error {
	appErr := wrapPipelineError(err)
	return exportVideoError(c, appErr.StatusCode(), appErr.Code(), requestId, appErr.Error(), nil)
}

func (s *ServerState) handleExportVideo(c echo.Context) error {
	requestId := uuid.NewString()
	start := time.Now()

	// Authorization: the license subject keys the rate limiter.
	token, ok := bearerToken(c)
	if !ok {
		return exportVideoError(c, http.StatusUnauthorized, "unauthorized", requestId, "missing bearer token", nil)
	}
	claims, err := VerifyLicenseToken(token, s.config.JwtSecret)
	if err != nil {
		return exportVideoError(c, http.StatusUnauthorized, "unauthorized", requestId, "invalid license token", nil)
	}
	if !claims.Pro {
		return exportVideoError(c, http.StatusUnauthorized, "unauthorized", requestId, "pro license required for MP4 export", nil)
	}

	if retryAfter, admitted := s.state.VideoExportRateLimiter().Check(claims.Subject); !admitted {
		slog.Warn("MP4 export rate-limited", "request_id", requestId, "retry_after_seconds", retryAfter)
		message := "too many MP4 export requests. Try again in " + strconv.FormatInt(retryAfter, 10) + "s."
		return exportVideoError(c, http.StatusTooManyRequests, "rate_limited", requestId, message, &retryAfter)
	}

	// Concurrency cap: bounded wait for a permit.
	sem := s.state.VideoExportSemaphore()
	if !sem.TryAcquire(1) {
		queueCtx, cancelWait := context.WithTimeout(c.Request().Context(), s.config.VideoExportQueueTimeout)
		acquireErr := sem.Acquire(queueCtx, 1)
		cancelWait()
		if acquireErr != nil {
			retryAfter := int64(s.config.VideoExportQueueTimeout.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			slog.Warn("MP4 export concurrency limit reached", "request_id", requestId)
			return exportVideoError(c, http.StatusServiceUnavailable, "export_busy", requestId,
				"MP4 export capacity is busy. Try again shortly.", &retryAfter)
		}
	}
	permitHeld := true
	defer func() {
		if permitHeld {
			sem.Release(1)
		}
	}()

	req := VideoExportRequest{VisualizeRequest: defaultVisualizeRequest()}
	if err := decodeStrictJSON(c, &req); err != nil {
		return exportVideoAppError(c, requestId, err)
	}
	if req.DurationSeconds == nil || req.FPS == nil {
		return exportVideoAppError(c, requestId, badRequestError("duration_seconds and fps are required"))
	}

	options := pipeline.Route3DDefaults()
	if err := applyRenderOptions(&options, &req.VisualizeRequest); err != nil {
		return exportVideoAppError(c, requestId, err)
	}

	videoWidth, videoHeight := pipeline.CapMP4Dimensions(options.Width, options.Height)
	if videoWidth != options.Width || videoHeight != options.Height {
		slog.Info("capped MP4 dimensions",
			"from_width", options.Width, "from_height", options.Height,
			"to_width", videoWidth, "to_height", videoHeight)
	}
	options.Width = videoWidth
	options.Height = videoHeight

	fps, _, frameCount := pipeline.ClampVideoParams(*req.FPS, *req.DurationSeconds)
	options.AnimationFrames = frameCount
	options.AnimationDurationMs = int(math.Round(float64(frameCount) / float64(fps) * 1000))

	background, err := videoBackground(req.Background)
	if err != nil {
		return exportVideoAppError(c, requestId, err)
	}
	output := pipeline.OutputConfig{
		Width:      options.Width,
		Height:     options.Height,
		Background: background,
		Watermark:  false,
	}

	processed := s.state.GetActivity(req.FileId)
	if processed == nil {
		return exportVideoAppError(c, requestId, notFoundError(req.FileId))
	}

	// Render deadline: the export races the timeout; the cancel flag is
	// observed at frame boundaries and encoder polls.
	cancel := &atomic.Bool{}
	type renderResult struct {
		bytes []byte
		err   error
	}
	resultCh := make(chan renderResult, 1)

	permitHeld = false
	go func() {
		defer sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				resultCh <- renderResult{err: internalError("video export panicked: %v", r)}
			}
		}()

		vizData, err := pipeline.Prepare(processed, &options)
		if err != nil {
			resultCh <- renderResult{err: err}
			return
		}
		specs, err := buildStatsOverlaySpecs(req.Stats, &processed.Metrics, &processed.AvailableData)
		if err != nil {
			resultCh <- renderResult{err: err}
			return
		}

		frameStats := func(progress float64) []pipeline.StatOverlayItem {
			return buildStatsOverlayItems(specs, vizData, &processed.Metrics, progress)
		}
		bytes, err := pipeline.RenderVideo(vizData, &options, &output, frameStats, fps, cancel)
		resultCh <- renderResult{bytes: bytes, err: err}
	}()

	renderTimeout := s.config.VideoExportTimeout
	select {
	case result := <-resultCh:
		if result.err != nil {
			if errors.Is(result.err, pipeline.ErrExportCancelled) {
				return exportVideoAppError(c, requestId, internalError("MP4 export cancelled"))
			}
			slog.Error("MP4 export failed", "request_id", requestId, "err", result.err)
			return exportVideoAppError(c, requestId, result.err)
		}

		slog.Info("generated MP4",
			"request_id", requestId,
			"bytes", len(result.bytes),
			"elapsed_ms", time.Since(start).Milliseconds())

		header := c.Response().Header()
		header.Set("x-request-id", requestId)
		header.Set(echo.HeaderContentDisposition, `attachment; filename="rideviz-route.mp4"`)
		return c.Blob(http.StatusOK, "video/mp4", result.bytes)

	case <-time.After(renderTimeout):
		cancel.Store(true)
		slog.Warn("MP4 export timed out",
			"request_id", requestId,
			"timeout_seconds", int(renderTimeout.Seconds()))
		message := "MP4 export timed out after " + strconv.Itoa(int(renderTimeout.Seconds())) +
			"s. Try a smaller size or shorter duration."
		return exportVideoError(c, http.StatusGatewayTimeout, "export_timeout", requestId, message, nil)
	}
}

// videoBackground differs from visualize: MP4 has no alpha channel, so
// transparent is rejected and white is the default.
func videoBackground(requested *string) (*pipeline.RGBA, error) {
	if requested == nil {
		return &pipeline.RGBA{R: 255, G: 255, B: 255, A: 255}, nil
	}
	switch *requested {
	case "white":
		return &pipeline.RGBA{R: 255, G: 255, B: 255, A: 255}, nil
	case "black":
		return &pipeline.RGBA{A: 255}, nil
	case "transparent":
		return nil, badRequestError("MP4 export does not support transparent background")
	}
	return nil, badRequestError("invalid background: %s. Use 'white' or 'black'", *requested)
}
