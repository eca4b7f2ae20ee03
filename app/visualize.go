package app

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mehlleniumfalke/rideviz/pipeline"
)

const (
	minDimension  = 320
	maxDimension  = 4096
	maxMegapixels = 10.0
)

// VisualizeRequest is the /api/visualize body. Unknown fields are
// rejected; absent fields take the defaults below.
type VisualizeRequest struct {
	FileId      string   `json:"file_id"`
	Gradient    string   `json:"gradient"`
	Width       *int     `json:"width"`
	Height      *int     `json:"height"`
	ColorBy     *string  `json:"color_by"`
	StrokeWidth float64  `json:"stroke_width"`
	Padding     int      `json:"padding"`
	Smoothing   int      `json:"smoothing"`
	Glow        bool     `json:"glow"`
	Background  *string  `json:"background"`
	Stats       []string `json:"stats"`
}

func defaultVisualizeRequest() VisualizeRequest {
	return VisualizeRequest{
		Gradient:    "fire",
		StrokeWidth: 3.0,
		Padding:     40,
		Smoothing:   30,
		Glow:        true,
	}
}

func decodeStrictJSON(c echo.Context, dst any) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequestError("invalid request body: %v", err)
	}
	return nil
}

func validateDimensions(width, height int) error {
	if width < minDimension || width > maxDimension || height < minDimension || height > maxDimension {
		return badRequestError("invalid dimensions: %dx%d. Width/height must be between %d and %d",
			width, height, minDimension, maxDimension)
	}
	megapixels := float64(width) * float64(height) / 1e6
	if megapixels > maxMegapixels {
		return badRequestError("image too large: %dx%d (%.2f MP). Max allowed is %.1f MP",
			width, height, megapixels, maxMegapixels)
	}
	return nil
}

// applyRenderOptions folds the shared request fields into RenderOptions.
func applyRenderOptions(options *pipeline.RenderOptions, req *VisualizeRequest) error {
	if gradient, ok := pipeline.GradientByName(req.Gradient); ok {
		options.Gradient = gradient
	} else {
		options.Gradient = pipeline.DefaultGradient()
	}

	switch {
	case req.Width != nil && req.Height != nil:
		if err := validateDimensions(*req.Width, *req.Height); err != nil {
			return err
		}
		options.Width = *req.Width
		options.Height = *req.Height
	case req.Width == nil && req.Height == nil:
	default:
		return badRequestError("both width and height must be provided together")
	}

	options.StrokeWidth = req.StrokeWidth
	options.Padding = req.Padding
	options.Smoothing = req.Smoothing
	options.Glow = req.Glow
	options.Simplify, options.CurveTension = pipeline.SmoothingToRouteParams(req.Smoothing)

	if req.ColorBy != nil {
		metric, ok := pipeline.ColorByFromString(*req.ColorBy)
		if !ok {
			return badRequestError("invalid color_by: %s. Use 'elevation', 'speed', 'heartrate', or 'power'", *req.ColorBy)
		}
		options.ColorBy = &metric
	}
	return nil
}

func visualizeBackground(requested *string) (*pipeline.RGBA, error) {
	if requested == nil {
		return nil, nil
	}
	switch *requested {
	case "transparent":
		return nil, nil
	case "white":
		return &pipeline.RGBA{R: 255, G: 255, B: 255, A: 255}, nil
	case "black":
		return &pipeline.RGBA{A: 255}, nil
	}
	return nil, badRequestError("invalid background: %s. Use 'transparent', 'white', or 'black'", *requested)
}

func (s *ServerState) handleVisualize(c echo.Context) error {
	req := defaultVisualizeRequest()
	if err := decodeStrictJSON(c, &req); err != nil {
		return err
	}

	processed := s.state.GetActivity(req.FileId)
	if processed == nil {
		return notFoundError(req.FileId)
	}

	options := pipeline.Route3DDefaults()
	if err := applyRenderOptions(&options, &req); err != nil {
		return err
	}

	background, err := visualizeBackground(req.Background)
	if err != nil {
		return err
	}

	vizData, err := pipeline.Prepare(processed, &options)
	if err != nil {
		return wrapPipelineError(err)
	}

	specs, err := buildStatsOverlaySpecs(req.Stats, &processed.Metrics, &processed.AvailableData)
	if err != nil {
		return err
	}

	// A verified pro license suppresses the watermark.
	proLicense := false
	if token, ok := bearerToken(c); ok {
		if claims, err := VerifyLicenseToken(token, s.config.JwtSecret); err == nil {
			proLicense = claims.Pro
		}
	}

	output := pipeline.OutputConfig{
		Width:      options.Width,
		Height:     options.Height,
		Background: background,
		Watermark:  !proLicense,
	}

	// Static image: a single frame at full progress.
	stats := buildStatsOverlayItems(specs, vizData, &processed.Metrics, 1.0)
	svgText, err := pipeline.RenderSVGFrame(vizData, &options, 1.0, stats)
	if err != nil {
		return wrapPipelineError(err)
	}
	imageBytes, err := pipeline.Rasterize(svgText, &output)
	if err != nil {
		return wrapPipelineError(err)
	}

	slog.Info("generated PNG", "bytes", len(imageBytes))
	return c.Blob(http.StatusOK, "image/png", imageBytes)
}

type RouteDataResponse struct {
	FileId        string                 `json:"file_id"`
	VizData       *pipeline.VizData      `json:"viz_data"`
	Metrics       pipeline.Metrics       `json:"metrics"`
	AvailableData pipeline.AvailableData `json:"available_data"`
}

func (s *ServerState) handleRouteData(c echo.Context) error {
	fileId := c.Param("file_id")
	processed := s.state.GetActivity(fileId)
	if processed == nil {
		return notFoundError(fileId)
	}

	smoothing := 30
	if raw := c.QueryParam("smoothing"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			smoothing = parsed
		}
	}

	options := pipeline.Route3DDefaults()
	options.Smoothing = smoothing
	options.Simplify, options.CurveTension = pipeline.SmoothingToRouteParams(smoothing)
	if raw := c.QueryParam("color_by"); raw != "" {
		if metric, ok := pipeline.ColorByFromString(raw); ok {
			options.ColorBy = &metric
		}
	}

	vizData, err := pipeline.Prepare(processed, &options)
	if err != nil {
		return wrapPipelineError(err)
	}

	return c.JSON(http.StatusOK, RouteDataResponse{
		FileId:        fileId,
		VizData:       vizData,
		Metrics:       processed.Metrics,
		AvailableData: processed.AvailableData,
	})
}
