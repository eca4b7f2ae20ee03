package app

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mehlleniumfalke/rideviz/pipeline"
)

type UploadResponse struct {
	FileId                  string                 `json:"file_id"`
	FileType                string                 `json:"file_type"`
	Metrics                 pipeline.Metrics       `json:"metrics"`
	AvailableData           pipeline.AvailableData `json:"available_data"`
	AvailableVisualizations []string               `json:"available_visualizations"`
}

func (s *ServerState) handleUpload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return badRequestError("no file provided")
	}

	format, ok := pipeline.FormatFromFilename(fileHeader.Filename)
	if !ok {
		return badRequestError("unsupported file format")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return badRequestError("failed to read file: %v", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return badRequestError("failed to read file bytes: %v", err)
	}

	slog.Info("parsing uploaded activity", "format", format.String(), "filename", fileHeader.Filename)

	parsed, err := pipeline.Parse(data, format)
	if err != nil {
		return wrapPipelineError(err)
	}
	processed, err := pipeline.Process(parsed)
	if err != nil {
		return wrapPipelineError(err)
	}

	fileId := uuid.NewString()
	s.state.InsertActivity(fileId, processed)

	slog.Info("uploaded activity",
		"filename", fileHeader.Filename,
		"file_id", fileId,
		"points", len(processed.Points),
		"distance_km", processed.Metrics.DistanceKm)

	return c.JSON(http.StatusOK, UploadResponse{
		FileId:                  fileId,
		FileType:                format.String(),
		Metrics:                 processed.Metrics,
		AvailableData:           processed.AvailableData,
		AvailableVisualizations: availableVisualizations(&processed.AvailableData),
	})
}

func availableVisualizations(data *pipeline.AvailableData) []string {
	var viz []string
	if data.HasCoordinates {
		viz = append(viz, "route")
	}
	if data.HasElevation {
		viz = append(viz, "elevation")
	}
	if data.HasHeartRate {
		viz = append(viz, "heartrate")
	}
	if data.HasPower {
		viz = append(viz, "power")
	}
	return viz
}
