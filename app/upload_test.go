package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadGpxReturnsMetrics(t *testing.T) {
	_, router := newTestServer(t, nil)

	body, contentType := multipartUpload(t, "ride.gpx", testGpx)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var response UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	assert.NotEmpty(t, response.FileId)
	assert.Equal(t, "gpx", response.FileType)
	assert.InDelta(t, 0.0585, response.Metrics.DistanceKm, 0.005)
	assert.Equal(t, 5.0, response.Metrics.ElevationGainM)
	assert.Equal(t, uint64(10), response.Metrics.DurationSeconds)
	assert.True(t, response.AvailableData.HasCoordinates)
	assert.True(t, response.AvailableData.HasElevation)
	assert.False(t, response.AvailableData.HasHeartRate)
	assert.False(t, response.AvailableData.HasPower)
	assert.Contains(t, response.AvailableVisualizations, "route")
	assert.Contains(t, response.AvailableVisualizations, "elevation")
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	_, router := newTestServer(t, nil)

	body, contentType := multipartUpload(t, "ride.txt", "hello")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRejectsMissingFileField(t *testing.T) {
	_, router := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/upload", nil)
	req.Header.Set(echo.HeaderContentType, "multipart/form-data; boundary=xxx")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRejectsEmptyActivity(t *testing.T) {
	_, router := newTestServer(t, nil)

	empty := `<?xml version="1.0"?><gpx version="1.1" creator="t" xmlns="http://www.topografix.com/GPX/1/1"><trk><trkseg></trkseg></trk></gpx>`
	body, contentType := multipartUpload(t, "empty.gpx", empty)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
