package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postExportVideo(router *echo.Echo, payload map[string]any, token string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/export/video", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func proToken(t *testing.T, subject string) string {
	t.Helper()
	token, err := CreateLicenseToken(subject, subject+"@example.com", true, time.Hour, testSecret)
	require.NoError(t, err)
	return token
}

func exportBody() map[string]any {
	return map[string]any{
		"file_id":          "missing",
		"duration_seconds": 3.0,
		"fps":              24,
	}
}

func decodeExportError(t *testing.T, rec *httptest.ResponseRecorder) exportVideoErrorBody {
	t.Helper()
	var body exportVideoErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestExportVideoRequiresAuthorization(t *testing.T) {
	_, router := newTestServer(t, nil)

	rec := postExportVideo(router, exportBody(), "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	body := decodeExportError(t, rec)
	assert.Equal(t, "unauthorized", body.Code)
	assert.NotEmpty(t, body.RequestId)
	assert.Equal(t, body.RequestId, rec.Header().Get("x-request-id"))
}

func TestExportVideoRejectsNonProLicense(t *testing.T) {
	_, router := newTestServer(t, nil)

	token, err := CreateLicenseToken("free-user", "free@example.com", false, time.Hour, testSecret)
	require.NoError(t, err)

	rec := postExportVideo(router, exportBody(), token)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeExportError(t, rec).Code)
}

func TestExportVideoRateLimitsBeforeNotFound(t *testing.T) {
	_, router := newTestServer(t, func(c *Config) {
		c.VideoExportRateLimitMaxReqs = 1
		c.VideoExportRateLimitWindow = time.Minute
	})
	token := proToken(t, "u-rate")

	first := postExportVideo(router, exportBody(), token)
	require.Equal(t, http.StatusNotFound, first.Code)
	assert.Equal(t, "not_found", decodeExportError(t, first).Code)

	second := postExportVideo(router, exportBody(), token)
	require.Equal(t, http.StatusTooManyRequests, second.Code)

	body := decodeExportError(t, second)
	assert.Equal(t, "rate_limited", body.Code)
	require.NotNil(t, body.RetryAfterSeconds)
	assert.GreaterOrEqual(t, *body.RetryAfterSeconds, int64(1))
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestExportVideoBusyWhenConcurrencyExhausted(t *testing.T) {
	server, router := newTestServer(t, func(c *Config) {
		c.VideoExportMaxConcurrency = 1
		c.VideoExportQueueTimeout = 0
	})

	require.True(t, server.state.VideoExportSemaphore().TryAcquire(1))
	defer server.state.VideoExportSemaphore().Release(1)

	rec := postExportVideo(router, exportBody(), proToken(t, "u-busy"))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := decodeExportError(t, rec)
	assert.Equal(t, "export_busy", body.Code)
	require.NotNil(t, body.RetryAfterSeconds)
	assert.GreaterOrEqual(t, *body.RetryAfterSeconds, int64(1))
}

func TestExportVideoRequiresDurationAndFps(t *testing.T) {
	_, router := newTestServer(t, nil)

	rec := postExportVideo(router, map[string]any{"file_id": "missing"}, proToken(t, "u-missing"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decodeExportError(t, rec).Code)
}

func TestExportVideoRejectsTransparentBackground(t *testing.T) {
	_, router := newTestServer(t, nil)

	payload := exportBody()
	payload["background"] = "transparent"
	rec := postExportVideo(router, payload, proToken(t, "u-transparent"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decodeExportError(t, rec).Code)
}

func TestExportVideoNotFoundCarriesRequestId(t *testing.T) {
	_, router := newTestServer(t, nil)

	rec := postExportVideo(router, exportBody(), proToken(t, "u-404"))
	require.Equal(t, http.StatusNotFound, rec.Code)

	body := decodeExportError(t, rec)
	assert.Equal(t, "not_found", body.Code)
	assert.NotEmpty(t, body.RequestId)
}
