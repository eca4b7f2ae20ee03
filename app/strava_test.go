package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStravaAuthRequiresConfiguration(t *testing.T) {
	_, router := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/strava/auth", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStravaAuthReturnsAuthUrlAndState(t *testing.T) {
	server, router := newTestServer(t, func(c *Config) {
		c.StravaClientId = "123"
		c.StravaClientSecret = "shhh"
		c.StravaRedirectUri = "http://localhost:3000/api/strava/callback"
	})

	req := httptest.NewRequest(http.MethodGet, "/api/strava/auth", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "strava.com/oauth/authorize")
	assert.Contains(t, rec.Body.String(), "client_id=123")

	// The state nonce is parked in the session cache for the callback.
	var response StravaAuthResponse
	require.NoError(t, decodeBody(rec, &response))
	_, ok := server.state.GetStravaSession(response.State)
	assert.True(t, ok)
}

func TestStravaCallbackRejectsUnknownState(t *testing.T) {
	_, router := newTestServer(t, func(c *Config) {
		c.StravaClientId = "123"
		c.StravaClientSecret = "shhh"
		c.StravaRedirectUri = "http://localhost:3000/api/strava/callback"
	})

	req := httptest.NewRequest(http.MethodGet, "/api/strava/callback?code=abc&state=bogus", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStravaActivitiesRequireSession(t *testing.T) {
	_, router := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/strava/activities", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer unknown-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
