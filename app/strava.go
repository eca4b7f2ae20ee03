package app

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"

	"github.com/mehlleniumfalke/rideviz/pipeline"
)

var stravaEndpoint = oauth2.Endpoint{
	AuthURL:  "https://www.strava.com/oauth/authorize",
	TokenURL: "https://www.strava.com/oauth/token",
}

const stravaApiBase = "https://www.strava.com/api/v3"

func (s *ServerState) stravaOAuthConfig() (*oauth2.Config, error) {
	if s.config.StravaClientId == "" || s.config.StravaClientSecret == "" {
		return nil, badRequestError("STRAVA_CLIENT_ID and STRAVA_CLIENT_SECRET are not configured")
	}
	if s.config.StravaRedirectUri == "" {
		return nil, badRequestError("STRAVA_REDIRECT_URI is not configured")
	}
	return &oauth2.Config{
		ClientID:     s.config.StravaClientId,
		ClientSecret: s.config.StravaClientSecret,
		Endpoint:     stravaEndpoint,
		RedirectURL:  s.config.StravaRedirectUri,
		Scopes:       []string{"read,activity:read_all"},
	}, nil
}

type StravaAuthResponse struct {
	AuthUrl string `json:"auth_url"`
	State   string `json:"state"`
}

func (s *ServerState) handleStravaAuth(c echo.Context) error {
	conf, err := s.stravaOAuthConfig()
	if err != nil {
		return err
	}

	// The state nonce lives in the session cache until the callback.
	oauthState := uuid.NewString()
	s.state.StoreStravaSession(oauthState, StravaSession{
		ExpiresAt: time.Now().Add(10 * time.Minute),
	})

	authUrl := conf.AuthCodeURL(oauthState, oauth2.SetAuthURLParam("approval_prompt", "auto"))
	return c.JSON(http.StatusOK, StravaAuthResponse{AuthUrl: authUrl, State: oauthState})
}

type StravaCallbackResponse struct {
	AccessToken      string `json:"access_token"`
	AthleteId        *int64 `json:"athlete_id"`
	ExpiresInSeconds int64  `json:"expires_in_seconds"`
}

func (s *ServerState) handleStravaCallback(c echo.Context) error {
	code := c.QueryParam("code")
	oauthState := c.QueryParam("state")
	if code == "" || oauthState == "" {
		return badRequestError("code and state are required")
	}
	if _, ok := s.state.GetStravaSession(oauthState); !ok {
		return unauthorizedError("invalid OAuth state")
	}

	conf, err := s.stravaOAuthConfig()
	if err != nil {
		return err
	}

	token, err := conf.Exchange(c.Request().Context(), code)
	if err != nil {
		return badRequestError("Strava token exchange failed: %v", err)
	}

	var athleteId *int64
	if athlete, ok := token.Extra("athlete").(map[string]any); ok {
		if id, ok := athlete["id"].(float64); ok {
			v := int64(id)
			athleteId = &v
		}
	}

	expiresIn := int64(6 * 3600)
	expiresAt := time.Now().Add(6 * time.Hour)
	if !token.Expiry.IsZero() {
		expiresAt = token.Expiry
		if delta := time.Until(token.Expiry); delta > 0 {
			expiresIn = int64(delta.Seconds())
		}
	}

	s.state.StoreStravaSession(token.AccessToken, StravaSession{
		AccessToken: token.AccessToken,
		AthleteId:   athleteId,
		ExpiresAt:   expiresAt,
	})

	return c.JSON(http.StatusOK, StravaCallbackResponse{
		AccessToken:      token.AccessToken,
		AthleteId:        athleteId,
		ExpiresInSeconds: expiresIn,
	})
}

// stravaGet performs an authenticated GET and decodes the schemaless JSON
// payload into dst.
func stravaGet(url, accessToken string, dst any) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return internalError("failed to build Strava request: %v", err)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return internalError("failed to reach Strava: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return badRequestError("Strava request failed (%d): %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return internalError("invalid Strava response: %v", err)
	}
	return nil
}

func (s *ServerState) stravaSessionFromRequest(c echo.Context) (StravaSession, error) {
	accessToken, ok := bearerToken(c)
	if !ok {
		return StravaSession{}, unauthorizedError("missing Strava Bearer token")
	}
	session, ok := s.state.GetStravaSession(accessToken)
	if !ok || session.AccessToken == "" {
		return StravaSession{}, unauthorizedError("expired or unknown Strava session")
	}
	return session, nil
}

type StravaActivitySummary struct {
	Id        int64   `json:"id"`
	Name      string  `json:"name"`
	DistanceM float64 `json:"distance_m"`
	StartDate string  `json:"start_date,omitempty"`
}

func (s *ServerState) handleStravaActivities(c echo.Context) error {
	session, err := s.stravaSessionFromRequest(c)
	if err != nil {
		return err
	}

	var payload []map[string]any
	if err := stravaGet(stravaApiBase+"/athlete/activities?per_page=20", session.AccessToken, &payload); err != nil {
		return err
	}

	activities := make([]StravaActivitySummary, 0, len(payload))
	for _, activity := range payload {
		id, ok := activity["id"].(float64)
		if !ok {
			continue
		}
		summary := StravaActivitySummary{Id: int64(id), Name: "Activity"}
		if name, ok := activity["name"].(string); ok {
			summary.Name = name
		}
		if distance, ok := activity["distance"].(float64); ok {
			summary.DistanceM = distance
		}
		if startDate, ok := activity["start_date"].(string); ok {
			summary.StartDate = startDate
		}
		activities = append(activities, summary)
	}

	return c.JSON(http.StatusOK, activities)
}

func (s *ServerState) handleStravaImport(c echo.Context) error {
	session, err := s.stravaSessionFromRequest(c)
	if err != nil {
		return err
	}
	activityId := c.Param("activity_id")

	var streams map[string]struct {
		Data []any `json:"data"`
	}
	url := fmt.Sprintf("%s/activities/%s/streams?keys=latlng,altitude,time,heartrate,watts&key_by_type=true",
		stravaApiBase, activityId)
	if err := stravaGet(url, session.AccessToken, &streams); err != nil {
		return err
	}

	latlng, ok := streams["latlng"]
	if !ok || len(latlng.Data) == 0 {
		return badRequestError("Strava stream missing latlng data")
	}
	altitude := streams["altitude"].Data
	elapsed := streams["time"].Data
	heartRate := streams["heartrate"].Data
	watts := streams["watts"].Data

	now := time.Now().UTC()
	points := make([]pipeline.TrackPoint, 0, len(latlng.Data))
	for idx, entry := range latlng.Data {
		coord, ok := entry.([]any)
		if !ok || len(coord) < 2 {
			continue
		}
		lat, _ := coord[0].(float64)
		lon, _ := coord[1].(float64)

		point := pipeline.TrackPoint{Lat: lat, Lon: lon}
		if v, ok := streamFloat(altitude, idx); ok {
			point.Elevation = &v
		}
		elapsedSeconds := float64(idx)
		if v, ok := streamFloat(elapsed, idx); ok {
			elapsedSeconds = v
		}
		ts := now.Add(time.Duration(elapsedSeconds) * time.Second)
		point.Time = &ts
		if v, ok := streamFloat(heartRate, idx); ok && v >= 0 {
			hr := uint16(v)
			point.HeartRate = &hr
		}
		if v, ok := streamFloat(watts, idx); ok && v >= 0 {
			power := uint16(v)
			point.Power = &power
		}
		points = append(points, point)
	}

	processed, err := pipeline.Process(&pipeline.ParsedActivity{Points: points})
	if err != nil {
		return wrapPipelineError(err)
	}

	fileId := uuid.NewString()
	s.state.InsertActivity(fileId, processed)

	return c.JSON(http.StatusOK, UploadResponse{
		FileId:                  fileId,
		FileType:                "strava",
		Metrics:                 processed.Metrics,
		AvailableData:           processed.AvailableData,
		AvailableVisualizations: availableVisualizations(&processed.AvailableData),
	})
}

func streamFloat(data []any, idx int) (float64, bool) {
	if idx >= len(data) {
		return 0, false
	}
	v, ok := data[idx].(float64)
	return v, ok
}
