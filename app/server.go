package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stripe/stripe-go/v76"

	"github.com/mehlleniumfalke/rideviz/pipeline"
)

// Version is reported by the health endpoint.
const Version = "1.2.0"

type ServerState struct {
	config Config
	state  *State
}

func NewServer() *ServerState {
	config := LoadConfig()
	return NewServerWithConfig(config)
}

func NewServerWithConfig(config Config) *ServerState {
	pipeline.InitFonts(config.FontPaths)

	if config.StripeSecretKey != "" {
		stripe.Key = config.StripeSecretKey
	}

	if config.SentryDsn != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: config.SentryDsn}); err != nil {
			slog.Error("failed to initialize sentry", "err", err)
		}
	}

	return &ServerState{
		config: config,
		state:  NewState(config),
	}
}

// Router builds the echo instance with all routes and middleware.
func (s *ServerState) Router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = httpErrorHandler

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"*"},
	}))
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", s.config.MaxFileSize>>20)))

	logger := slog.Default()
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error == nil {
				logger.LogAttrs(context.Background(), slog.LevelInfo, "REQUEST",
					slog.String("uri", v.URI),
					slog.Int("status", v.Status),
				)
			} else {
				logger.LogAttrs(context.Background(), slog.LevelError, "REQUEST_ERROR",
					slog.String("uri", v.URI),
					slog.Int("status", v.Status),
					slog.String("err", v.Error.Error()),
				)
			}
			return nil
		},
	}))

	// static frontend
	e.Static("/assets", "assets/web")

	e.GET("/health", handleHealth)

	e.POST("/api/upload", s.handleUpload)
	e.POST("/api/visualize", s.handleVisualize)
	e.POST("/api/export/video", s.handleExportVideo)
	e.GET("/api/route-data/:file_id", s.handleRouteData)

	e.POST("/api/checkout", s.handleCreateCheckout)
	e.POST("/api/checkout/complete", s.handleCompleteCheckout)
	e.POST("/api/webhook/stripe", s.handleStripeWebhook)
	e.GET("/api/license/verify", s.handleVerifyLicense)

	e.GET("/api/strava/auth", s.handleStravaAuth)
	e.GET("/api/strava/callback", s.handleStravaCallback)
	e.GET("/api/strava/activities", s.handleStravaActivities)
	e.GET("/api/strava/activity/:activity_id", s.handleStravaImport)

	return e
}

func (s *ServerState) RunForever() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	e := s.Router()

	stop := make(chan struct{})
	defer close(stop)
	s.state.StartEvictionLoop(stop)

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("starting server", "port", s.config.Port)
	e.Logger.Fatal(e.Start(addr))
}

func handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": Version,
	})
}

func bearerToken(c echo.Context) (string, bool) {
	raw := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if len(raw) <= len(prefix) || raw[:len(prefix)] != prefix {
		return "", false
	}
	return raw[len(prefix):], true
}
