package app

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        int
	BaseUrl     string
	MaxFileSize int64
	CacheTTL    time.Duration
	JwtSecret   string
	FontPaths   []string

	VideoExportMaxConcurrency   int64
	VideoExportQueueTimeout     time.Duration
	VideoExportTimeout          time.Duration
	VideoExportRateLimitWindow  time.Duration
	VideoExportRateLimitMaxReqs int

	StripeSecretKey     string
	StripePriceId       string
	StripeWebhookSecret string

	StravaClientId     string
	StravaClientSecret string
	StravaRedirectUri  string

	SentryDsn string
}

func LoadConfig() Config {
	baseUrl := os.Getenv("APP_BASE_URL")
	if baseUrl == "" {
		baseUrl = "http://localhost:3000"
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		slog.Error("JWT_SECRET must be set")
		panic("invalid configuration")
	}

	var fontPaths []string
	for _, path := range strings.Split(os.Getenv("FONT_PATHS"), ":") {
		if path != "" {
			fontPaths = append(fontPaths, path)
		}
	}

	return Config{
		Port:        envInt("PORT", 3000),
		BaseUrl:     baseUrl,
		MaxFileSize: int64(envInt("MAX_FILE_SIZE_MB", 25)) * 1024 * 1024,
		CacheTTL:    envDuration("CACHE_TTL_SECONDS", 3600),
		JwtSecret:   secret,
		FontPaths:   fontPaths,

		VideoExportMaxConcurrency:   int64(envInt("VIDEO_EXPORT_MAX_CONCURRENCY", 2)),
		VideoExportQueueTimeout:     envDuration("VIDEO_EXPORT_QUEUE_TIMEOUT_SECONDS", 10),
		VideoExportTimeout:          envDuration("VIDEO_EXPORT_TIMEOUT_SECONDS", 120),
		VideoExportRateLimitWindow:  envDuration("VIDEO_EXPORT_RATE_LIMIT_WINDOW_SECONDS", 600),
		VideoExportRateLimitMaxReqs: envInt("VIDEO_EXPORT_RATE_LIMIT_MAX_REQUESTS", 5),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripePriceId:       os.Getenv("STRIPE_PRICE_ID"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),

		StravaClientId:     os.Getenv("STRAVA_CLIENT_ID"),
		StravaClientSecret: os.Getenv("STRAVA_CLIENT_SECRET"),
		StravaRedirectUri:  os.Getenv("STRAVA_REDIRECT_URI"),

		SentryDsn: os.Getenv("SENTRY_DSN"),
	}
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("ignoring invalid integer environment variable", "name", name, "value", raw)
		return fallback
	}
	return value
}

func envDuration(name string, fallbackSeconds int) time.Duration {
	return time.Duration(envInt(name, fallbackSeconds)) * time.Second
}
