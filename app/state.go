package app

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mehlleniumfalke/rideviz/pipeline"
)

// State holds the in-memory caches and the video-export admission
// primitives. Everything expires on TTL; nothing is persisted.
type State struct {
	config Config

	mu         sync.RWMutex
	activities map[string]cachedActivity
	licenses   map[string]CachedLicense
	strava     map[string]StravaSession

	videoExportSem     *semaphore.Weighted
	videoExportLimiter *slidingWindowLimiter
}

type cachedActivity struct {
	activity   *pipeline.ProcessedActivity
	insertedAt time.Time
}

type CachedLicense struct {
	Token     string
	Email     string
	IsPro     bool
	ExpiresAt time.Time
}

type StravaSession struct {
	AccessToken string
	AthleteId   *int64
	ExpiresAt   time.Time
}

func NewState(config Config) *State {
	return &State{
		config:             config,
		activities:         make(map[string]cachedActivity),
		licenses:           make(map[string]CachedLicense),
		strava:             make(map[string]StravaSession),
		videoExportSem:     semaphore.NewWeighted(config.VideoExportMaxConcurrency),
		videoExportLimiter: newSlidingWindowLimiter(config.VideoExportRateLimitWindow, config.VideoExportRateLimitMaxReqs),
	}
}

func (s *State) Config() *Config {
	return &s.config
}

func (s *State) InsertActivity(fileId string, activity *pipeline.ProcessedActivity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities[fileId] = cachedActivity{activity: activity, insertedAt: time.Now()}
}

// GetActivity returns a clone; the cached value is never mutated.
func (s *State) GetActivity(fileId string) *pipeline.ProcessedActivity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cached, ok := s.activities[fileId]
	if !ok {
		return nil
	}
	return cached.activity.Clone()
}

func (s *State) StoreLicense(license CachedLicense) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.licenses[license.Token] = license
}

func (s *State) LookupLicense(token string) (CachedLicense, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	license, ok := s.licenses[token]
	return license, ok
}

func (s *State) StoreStravaSession(key string, session StravaSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strava[key] = session
}

func (s *State) GetStravaSession(key string) (StravaSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.strava[key]
	if ok && time.Now().After(session.ExpiresAt) {
		return StravaSession{}, false
	}
	return session, ok
}

func (s *State) VideoExportSemaphore() *semaphore.Weighted {
	return s.videoExportSem
}

func (s *State) VideoExportRateLimiter() *slidingWindowLimiter {
	return s.videoExportLimiter
}

// EvictExpired removes activities past the TTL and licenses and Strava
// sessions past their expiry.
func (s *State) EvictExpired(ttl time.Duration) {
	now := time.Now()

	s.mu.Lock()
	for fileId, cached := range s.activities {
		if now.Sub(cached.insertedAt) >= ttl {
			delete(s.activities, fileId)
		}
	}
	for token, license := range s.licenses {
		if now.After(license.ExpiresAt) {
			delete(s.licenses, token)
		}
	}
	for key, session := range s.strava {
		if now.After(session.ExpiresAt) {
			delete(s.strava, key)
		}
	}
	size := len(s.activities)
	s.mu.Unlock()

	s.videoExportLimiter.evictIdle()
	slog.Info("cache eviction complete", "activities", size)
}

// StartEvictionLoop sweeps the caches every five minutes until stop is
// closed.
func (s *State) StartEvictionLoop(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.EvictExpired(s.config.CacheTTL)
			case <-stop:
				return
			}
		}
	}()
}
