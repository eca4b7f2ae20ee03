package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mehlleniumfalke/rideviz/pipeline"
)

func testProcessedActivity(t *testing.T) *pipeline.ProcessedActivity {
	t.Helper()
	processed, err := pipeline.Process(&pipeline.ParsedActivity{Points: statTestPoints()})
	require.NoError(t, err)
	return processed
}

func TestStateActivityRoundTrip(t *testing.T) {
	state := NewState(testConfig())
	activity := testProcessedActivity(t)

	state.InsertActivity("file-1", activity)

	got := state.GetActivity("file-1")
	require.NotNil(t, got)
	assert.Equal(t, activity.Metrics, got.Metrics)
	assert.Len(t, got.Points, len(activity.Points))

	// Readers get a clone; mutating it must not leak into the cache.
	got.Points[0].Lat = 0
	again := state.GetActivity("file-1")
	assert.NotEqual(t, 0.0, again.Points[0].Lat)

	assert.Nil(t, state.GetActivity("file-2"))
}

func TestStateEvictsExpiredActivities(t *testing.T) {
	state := NewState(testConfig())
	state.InsertActivity("file-1", testProcessedActivity(t))

	state.EvictExpired(time.Hour)
	assert.NotNil(t, state.GetActivity("file-1"))

	state.EvictExpired(0)
	assert.Nil(t, state.GetActivity("file-1"))
}

func TestStateEvictsExpiredLicensesAndSessions(t *testing.T) {
	state := NewState(testConfig())

	state.StoreLicense(CachedLicense{
		Token:     "tok",
		Email:     "rider@example.com",
		IsPro:     true,
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	state.StoreStravaSession("sess", StravaSession{
		AccessToken: "sess",
		ExpiresAt:   time.Now().Add(-time.Minute),
	})

	state.EvictExpired(time.Hour)

	_, ok := state.LookupLicense("tok")
	assert.False(t, ok)
	_, ok = state.GetStravaSession("sess")
	assert.False(t, ok)
}

func TestStravaSessionExpiryIsEnforcedOnRead(t *testing.T) {
	state := NewState(testConfig())
	state.StoreStravaSession("sess", StravaSession{
		AccessToken: "sess",
		ExpiresAt:   time.Now().Add(-time.Second),
	})

	_, ok := state.GetStravaSession("sess")
	assert.False(t, ok)
}
