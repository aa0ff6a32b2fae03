package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firefeed/pipeline/internal/models"
	"firefeed/pipeline/internal/storage"
)

type admissionStore struct {
	storage.Storage

	recentCount int
	recentErr   error

	lastPublished      *time.Time
	lastErr            error
	lastPublishedCalls int
}

func (s *admissionStore) RecentItemCount(ctx context.Context, feedID int64, window time.Duration) (int, error) {
	return s.recentCount, s.recentErr
}

func (s *admissionStore) LastPublishedTime(ctx context.Context, feedID int64) (*time.Time, error) {
	s.lastPublishedCalls++
	return s.lastPublished, s.lastErr
}

func limitedFeed() models.Feed {
	return models.Feed{ID: 1, CooldownMinutes: 60, MaxNewsPerHour: 10}
}

func TestShouldProcessAdmitsQuietFeed(t *testing.T) {
	store := &admissionStore{recentCount: 3}
	a := NewAdmissionController(store)

	decision, err := a.ShouldProcess(context.Background(), limitedFeed())
	require.NoError(t, err)

	assert.True(t, decision.Admit)
}

func TestShouldProcessRateLimit(t *testing.T) {
	store := &admissionStore{recentCount: 10}
	a := NewAdmissionController(store)

	decision, err := a.ShouldProcess(context.Background(), limitedFeed())
	require.NoError(t, err)

	assert.False(t, decision.Admit)
	assert.Equal(t, SkipRateLimited, decision.Reason)
	assert.Zero(t, store.lastPublishedCalls, "rate limit must short-circuit before the cooldown check")
}

func TestShouldProcessCooldown(t *testing.T) {
	recent := time.Now().Add(-10 * time.Minute)
	store := &admissionStore{recentCount: 1, lastPublished: &recent}
	a := NewAdmissionController(store)

	decision, err := a.ShouldProcess(context.Background(), limitedFeed())
	require.NoError(t, err)

	assert.False(t, decision.Admit)
	assert.Equal(t, SkipCooldown, decision.Reason)
}

func TestShouldProcessCooldownExpired(t *testing.T) {
	old := time.Now().Add(-2 * time.Hour)
	store := &admissionStore{recentCount: 1, lastPublished: &old}
	a := NewAdmissionController(store)

	decision, err := a.ShouldProcess(context.Background(), limitedFeed())
	require.NoError(t, err)

	assert.True(t, decision.Admit)
}

func TestShouldProcessNeverPublishedFeedAdmitted(t *testing.T) {
	store := &admissionStore{}
	a := NewAdmissionController(store)

	decision, err := a.ShouldProcess(context.Background(), limitedFeed())
	require.NoError(t, err)

	assert.True(t, decision.Admit)
}

func TestShouldProcessZeroLimitsDisableChecks(t *testing.T) {
	recent := time.Now().Add(-time.Minute)
	store := &admissionStore{recentCount: 1000, lastPublished: &recent}
	a := NewAdmissionController(store)

	feed := models.Feed{ID: 1, CooldownMinutes: 0, MaxNewsPerHour: 0}
	decision, err := a.ShouldProcess(context.Background(), feed)
	require.NoError(t, err)

	assert.True(t, decision.Admit)
	assert.Zero(t, store.lastPublishedCalls)
}

func TestShouldProcessStorageErrorSurfaces(t *testing.T) {
	store := &admissionStore{recentErr: errors.New("db locked")}
	a := NewAdmissionController(store)

	_, err := a.ShouldProcess(context.Background(), limitedFeed())
	require.Error(t, err)
}
