package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/autogifts/internal/features/pool"
)

type fakeSweeper struct {
	calls []time.Time
}

func (f *fakeSweeper) Sweep(_ context.Context, now time.Time) int {
	f.calls = append(f.calls, now)
	return 1
}

type fakeRefresher struct {
	calls int
}

func (f *fakeRefresher) RefreshAll(context.Context) []pool.Identity {
	f.calls++
	return []pool.Identity{{Name: "stars_1", Active: true}, {Name: "stars_2"}}
}

func TestSchedulerRegistersJobs(t *testing.T) {
	s, err := NewScheduler(time.UTC, &fakeSweeper{}, "@every 1m", &fakeRefresher{}, "@every 15m")
	require.NoError(t, err)
	assert.Equal(t, 2, s.Jobs())

	s, err = NewScheduler(time.UTC, &fakeSweeper{}, "@every 1m", &fakeRefresher{}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Jobs())
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	_, err := NewScheduler(time.UTC, &fakeSweeper{}, "every minute", &fakeRefresher{}, "")
	require.Error(t, err)
}

func TestJobsCallServices(t *testing.T) {
	sweeper := &fakeSweeper{}
	refresher := &fakeRefresher{}
	s, err := NewScheduler(time.UTC, sweeper, "@every 1m", refresher, "@every 15m")
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.sweep()
	s.refresh()
	assert.Equal(t, []time.Time{now}, sweeper.calls)
	assert.Equal(t, 1, refresher.calls)
}
