package cron_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flemzord/trekassist/internal/cron"
	"github.com/flemzord/trekassist/internal/cron/crontest"
)

func newScheduler(t *testing.T, jobs ...cron.Job) *cron.Scheduler {
	t.Helper()
	s := cron.NewScheduler(slog.New(slog.DiscardHandler))
	for _, j := range jobs {
		require.NoError(t, s.RegisterJob(j))
	}
	return s
}

func start(t *testing.T, s *cron.Scheduler) {
	t.Helper()
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
}

func TestScheduler_DuplicateName(t *testing.T) {
	t.Parallel()
	s := newScheduler(t, &crontest.MockJob{NameVal: "knowledge_refresh", ScheduleVal: "@every 1h"})
	err := s.RegisterJob(&crontest.MockJob{NameVal: "knowledge_refresh", ScheduleVal: "@every 2h"})
	assert.ErrorContains(t, err, "duplicate")
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	t.Parallel()
	s := newScheduler(t, &crontest.MockJob{NameVal: "bad", ScheduleVal: "every tuesday"})
	assert.ErrorContains(t, s.Start(), `"bad"`)
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	t.Parallel()
	assert.NoError(t, newScheduler(t).Stop(context.Background()))
}

func TestScheduler_RunsStartupJobs(t *testing.T) {
	t.Parallel()
	boot := &crontest.MockJob{NameVal: "knowledge_refresh", ScheduleVal: "@every 1h", OnStart: true}
	idle := &crontest.MockJob{NameVal: "session_cleanup", ScheduleVal: "@every 1h"}
	started := boot.Started()

	s := newScheduler(t, boot, idle)
	start(t, s)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("startup job never ran")
	}
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, 1, boot.Calls())
	assert.Zero(t, idle.Calls())
	assert.Equal(t, []string{"knowledge_refresh", "session_cleanup"}, s.Jobs())
}

func TestScheduler_RunNow(t *testing.T) {
	t.Parallel()
	job := &crontest.MockJob{NameVal: "cache_maintenance", ScheduleVal: "*/15 * * * *"}
	s := newScheduler(t, job)

	assert.ErrorIs(t, s.RunNow(t.Context(), "cache_maintenance"), cron.ErrNotStarted)
	start(t, s)

	require.NoError(t, s.RunNow(t.Context(), "cache_maintenance"))
	assert.Equal(t, 1, job.Calls())
	assert.ErrorIs(t, s.RunNow(t.Context(), "nope"), cron.ErrUnknownJob)
}

func TestScheduler_NoOverlap(t *testing.T) {
	t.Parallel()
	gate := make(chan struct{})
	job := &crontest.MockJob{NameVal: "knowledge_refresh", ScheduleVal: "@every 1h", OnStart: true, Gate: gate}
	started := job.Started()
	s := newScheduler(t, job)
	start(t, s)
	<-started

	assert.ErrorIs(t, s.RunNow(t.Context(), "knowledge_refresh"), cron.ErrJobBusy)
	assert.True(t, s.Status()[0].Running)

	close(gate)
	assert.Eventually(t, func() bool { return !s.Status()[0].Running }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.RunNow(t.Context(), "knowledge_refresh"))
	assert.Equal(t, 2, job.Calls())
}

func TestScheduler_StatusRecordsOutcome(t *testing.T) {
	t.Parallel()
	job := &crontest.MockJob{NameVal: "session_cleanup", ScheduleVal: "@every 6h", Err: errors.New("store offline")}
	s := newScheduler(t, job)
	start(t, s)

	require.Error(t, s.RunNow(t.Context(), "session_cleanup"))
	st := s.Status()[0]
	assert.Equal(t, "session_cleanup", st.Name)
	assert.Equal(t, "@every 6h", st.Schedule)
	assert.Equal(t, 1, st.Runs)
	assert.Equal(t, "store offline", st.LastError)
	assert.False(t, st.LastRun.IsZero())
	assert.True(t, st.NextRun.After(st.LastRun))

	job.Err = nil
	require.NoError(t, s.RunNow(t.Context(), "session_cleanup"))
	st = s.Status()[0]
	assert.Equal(t, 2, st.Runs)
	assert.Empty(t, st.LastError)
}

func TestScheduler_StopCancelsRunningJob(t *testing.T) {
	t.Parallel()
	job := &crontest.MockJob{NameVal: "knowledge_refresh", ScheduleVal: "@every 1h", OnStart: true, Gate: make(chan struct{})}
	started := job.Started()
	s := newScheduler(t, job)
	require.NoError(t, s.Start())
	<-started

	done := make(chan struct{})
	go func() {
		_ = s.Stop(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, "context canceled", s.Status()[0].LastError)
}
