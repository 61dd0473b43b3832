package subscription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pollResponse struct {
	result PollResult
	err    error
}

// fakePoller answers polls from a script. When gate is set every poll waits
// for a value on it before answering.
type fakePoller struct {
	mu        sync.Mutex
	script    []pollResponse
	calls     int
	active    int
	maxActive int
	gate      chan struct{}
}

func (p *fakePoller) HandlePendingEvents(ctx context.Context, cfg Config) (PollResult, error) {
	p.mu.Lock()
	p.calls++
	p.active++
	p.maxActive = max(p.maxActive, p.active)
	var resp pollResponse
	if len(p.script) > 0 {
		resp, p.script = p.script[0], p.script[1:]
	}
	gate := p.gate
	p.mu.Unlock()

	if gate != nil {
		<-gate
	}

	p.mu.Lock()
	p.active--
	p.mu.Unlock()
	return resp.result, resp.err
}

func (p *fakePoller) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func idleIntervals() IntervalConfig {
	return IntervalConfig{
		InitialDelay: Fixed(time.Hour),
		Interval:     time.Hour,
		MaxInterval:  time.Hour,
		Jitter:       Fixed(0),
		GreedyDelay:  Fixed(time.Millisecond),
	}
}

func startWorker(t *testing.T, p Poller, cfg Config, iv IntervalConfig) *Worker {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "accounts-view"
	}
	w := NewWorker(cfg, iv, p, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-w.Done()
	})
	return w
}

func submit(t *testing.T, w *Worker, cmd Command) Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	st, err := w.Submit(ctx, cmd)
	require.NoError(t, err)
	return st
}

func waitIdle(t *testing.T, w *Worker, calls func() int, want int) Status {
	t.Helper()
	var st Status
	require.Eventually(t, func() bool {
		st = submit(t, w, CommandShowStatus)
		return !st.Busy && calls() >= want
	}, 2*time.Second, 5*time.Millisecond)
	return st
}

func TestWorkerTryPerformNow(t *testing.T) {
	p := &fakePoller{script: []pollResponse{{result: PollResult{Offset: 12, Count: 3}}}}
	w := startWorker(t, p, Config{}, idleIntervals())

	st := submit(t, w, CommandShowStatus)
	assert.Equal(t, Status{SubscriptionName: "accounts-view"}, st)
	assert.Equal(t, 0, p.Calls())

	submit(t, w, CommandTryPerformNow)
	st = waitIdle(t, w, p.Calls, 1)
	assert.Equal(t, 12, int(st.CurrentOffset))
	assert.Zero(t, st.Failures)
	assert.Zero(t, st.BackOff)
	assert.False(t, st.Greedy)
}

func TestWorkerReportsBusyAndNeverOverlapsPolls(t *testing.T) {
	p := &fakePoller{gate: make(chan struct{})}
	w := startWorker(t, p, Config{}, idleIntervals())

	st := submit(t, w, CommandTryPerformNow)
	assert.True(t, st.Busy)

	st = submit(t, w, CommandTryPerformNow)
	assert.True(t, st.Busy)
	st = submit(t, w, CommandShowStatus)
	assert.True(t, st.Busy)

	p.gate <- struct{}{}
	st = waitIdle(t, w, p.Calls, 1)
	assert.Equal(t, 1, st.BackOff)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, 1, p.maxActive)
}

func TestWorkerPauseAndResume(t *testing.T) {
	p := &fakePoller{}
	w := startWorker(t, p, Config{}, idleIntervals())

	st := submit(t, w, CommandPause)
	assert.True(t, st.Paused)

	st = submit(t, w, CommandTryPerformNow)
	assert.True(t, st.Paused)
	assert.False(t, st.Busy)
	assert.Equal(t, 0, p.Calls())

	st = submit(t, w, CommandResume)
	assert.False(t, st.Paused)

	submit(t, w, CommandTryPerformNow)
	waitIdle(t, w, p.Calls, 1)
}

func TestWorkerUnknownCommand(t *testing.T) {
	p := &fakePoller{}
	w := startWorker(t, p, Config{}, idleIntervals())
	submit(t, w, CommandPause)

	st, err := w.Submit(context.Background(), Command("REWIND"))
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, Command("REWIND"), cmdErr.Command)
	assert.Equal(t, "accounts-view", cmdErr.Subscription)
	assert.True(t, st.Paused)

	st = submit(t, w, CommandShowStatus)
	assert.True(t, st.Paused)
	assert.Equal(t, 0, p.Calls())
}

func TestWorkerFailuresAndRecovery(t *testing.T) {
	p := &fakePoller{script: []pollResponse{
		{err: errors.New("connection reset")},
		{err: ErrSubscriptionLocked},
		{result: PollResult{Offset: 4, Count: 1}},
	}}
	w := startWorker(t, p, Config{}, idleIntervals())

	submit(t, w, CommandTryPerformNow)
	st := waitIdle(t, w, p.Calls, 1)
	assert.Equal(t, 1, st.Failures)

	submit(t, w, CommandTryPerformNow)
	st = waitIdle(t, w, p.Calls, 2)
	assert.Equal(t, 2, st.Failures)
	assert.Zero(t, int(st.CurrentOffset))

	submit(t, w, CommandTryPerformNow)
	st = waitIdle(t, w, p.Calls, 3)
	assert.Zero(t, st.Failures)
	assert.Equal(t, 4, int(st.CurrentOffset))
}

func TestWorkerRecoversPanickingPoll(t *testing.T) {
	w := startWorker(t, pollerFunc(func(context.Context, Config) (PollResult, error) {
		panic("sink bug")
	}), Config{}, idleIntervals())

	submit(t, w, CommandTryPerformNow)
	require.Eventually(t, func() bool {
		st := submit(t, w, CommandShowStatus)
		return !st.Busy && st.Failures == 1
	}, 2*time.Second, 5*time.Millisecond)
}

type pollerFunc func(context.Context, Config) (PollResult, error)

func (f pollerFunc) HandlePendingEvents(ctx context.Context, cfg Config) (PollResult, error) {
	return f(ctx, cfg)
}

func TestWorkerGreedyPollsAgainQuickly(t *testing.T) {
	p := &fakePoller{script: []pollResponse{
		{result: PollResult{Offset: 2, Count: 2}},
		{result: PollResult{Offset: 4, Count: 2}},
		{},
	}}
	w := startWorker(t, p, Config{MaxRows: 2}, idleIntervals())

	submit(t, w, CommandTryPerformNow)
	st := waitIdle(t, w, p.Calls, 3)
	assert.Equal(t, 4, int(st.CurrentOffset))
	assert.False(t, st.Greedy)
	assert.Equal(t, 1, st.BackOff)
}

func TestWorkerTimerDrivesPolls(t *testing.T) {
	p := &fakePoller{}
	iv := idleIntervals()
	iv.InitialDelay = Fixed(time.Millisecond)
	w := startWorker(t, p, Config{}, iv)

	st := waitIdle(t, w, p.Calls, 1)
	assert.Equal(t, 1, st.BackOff)
}

func TestWorkerStopWaitsForInFlightPoll(t *testing.T) {
	p := &fakePoller{gate: make(chan struct{})}
	w := NewWorker(Config{Name: "journal"}, idleIntervals(), p, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	submit(t, w, CommandTryPerformNow)
	cancel()

	select {
	case <-w.Done():
		t.Fatal("worker exited with a poll in flight")
	case <-time.After(20 * time.Millisecond):
	}

	p.gate <- struct{}{}
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not exit")
	}

	_, err := w.Submit(context.Background(), CommandShowStatus)
	assert.ErrorIs(t, err, ErrStopped)
}
