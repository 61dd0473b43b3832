package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/seqlog/libs/eventstore"
)

type commandRequest struct {
	cmd   Command
	reply chan commandReply
}

type commandReply struct {
	status Status
	err    error
}

type pollOutcome struct {
	result PollResult
	err    error
}

// schedule is the scheduling state of one subscription. Only the worker
// goroutine touches it.
type schedule struct {
	busy       bool
	paused     bool
	greedy     bool
	failures   int
	backOff    int
	lastOffset eventstore.SequenceNumber
}

// afterPoll applies a poll outcome and returns the delay until the next tick.
func (s *schedule) afterPoll(o pollOutcome, maxRows int, iv IntervalConfig) time.Duration {
	s.busy = false
	switch {
	case o.err != nil:
		s.failures++
		s.greedy = false
		return backOffDelay(iv, s.failures)
	case o.result.Count == 0:
		s.backOff++
		s.greedy = false
		return backOffDelay(iv, s.backOff)
	default:
		s.failures = 0
		s.backOff = 0
		s.lastOffset = o.result.Offset
		s.greedy = o.result.Count >= maxRows
		if s.greedy {
			return iv.GreedyDelay()
		}
		return iv.Interval
	}
}

// backOffDelay is min(MaxInterval, Interval*n + Jitter()).
func backOffDelay(iv IntervalConfig, n int) time.Duration {
	if time.Duration(n) > iv.MaxInterval/iv.Interval {
		return iv.MaxInterval
	}
	return min(iv.MaxInterval, iv.Interval*time.Duration(n)+iv.Jitter())
}

func (s *schedule) status(name string) Status {
	return Status{
		SubscriptionName: name,
		Paused:           s.paused,
		Busy:             s.busy,
		Greedy:           s.greedy,
		Failures:         s.failures,
		BackOff:          s.backOff,
		CurrentOffset:    s.lastOffset,
	}
}

// Worker schedules the polls of one subscription and serves its commands.
type Worker struct {
	cfg       Config
	intervals IntervalConfig
	poller    Poller
	logger    *slog.Logger

	commands chan commandRequest
	done     chan struct{}
	state    schedule
}

func NewWorker(cfg Config, intervals IntervalConfig, poller Poller, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		cfg:       cfg.withDefaults(),
		intervals: intervals.withDefaults(),
		poller:    poller,
		logger:    logger.With("subscription", cfg.Name),
		commands:  make(chan commandRequest),
		done:      make(chan struct{}),
	}
}

func (w *Worker) Name() string { return w.cfg.Name }

// Run blocks until ctx is done and any in-flight poll has finished. Polls
// are not cancelled with ctx.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	pollCtx := context.WithoutCancel(ctx)
	results := make(chan pollOutcome, 1)
	timer := time.NewTimer(w.intervals.InitialDelay())
	defer timer.Stop()

	w.logger.Info("subscription started")
	for {
		select {
		case <-ctx.Done():
			if w.state.busy {
				o := <-results
				w.state.afterPoll(o, w.cfg.MaxRows, w.intervals)
			}
			w.logger.Info("subscription stopped", "offset", w.state.lastOffset)
			return
		case <-timer.C:
			w.tick(pollCtx, timer, results)
		case o := <-results:
			next := w.state.afterPoll(o, w.cfg.MaxRows, w.intervals)
			w.logOutcome(o, next)
			timer.Reset(next)
		case req := <-w.commands:
			req.reply <- w.handle(pollCtx, req.cmd, timer, results)
		}
	}
}

// tick starts a poll unless one is running or the subscription is paused.
func (w *Worker) tick(ctx context.Context, timer *time.Timer, results chan<- pollOutcome) {
	if w.state.busy || w.state.paused {
		timer.Reset(w.intervals.Interval)
		return
	}
	timer.Stop()
	w.state.busy = true
	go func() {
		results <- w.poll(ctx)
	}()
}

func (w *Worker) poll(ctx context.Context) (o pollOutcome) {
	defer func() {
		if r := recover(); r != nil {
			o = pollOutcome{err: fmt.Errorf("poll panicked: %v", r)}
		}
	}()
	res, err := w.poller.HandlePendingEvents(ctx, w.cfg)
	return pollOutcome{result: res, err: err}
}

func (w *Worker) handle(ctx context.Context, cmd Command, timer *time.Timer, results chan<- pollOutcome) commandReply {
	switch cmd {
	case CommandTryPerformNow:
		w.tick(ctx, timer, results)
	case CommandPause:
		w.state.paused = true
		w.logger.Info("subscription paused")
	case CommandResume:
		w.state.paused = false
		w.logger.Info("subscription resumed")
	case CommandShowStatus:
	default:
		return commandReply{
			status: w.state.status(w.cfg.Name),
			err:    &CommandError{Subscription: w.cfg.Name, Command: cmd, Reason: "unknown command"},
		}
	}
	return commandReply{status: w.state.status(w.cfg.Name)}
}

func (w *Worker) logOutcome(o pollOutcome, next time.Duration) {
	switch {
	case o.err != nil:
		w.logger.Warn("subscription poll failed", "err", o.err, "failures", w.state.failures, "next", next)
	case o.result.Count > 0:
		w.logger.Debug("subscription poll delivered", "count", o.result.Count, "offset", o.result.Offset, "greedy", w.state.greedy)
	}
}

// Submit sends a command to the worker and waits for its reply.
func (w *Worker) Submit(ctx context.Context, cmd Command) (Status, error) {
	req := commandRequest{cmd: cmd, reply: make(chan commandReply, 1)}
	select {
	case w.commands <- req:
	case <-w.done:
		return Status{}, ErrStopped
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.status, r.err
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Done is closed when Run has returned.
func (w *Worker) Done() <-chan struct{} { return w.done }
