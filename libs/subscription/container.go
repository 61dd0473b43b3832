package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Container holds the subscriptions of a process. Add them all, then Start
// once and Stop on shutdown.
type Container struct {
	poller Poller
	logger *slog.Logger

	mu      sync.Mutex
	workers map[string]*Worker
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewContainer(poller Poller, logger *slog.Logger) *Container {
	if logger == nil {
		logger = slog.Default()
	}
	return &Container{poller: poller, logger: logger, workers: map[string]*Worker{}}
}

// Add registers a subscription. Names are unique and registration closes
// with Start.
func (c *Container) Add(cfg Config, intervals IntervalConfig) error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("subscription %q: %w", cfg.Name, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("subscription %q: container already started", cfg.Name)
	}
	if _, ok := c.workers[cfg.Name]; ok {
		return fmt.Errorf("subscription %q: already registered", cfg.Name)
	}
	c.workers[cfg.Name] = NewWorker(cfg, intervals, c.poller, c.logger)
	return nil
}

// Start launches one worker per subscription.
func (c *Container) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	for _, w := range c.workers {
		c.wg.Add(1)
		go func(w *Worker) {
			defer c.wg.Done()
			w.Run(ctx)
		}(w)
	}
	c.logger.Info("subscriptions started", "count", len(c.workers))
}

// Stop cancels every worker and waits for in-flight polls to finish.
func (c *Container) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	c.wg.Wait()
}

// Submit routes a command to the named subscription.
func (c *Container) Submit(ctx context.Context, name string, cmd Command) (Status, error) {
	c.mu.Lock()
	w, ok := c.workers[name]
	started := c.started
	c.mu.Unlock()
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownSubscription, name)
	}
	if !started {
		return Status{}, ErrNotStarted
	}
	return w.Submit(ctx, cmd)
}

// Names lists registered subscriptions in name order.
func (c *Container) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.workers))
	for name := range c.workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Statuses returns the status of every subscription in name order.
func (c *Container) Statuses(ctx context.Context) ([]Status, error) {
	names := c.Names()
	out := make([]Status, 0, len(names))
	for _, name := range names {
		st, err := c.Submit(ctx, name, CommandShowStatus)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
