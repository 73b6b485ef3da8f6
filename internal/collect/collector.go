package collect

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Status describes collection progress after each accepted line.
type Status struct {
	Phase     int
	Collected int
	Needed    int
	Max       int
	Remaining time.Duration
}

// Progress is called after each accepted line and at every phase start.
type Progress func(Status)

// Collector gathers non-empty lines within a deadline.
type Collector struct {
	lines    *Lines
	progress Progress
	logger   *zap.Logger
}

// NewCollector creates a collector reading from lines.
func NewCollector(lines *Lines, logger *zap.Logger) *Collector {
	return &Collector{lines: lines, logger: logger}
}

// OnProgress sets the progress callback.
func (c *Collector) OnProgress(fn Progress) { c.progress = fn }

// Collect accepts up to max lines before deadline. When fewer than min arrive
// it runs one more phase with the same deadline for the remainder, appending
// what it gets. A short result is not an error.
func (c *Collector) Collect(ctx context.Context, deadline time.Duration, min, max int) ([]string, error) {
	items, err := c.phase(ctx, 1, deadline, min, max)
	if err != nil || len(items) >= min {
		return items, err
	}

	needed, allowed := min-len(items), max-len(items)
	c.logger.Info("too few items, retrying",
		zap.Int("collected", len(items)), zap.Int("needed", needed), zap.Int("allowed", allowed))
	more, err := c.phase(ctx, 2, deadline, needed, allowed)
	items = append(items, more...)
	if len(items) < min {
		c.logger.Warn("collection ended below minimum", zap.Int("collected", len(items)), zap.Int("min", min))
	}
	return items, err
}

func (c *Collector) phase(ctx context.Context, n int, deadline time.Duration, min, max int) ([]string, error) {
	if max <= 0 {
		return nil, nil
	}
	start := time.Now()
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	items := make([]string, 0, max)
	c.report(n, items, min, max, deadline)
	for len(items) < max {
		select {
		case <-ctx.Done():
			return items, ctx.Err()
		case <-timer.C:
			if dropped := c.lines.Drain(); dropped > 0 {
				c.logger.Debug("discarded late input", zap.Int("lines", dropped))
			}
			return items, nil
		case line, ok := <-c.lines.C():
			if !ok {
				return items, nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			items = append(items, line)
			c.report(n, items, min, max, deadline-time.Since(start))
		}
	}
	return items, nil
}

func (c *Collector) report(phase int, items []string, min, max int, remaining time.Duration) {
	if c.progress == nil {
		return
	}
	needed := min - len(items)
	if needed < 0 {
		needed = 0
	}
	if remaining < 0 {
		remaining = 0
	}
	c.progress(Status{Phase: phase, Collected: len(items), Needed: needed, Max: max, Remaining: remaining})
}
