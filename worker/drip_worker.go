package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"rankitpro/drip"
	"rankitpro/utils"
)

// DripRunner runs one evaluation cycle. *drip.Engine implements it.
type DripRunner interface {
	RunDue(ctx context.Context, now time.Time) ([]drip.Result, error)
	Now() time.Time
}

type DripWorker struct {
	Runner       DripRunner
	Interval     time.Duration
	StartupDelay time.Duration
	Logger       *logrus.Entry
}

func NewDripWorker(runner DripRunner, interval, startupDelay time.Duration) *DripWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &DripWorker{
		Runner:       runner,
		Interval:     interval,
		StartupDelay: startupDelay,
		Logger:       utils.Logger("drip_worker"),
	}
}

// Start runs a cycle every Interval until ctx is cancelled. Cycles never
// overlap within one worker; other instances are kept apart by the row lock.
func (dw *DripWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	if dw.StartupDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(dw.StartupDelay):
		}
	}

	dw.Logger.WithField("interval", dw.Interval.String()).Info("Review drip worker started")

	ticker := time.NewTicker(dw.Interval)
	defer ticker.Stop()

	dw.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			dw.Logger.Info("Review drip worker shutting down...")
			return
		case <-ticker.C:
			dw.runCycle(ctx)
		}
	}
}

// CycleStats summarizes one run
type CycleStats struct {
	Evaluated int
	Sent      int
	Failed    int
}

func (dw *DripWorker) runCycle(ctx context.Context) CycleStats {
	var stats CycleStats
	started := time.Now()

	results, err := dw.Runner.RunDue(ctx, dw.Runner.Now())
	if err != nil {
		utils.LogError("drip_worker_cycle", err, nil)
		return stats
	}

	stats.Evaluated = len(results)
	for _, r := range results {
		if r.Sent {
			stats.Sent++
		}
		if r.Err != nil {
			stats.Failed++
		}
	}

	entry := dw.Logger.WithFields(logrus.Fields{
		"evaluated": stats.Evaluated,
		"sent":      stats.Sent,
		"failed":    stats.Failed,
		"duration":  time.Since(started).String(),
	})
	if stats.Sent > 0 || stats.Failed > 0 {
		entry.Info("Review drip cycle finished")
	} else {
		entry.Debug("Review drip cycle finished")
	}
	return stats
}
