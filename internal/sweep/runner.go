package sweep

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/piwi3910/catweave/internal/notify"
)

// Sweep is one periodic consistency job. Implemented by MirrorChecker and
// PIDReconciler.
type Sweep interface {
	Name() string
	Run(ctx context.Context) (*notify.Report, error)
}

// Runner drives a set of sweeps on a fixed interval and hands each run's
// report to the notifier. Sweeps run sequentially within a tick; a failed
// sweep is logged and the next one still runs.
type Runner struct {
	sweeps   []Sweep
	notifier *notify.Notifier
	interval time.Duration
	logger   *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRunner creates a sweep runner.
func NewRunner(sweeps []Sweep, notifier *notify.Notifier, interval time.Duration, logger *zap.Logger) (*Runner, error) {
	if len(sweeps) == 0 {
		return nil, errors.New("at least one sweep is required")
	}
	if notifier == nil {
		return nil, errors.New("notifier cannot be nil")
	}
	if interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Runner{
		sweeps:   sweeps,
		notifier: notifier,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start launches the background sweep loop.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.loop(ctx)

	r.logger.Info("sweep runner started",
		zap.Duration("interval", r.interval),
		zap.Int("sweeps", len(r.sweeps)))
}

// Stop stops the background loop and waits for an in-flight tick to finish.
func (r *Runner) Stop() {
	select {
	case <-r.stopCh:
		// Already stopped
		return
	default:
		close(r.stopCh)
	}

	r.wg.Wait()

	r.logger.Info("sweep runner stopped")
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.RunAll(ctx)
		}
	}
}

// RunAll executes every sweep once and delivers the reports. Exposed so
// the HTTP surface can trigger an out-of-schedule run.
func (r *Runner) RunAll(ctx context.Context) {
	for _, s := range r.sweeps {
		report, err := s.Run(ctx)
		if err != nil {
			r.logger.Error("sweep run failed",
				zap.String("sweep", s.Name()),
				zap.Error(err))
			continue
		}
		r.notifier.Notify(ctx, report)
	}
}
