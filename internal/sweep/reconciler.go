package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/piwi3910/catweave/internal/models"
	"github.com/piwi3910/catweave/internal/notify"
	"github.com/piwi3910/catweave/internal/storage"
)

// PIDSweepName labels the persistent-identifier reconciliation sweep.
const PIDSweepName = "pid-reconciliation"

// Registry is the slice of the handle registry client the reconciler
// needs. Implemented by pid.Client.
type Registry interface {
	Exists(ctx context.Context, pid string) (bool, error)
	Register(ctx context.Context, pid, publicID string) error
}

// PIDReconciler walks every published public instance and makes sure its
// persistent identifier is registered with the external registry. A
// failure on one instance never aborts the run; each item is isolated.
type PIDReconciler struct {
	store    storage.Store
	registry Registry
	logger   *zap.Logger
}

// NewPIDReconciler creates a persistent-identifier reconciler.
func NewPIDReconciler(store storage.Store, registry Registry, logger *zap.Logger) (*PIDReconciler, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if registry == nil {
		return nil, errors.New("registry cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &PIDReconciler{store: store, registry: registry, logger: logger}, nil
}

// Name returns the sweep's label.
func (r *PIDReconciler) Name() string { return PIDSweepName }

// Run executes one reconciliation pass. The pass is idempotent: handles
// already registered are left untouched, so a second run right after a
// first registers nothing.
func (r *PIDReconciler) Run(ctx context.Context) (*notify.Report, error) {
	start := time.Now()
	var lines []string

	for _, kind := range models.AllKinds {
		envs, err := r.store.ListPublished(ctx, kind)
		if err != nil {
			RecordSweepRun(PIDSweepName, "failed", time.Since(start))
			return nil, fmt.Errorf("failed to list published %s envelopes: %w", kind, err)
		}

		for _, env := range envs {
			line, err := r.reconcile(ctx, env)
			if err != nil {
				RecordItemFailure(PIDSweepName)
				r.logger.Warn("skipping instance in pid sweep",
					zap.String("kind", string(kind)),
					zap.String("id", env.ID),
					zap.Error(err))
				continue
			}
			if line != "" {
				lines = append(lines, line)
			}
		}
	}

	RecordSweepRun(PIDSweepName, "success", time.Since(start))
	RecordFindings(PIDSweepName, len(lines))

	r.logger.Info("pid reconciliation sweep finished",
		zap.Int("findings", len(lines)),
		zap.Duration("duration", time.Since(start)))

	return notify.NewReport(PIDSweepName, lines), nil
}

// reconcile brings a single published instance in line: it attaches the
// instance's missing identifier entry and registers the handle when the
// registry does not know it yet.
func (r *PIDReconciler) reconcile(ctx context.Context, env *models.Envelope) (string, error) {
	pid := env.PID()
	if pid == "" {
		// The instance lost its identifier entry; restore it before
		// touching the registry.
		env.SetPID(env.ID)
		pid = env.ID
		if err := r.store.Update(ctx, env); err != nil {
			return "", fmt.Errorf("failed to restore identifier on %s: %w", env.ID, err)
		}
	}

	exists, err := r.registry.Exists(ctx, pid)
	if err != nil {
		return "", err
	}
	if exists {
		return "", nil
	}

	if err := r.registry.Register(ctx, pid, env.ID); err != nil {
		return "", err
	}
	RecordPIDRegistered()

	r.logger.Info("pid registered by reconciler",
		zap.String("kind", string(env.Kind)),
		zap.String("public_id", env.ID),
		zap.String("pid", pid))

	return fmt.Sprintf("%s with ID [%s] had its PID [%s] registered",
		env.Kind.DisplayName(), env.ID, pid), nil
}
