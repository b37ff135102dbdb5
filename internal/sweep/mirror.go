// Package sweep implements the periodic consistency sweeps: the mirror
// checker detecting approved resources without a public instance, and the
// reconciler re-registering missing persistent identifiers. Sweeps are
// read-mostly and idempotent; running one twice in a row reports the same
// findings and applies no repair twice.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/piwi3910/catweave/internal/models"
	"github.com/piwi3910/catweave/internal/notify"
	"github.com/piwi3910/catweave/internal/storage"
)

// MirrorSweepName labels the mirror-consistency sweep in reports and
// metrics.
const MirrorSweepName = "mirror-consistency"

// MirrorChecker walks every canonical envelope and verifies that each
// approved one has its published public instance. It never repairs; it
// only reports, aggregating all findings into a single report per run.
type MirrorChecker struct {
	store  storage.Store
	logger *zap.Logger
}

// NewMirrorChecker creates a mirror-consistency checker.
func NewMirrorChecker(store storage.Store, logger *zap.Logger) (*MirrorChecker, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &MirrorChecker{store: store, logger: logger}, nil
}

// Name returns the sweep's label.
func (c *MirrorChecker) Name() string { return MirrorSweepName }

// Run executes one sweep over all resource kinds. A storage failure on a
// single envelope is logged and skipped; only a failure to list a whole
// kind aborts the run.
func (c *MirrorChecker) Run(ctx context.Context) (*notify.Report, error) {
	start := time.Now()
	var lines []string

	for _, kind := range models.AllKinds {
		envs, err := c.store.List(ctx, kind)
		if err != nil {
			RecordSweepRun(MirrorSweepName, "failed", time.Since(start))
			return nil, fmt.Errorf("failed to list %s envelopes: %w", kind, err)
		}

		for _, env := range envs {
			line, err := c.checkEnvelope(ctx, env)
			if err != nil {
				RecordItemFailure(MirrorSweepName)
				c.logger.Warn("skipping envelope in mirror sweep",
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

	RecordSweepRun(MirrorSweepName, "success", time.Since(start))
	RecordFindings(MirrorSweepName, len(lines))

	c.logger.Info("mirror consistency sweep finished",
		zap.Int("findings", len(lines)),
		zap.Duration("duration", time.Since(start)))

	return notify.NewReport(MirrorSweepName, lines), nil
}

// checkEnvelope returns a drift line for an approved canonical envelope
// missing its public instance, or the empty string when consistent.
func (c *MirrorChecker) checkEnvelope(ctx context.Context, env *models.Envelope) (string, error) {
	if env.Metadata.Published {
		return "", nil
	}
	if !strings.Contains(env.Status, "approved") {
		return "", nil
	}

	_, err := c.store.Get(ctx, env.Kind, env.PublicID())
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Sprintf("%s with ID [%s] is missing its Public instance [%s]",
			env.Kind.DisplayName(), env.ID, env.PublicID()), nil
	}
	if err != nil {
		return "", err
	}
	return "", nil
}
