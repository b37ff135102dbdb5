package sweep

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/piwi3910/catweave/internal/models"
)

// fakeRegistry is an in-memory handle registry.
type fakeRegistry struct {
	handles    map[string]string
	existsErr  error
	registered int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{handles: make(map[string]string)}
}

func (f *fakeRegistry) Exists(_ context.Context, pid string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.handles[pid]
	return ok, nil
}

func (f *fakeRegistry) Register(_ context.Context, pid, publicID string) error {
	f.handles[pid] = publicID
	f.registered++
	return nil
}

func TestPIDReconciler_RegistersMissingHandles(t *testing.T) {
	store := setupStore(t)
	registry := newFakeRegistry()
	ctx := context.Background()

	rec, err := NewPIDReconciler(store, registry, zap.NewNop())
	require.NoError(t, err)

	svc := approvedService("svc-1", "eosc")
	require.NoError(t, store.Create(ctx, svc))
	require.NoError(t, store.Create(ctx, publicMirror(svc)))

	report, err := rec.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, PIDSweepName, report.Sweep)
	require.Len(t, report.Lines, 1)
	assert.Equal(t, "Service with ID [eosc.svc-1] had its PID [eosc.svc-1] registered", report.Lines[0])
	assert.Equal(t, "eosc.svc-1", registry.handles["eosc.svc-1"])
}

func TestPIDReconciler_Idempotent(t *testing.T) {
	store := setupStore(t)
	registry := newFakeRegistry()
	ctx := context.Background()

	rec, err := NewPIDReconciler(store, registry, zap.NewNop())
	require.NoError(t, err)

	svc := approvedService("svc-1", "eosc")
	require.NoError(t, store.Create(ctx, svc))
	require.NoError(t, store.Create(ctx, publicMirror(svc)))

	_, err = rec.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, registry.registered)

	// The second run finds the handle registered and touches nothing.
	report, err := rec.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Lines)
	assert.Equal(t, 1, registry.registered)
}

func TestPIDReconciler_RestoresLostIdentifier(t *testing.T) {
	store := setupStore(t)
	registry := newFakeRegistry()
	ctx := context.Background()

	rec, err := NewPIDReconciler(store, registry, zap.NewNop())
	require.NoError(t, err)

	// A published instance with no identifier entry at all.
	mirror := &models.Envelope{
		ID:          "eosc.svc-1",
		Kind:        models.KindService,
		CatalogueID: "eosc",
		Status:      models.StatusApprovedResource,
		Metadata:    models.Metadata{Published: true},
	}
	require.NoError(t, store.Create(ctx, mirror))

	_, err = rec.Run(ctx)
	require.NoError(t, err)

	restored, err := store.Get(ctx, models.KindService, "eosc.svc-1")
	require.NoError(t, err)
	assert.Equal(t, "eosc.svc-1", restored.PID())
	assert.Equal(t, "eosc.svc-1", registry.handles["eosc.svc-1"])
}

func TestPIDReconciler_ItemFailureIsolated(t *testing.T) {
	store := setupStore(t)
	registry := newFakeRegistry()
	ctx := context.Background()

	rec, err := NewPIDReconciler(store, registry, zap.NewNop())
	require.NoError(t, err)

	svc := approvedService("svc-1", "eosc")
	require.NoError(t, store.Create(ctx, svc))
	require.NoError(t, store.Create(ctx, publicMirror(svc)))

	// Registry lookups fail: the run still completes with no findings
	// rather than erroring out.
	registry.existsErr = errors.New("registry down")
	report, err := rec.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Lines)

	// Once the registry recovers the same item is picked up again.
	registry.existsErr = nil
	report, err = rec.Run(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Lines, 1)
}

func TestPIDReconciler_SkipsCanonical(t *testing.T) {
	store := setupStore(t)
	registry := newFakeRegistry()
	ctx := context.Background()

	rec, err := NewPIDReconciler(store, registry, zap.NewNop())
	require.NoError(t, err)

	// Canonical envelopes are not in the published index and never get
	// handles.
	require.NoError(t, store.Create(ctx, approvedService("svc-1", "eosc")))

	report, err := rec.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Lines)
	assert.Zero(t, registry.registered)
}
