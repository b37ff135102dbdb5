// Package catalogue contains integration tests exercising the lifecycle
// guard, reference validation, and consistency sweeps against a real Redis
// instance.
//
//go:build integration
// +build integration

package catalogue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/piwi3910/catweave/internal/auth"
	"github.com/piwi3910/catweave/internal/ledger"
	"github.com/piwi3910/catweave/internal/lifecycle"
	"github.com/piwi3910/catweave/internal/models"
	"github.com/piwi3910/catweave/internal/refcheck"
	"github.com/piwi3910/catweave/internal/storage"
	"github.com/piwi3910/catweave/internal/sweep"
	"github.com/piwi3910/catweave/internal/vocab"
	"github.com/piwi3910/catweave/tests/integration/helpers"
)

// testStack bundles the components under test wired to container Redis.
type testStack struct {
	store *storage.RedisStore
	guard *lifecycle.Guard
}

func setupStack(t *testing.T) *testStack {
	t.Helper()

	env := helpers.SetupTestEnvironment(t)

	store := storage.NewRedisStore(&storage.RedisConfig{
		Addr: env.Redis.Addr(),
	})
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Ping(env.Context()))

	validator, err := refcheck.NewValidator(store, zap.NewNop())
	require.NoError(t, err)

	guard, err := lifecycle.NewGuard(store, validator, zap.NewNop())
	require.NoError(t, err)

	return &testStack{store: store, guard: guard}
}

func actorCtx(email string) context.Context {
	return auth.ContextWithActor(context.Background(), ledger.Actor{
		Email:    email,
		FullName: "Integration Tester",
		Role:     "admin",
	})
}

func TestLifecycle_OnboardingWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	stack := setupStack(t)
	ctx := actorCtx("onboarding@example.org")

	svc := helpers.TestService("eosc", "prov-a", "workflow")

	// Register lands in the pending state with an onboarding entry.
	env, err := stack.guard.Register(ctx, models.KindService, svc)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingResource, env.Status)
	assert.False(t, env.Active)
	require.Len(t, env.LoggingInfo, 1)

	// Approval activates the resource.
	env, err = stack.guard.Verify(ctx, models.KindService, svc.ID, models.StatusApprovedResource, true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApprovedResource, env.Status)
	assert.True(t, env.Active)

	// A second verification attempt is rejected.
	_, err = stack.guard.Verify(ctx, models.KindService, svc.ID, models.StatusApprovedResource, true)
	assert.ErrorIs(t, err, lifecycle.ErrNotPending)

	// The envelope round-trips through Redis with its ledger intact.
	stored, err := stack.store.Get(context.Background(), models.KindService, svc.ID)
	require.NoError(t, err)
	assert.Len(t, stored.LoggingInfo, 2)
}

func TestLifecycle_ReferenceValidationAgainstStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	stack := setupStack(t)
	ctx := actorCtx("refs@example.org")

	// A service referencing a resource that does not exist is rejected.
	ghost := helpers.TestService("eosc", "prov-a", "ghost-ref")
	ghost.RequiredResources = []string{"svc-does-not-exist"}

	_, err := stack.guard.Register(ctx, models.KindService, ghost)
	require.Error(t, err)

	var vErr *refcheck.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "requiredResources", vErr.Field)

	// Once the dependency exists, registration succeeds.
	dep := helpers.TestService("eosc", "prov-a", "dependency")
	_, err = stack.guard.Register(ctx, models.KindService, dep)
	require.NoError(t, err)

	ghost.RequiredResources = []string{dep.ID}
	_, err = stack.guard.Register(ctx, models.KindService, ghost)
	require.NoError(t, err)
}

func TestLifecycle_MirrorSweepDetectsDrift(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	stack := setupStack(t)
	ctx := actorCtx("sweeper@example.org")

	svc := helpers.TestService("eosc", "prov-a", "drift")
	_, err := stack.guard.Register(ctx, models.KindService, svc)
	require.NoError(t, err)
	_, err = stack.guard.Verify(ctx, models.KindService, svc.ID, models.StatusApprovedResource, true)
	require.NoError(t, err)

	checker, err := sweep.NewMirrorChecker(stack.store, zap.NewNop())
	require.NoError(t, err)

	// Approved without a public mirror: the sweep reports the gap.
	report, err := checker.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Lines, 1)
	assert.Contains(t, report.Lines[0], svc.ID)
	assert.Contains(t, report.Lines[0], "missing its Public instance")

	// Publishing the mirror clears the finding. Sweeps are idempotent.
	_, err = stack.guard.PublishMirror(ctx, models.KindService, svc.ID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		report, err = checker.Run(context.Background())
		require.NoError(t, err)
		assert.Empty(t, report.Lines)
	}
}

// recordingRegistry is an in-memory PID registry capturing registrations.
type recordingRegistry struct {
	handles map[string]string
}

func (r *recordingRegistry) Exists(_ context.Context, pid string) (bool, error) {
	_, ok := r.handles[pid]
	return ok, nil
}

func (r *recordingRegistry) Register(_ context.Context, pid, publicID string) error {
	r.handles[pid] = publicID
	return nil
}

func TestLifecycle_PIDReconciliation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	stack := setupStack(t)
	ctx := actorCtx("pids@example.org")

	svc := helpers.TestService("eosc", "prov-a", "pid")
	_, err := stack.guard.Register(ctx, models.KindService, svc)
	require.NoError(t, err)
	_, err = stack.guard.Verify(ctx, models.KindService, svc.ID, models.StatusApprovedResource, true)
	require.NoError(t, err)
	mirror, err := stack.guard.PublishMirror(ctx, models.KindService, svc.ID)
	require.NoError(t, err)

	registry := &recordingRegistry{handles: map[string]string{}}
	reconciler, err := sweep.NewPIDReconciler(stack.store, registry, zap.NewNop())
	require.NoError(t, err)

	report, err := reconciler.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Lines, 1)
	assert.Contains(t, report.Lines[0], "registered")
	assert.Equal(t, mirror.ID, registry.handles[mirror.PID()])

	// A second run finds the handle present and reports nothing.
	report, err = reconciler.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Lines)
}

func TestVocabularies_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := helpers.SetupTestEnvironment(t)

	store := storage.NewRedisStore(&storage.RedisConfig{
		Addr: env.Redis.Addr(),
	})
	t.Cleanup(func() { _ = store.Close() })

	vocabStore, err := vocab.NewStore(store.Client(), zap.NewNop())
	require.NoError(t, err)

	parent := &vocab.Vocabulary{ID: "domain-physics", Name: "Physics"}
	child := &vocab.Vocabulary{ID: "domain-physics-hep", Name: "High Energy Physics", Parent: "domain-physics"}

	require.NoError(t, vocabStore.Upsert(context.Background(), parent))
	require.NoError(t, vocabStore.Upsert(context.Background(), child))

	children, err := vocabStore.Children(context.Background(), "domain-physics")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "domain-physics-hep", children[0].ID)

	require.NoError(t, vocabStore.Delete(context.Background(), "domain-physics-hep"))
	_, err = vocabStore.Get(context.Background(), "domain-physics-hep")
	assert.ErrorIs(t, err, vocab.ErrNotFound)

	// Deleting again is an error the caller can distinguish.
	err = vocabStore.Delete(context.Background(), "domain-physics-hep")
	assert.ErrorIs(t, err, vocab.ErrNotFound)
}
