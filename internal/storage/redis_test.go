package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/catweave/internal/models"
)

// setupTestRedis creates a miniredis-backed store for testing.
func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	cfg := &RedisConfig{
		Addr:         mr.Addr(),
		Password:     "",
		DB:           0,
		UseSentinel:  false,
		MaxRetries:   1,
		DialTimeout:  1 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     5,
	}

	return NewRedisStore(cfg), mr
}

func serviceEnvelope(id, catalogueID, status string) *models.Envelope {
	return &models.Envelope{
		ID:          id,
		Kind:        models.KindService,
		CatalogueID: catalogueID,
		Status:      status,
	}
}

func TestRedisStore_Create(t *testing.T) {
	tests := []struct {
		name    string
		env     *models.Envelope
		wantErr error
	}{
		{
			name: "valid envelope",
			env:  serviceEnvelope("svc-123", "eosc", models.StatusPendingResource),
		},
		{
			name: "empty ID",
			env:  serviceEnvelope("", "eosc", models.StatusPendingResource),
			wantErr: ErrInvalidID,
		},
		{
			name: "unknown kind",
			env: &models.Envelope{
				ID:   "x-1",
				Kind: models.Kind("virtual_machine"),
			},
			wantErr: models.ErrUnknownKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := setupTestRedis(t)
			defer store.Close()

			err := store.Create(context.Background(), tt.env)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			got, err := store.Get(context.Background(), tt.env.Kind, tt.env.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.env.ID, got.ID)
			assert.Equal(t, tt.env.CatalogueID, got.CatalogueID)
		})
	}
}

func TestRedisStore_Create_Duplicate(t *testing.T) {
	store, _ := setupTestRedis(t)
	defer store.Close()
	ctx := context.Background()

	env := serviceEnvelope("svc-1", "eosc", models.StatusPendingResource)
	require.NoError(t, store.Create(ctx, env))

	err := store.Create(ctx, env)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestRedisStore_Get_NotFound(t *testing.T) {
	store, _ := setupTestRedis(t)
	defer store.Close()

	_, err := store.Get(context.Background(), models.KindService, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Update_MovesStatusIndex(t *testing.T) {
	store, _ := setupTestRedis(t)
	defer store.Close()
	ctx := context.Background()

	env := serviceEnvelope("svc-1", "eosc", models.StatusPendingResource)
	require.NoError(t, store.Create(ctx, env))

	env.Status = models.StatusApprovedResource
	require.NoError(t, store.Update(ctx, env))

	pending, err := store.ListByStatus(ctx, models.KindService, models.StatusPendingResource)
	require.NoError(t, err)
	assert.Empty(t, pending)

	approved, err := store.ListByStatus(ctx, models.KindService, models.StatusApprovedResource)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "svc-1", approved[0].ID)
}

func TestRedisStore_Update_NotFound(t *testing.T) {
	store, _ := setupTestRedis(t)
	defer store.Close()

	err := store.Update(context.Background(), serviceEnvelope("ghost", "eosc", ""))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Update_PublishedIndex(t *testing.T) {
	store, _ := setupTestRedis(t)
	defer store.Close()
	ctx := context.Background()

	env := serviceEnvelope("svc-1", "eosc", models.StatusApprovedResource)
	require.NoError(t, store.Create(ctx, env))

	published, err := store.ListPublished(ctx, models.KindService)
	require.NoError(t, err)
	assert.Empty(t, published)

	env.Metadata.Published = true
	require.NoError(t, store.Update(ctx, env))

	published, err = store.ListPublished(ctx, models.KindService)
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Equal(t, "svc-1", published[0].ID)

	env.Metadata.Published = false
	require.NoError(t, store.Update(ctx, env))

	published, err = store.ListPublished(ctx, models.KindService)
	require.NoError(t, err)
	assert.Empty(t, published)
}

func TestRedisStore_Delete(t *testing.T) {
	store, _ := setupTestRedis(t)
	defer store.Close()
	ctx := context.Background()

	env := serviceEnvelope("svc-1", "eosc", models.StatusPendingResource)
	require.NoError(t, store.Create(ctx, env))
	require.NoError(t, store.Delete(ctx, models.KindService, "svc-1"))

	_, err := store.Get(ctx, models.KindService, "svc-1")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := store.List(ctx, models.KindService)
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.ErrorIs(t, store.Delete(ctx, models.KindService, "svc-1"), ErrNotFound)
}

func TestRedisStore_List_IsolatesKinds(t *testing.T) {
	store, _ := setupTestRedis(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, serviceEnvelope("svc-1", "eosc", models.StatusPendingResource)))
	require.NoError(t, store.Create(ctx, &models.Envelope{
		ID:          "prov-1",
		Kind:        models.KindProvider,
		CatalogueID: "eosc",
		Status:      models.StatusApprovedResource,
	}))

	services, err := store.List(ctx, models.KindService)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "svc-1", services[0].ID)

	providers, err := store.List(ctx, models.KindProvider)
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, "prov-1", providers[0].ID)
}

func TestRedisStore_FindPublished(t *testing.T) {
	store, _ := setupTestRedis(t)
	defer store.Close()
	ctx := context.Background()

	mirror := &models.Envelope{
		ID:          "other.svc-1",
		Kind:        models.KindService,
		CatalogueID: "other",
		Status:      models.StatusApprovedResource,
		Metadata:    models.Metadata{Published: true},
	}
	require.NoError(t, store.Create(ctx, mirror))

	// Lookup by canonical ID matches the "<catalogue>.<id>" mirror.
	found, err := store.FindPublished(ctx, models.KindService, "svc-1")
	require.NoError(t, err)
	assert.Equal(t, "other.svc-1", found.ID)

	// Lookup by the public ID itself also matches.
	found, err = store.FindPublished(ctx, models.KindService, "other.svc-1")
	require.NoError(t, err)
	assert.Equal(t, "other.svc-1", found.ID)

	_, err = store.FindPublished(ctx, models.KindService, "svc-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_FindPublished_IgnoresCanonicalEnvelopes(t *testing.T) {
	store, _ := setupTestRedis(t)
	defer store.Close()
	ctx := context.Background()

	// A canonical (unpublished) envelope must not satisfy a published lookup.
	require.NoError(t, store.Create(ctx, serviceEnvelope("svc-1", "other", models.StatusApprovedResource)))

	_, err := store.FindPublished(ctx, models.KindService, "svc-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Ping(t *testing.T) {
	store, mr := setupTestRedis(t)
	defer store.Close()

	require.NoError(t, store.Ping(context.Background()))

	mr.Close()
	assert.ErrorIs(t, store.Ping(context.Background()), ErrStorageUnavailable)
}
