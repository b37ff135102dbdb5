package pid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(&Config{
		BaseURL:        srv.URL + "/api/handles",
		Prefix:         "21.15120",
		AdminHandle:    "0.NA/21.15120",
		MarketplaceURL: "https://marketplace.example.org/resources",
		HTTPTimeout:    2 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(&Config{BaseURL: "https://registry.example.org"}, nil)
	assert.Error(t, err)

	_, err = NewClient(&Config{}, zap.NewNop())
	assert.Error(t, err)

	c, err := NewClient(&Config{BaseURL: "https://registry.example.org"}, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestClient_Exists(t *testing.T) {
	var gotPath string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.URL.Path == "/api/handles/21.15120/known" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	exists, err := client.Exists(context.Background(), "known")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "/api/handles/21.15120/known", gotPath)

	exists, err = client.Exists(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestClient_Exists_PrefixedPID(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A PID already carrying a prefix is not prefixed again.
		assert.Equal(t, "/api/handles/21.15120/eosc.svc-1", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))

	exists, err := client.Exists(context.Background(), "21.15120/eosc.svc-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestClient_Exists_ServerError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.Exists(context.Background(), "some-pid")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRegistryUnavailable)
}

func TestClient_Register(t *testing.T) {
	var gotMethod, gotPath string
	var gotRecord handleRecord

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRecord))
		w.WriteHeader(http.StatusCreated)
	}))

	err := client.Register(context.Background(), "eosc.svc-1", "eosc.svc-1")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/api/handles/21.15120/eosc.svc-1", gotPath)

	require.Len(t, gotRecord.Values, 2)
	assert.Equal(t, "URL", gotRecord.Values[0].Type)
	assert.Equal(t, "https://marketplace.example.org/resources/eosc.svc-1", gotRecord.Values[0].Data.Value)
	assert.Equal(t, "HS_ADMIN", gotRecord.Values[1].Type)
}

func TestClient_Register_Failure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	err := client.Register(context.Background(), "eosc.svc-1", "eosc.svc-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRegistryUnavailable)
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	calls := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))

	// Three consecutive failures open the breaker.
	for i := 0; i < 3; i++ {
		_, err := client.Exists(context.Background(), "some-pid")
		require.Error(t, err)
	}
	require.Equal(t, 3, calls)

	// The open breaker rejects without touching the registry.
	_, err := client.Exists(context.Background(), "some-pid")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRegistryUnavailable)
	assert.Equal(t, 3, calls)
}

func TestClient_ResolveURL(t *testing.T) {
	client, err := NewClient(&Config{
		BaseURL:        "https://registry.example.org/api/handles",
		MarketplaceURL: "https://marketplace.example.org/resources/",
	}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t,
		"https://marketplace.example.org/resources/eosc.svc-1",
		client.ResolveURL("eosc.svc-1"))
}
