package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/piwi3910/catweave/internal/ledger"
)

func TestActorFromContext(t *testing.T) {
	ctx := context.Background()

	_, ok := ActorFromContext(ctx)
	assert.False(t, ok, "empty context must not carry an actor")

	actor := ledger.Actor{Email: "curator@example.org", FullName: "Cat Curator", Role: "epot"}
	ctx = ContextWithActor(ctx, actor)

	got, ok := ActorFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, actor, got)
}

func TestActorFromContext_SystemSentinel(t *testing.T) {
	ctx := ContextWithActor(context.Background(), ledger.SystemActor)

	got, ok := ActorFromContext(ctx)
	require.True(t, ok)
	assert.True(t, got.IsSystem())
}

func TestRequestIDFromContext(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))

	ctx := ContextWithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var gotActor ledger.Actor
	var actorPresent bool
	var gotRequestID string

	router := gin.New()
	router.Use(Middleware(zap.NewNop()))
	router.GET("/whoami", func(c *gin.Context) {
		gotActor, actorPresent = ActorFromContext(c.Request.Context())
		gotRequestID = RequestIDFromContext(c.Request.Context())
		c.Status(200)
	})

	t.Run("identity headers populate the context", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/whoami", nil)
		req.Header.Set(HeaderUserEmail, "curator@example.org")
		req.Header.Set(HeaderUserName, "Cat Curator")
		req.Header.Set(HeaderUserRole, "epot")
		req.Header.Set(HeaderRequestID, "req-42")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.True(t, actorPresent)
		assert.Equal(t, "curator@example.org", gotActor.Email)
		assert.Equal(t, "epot", gotActor.Role)
		assert.Equal(t, "req-42", gotRequestID)
		assert.Equal(t, "req-42", w.Header().Get(HeaderRequestID))
	})

	t.Run("missing headers leave no actor attached", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/whoami", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.False(t, actorPresent)
		assert.NotEmpty(t, gotRequestID, "request ID is generated when absent")
	})
}
