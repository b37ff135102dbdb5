// Package auth supplies the identity context for catalogue mutations: the
// acting user attached to a request, the distinction between "no actor" and
// the system sentinel, and the Gin middleware that populates the context.
package auth

import (
	"context"

	"github.com/piwi3910/catweave/internal/ledger"
)

// Context keys for storing identity data.
type contextKey string

const (
	// actorContextKey is the key for storing the acting user in context.
	actorContextKey contextKey = "acting_user"

	// requestIDContextKey is the key for storing the request ID in context.
	requestIDContextKey contextKey = "request_id"
)

// ContextWithActor adds an acting user to the context.
func ContextWithActor(ctx context.Context, actor ledger.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// ActorFromContext retrieves the acting user from the context.
// The second return value is false when no actor is attached, which is
// distinct from the system sentinel: an absent actor fails ledger entry
// construction, while the system actor bypasses actor resolution.
func ActorFromContext(ctx context.Context) (ledger.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(ledger.Actor)
	if !ok || actor.Email == "" && !actor.IsSystem() {
		return ledger.Actor{}, false
	}
	return actor, true
}

// ContextWithRequestID adds a request ID to the context.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, requestID)
}

// RequestIDFromContext retrieves the request ID from the context.
// Returns an empty string if no request ID is found.
func RequestIDFromContext(ctx context.Context) string {
	requestID, ok := ctx.Value(requestIDContextKey).(string)
	if !ok {
		return ""
	}
	return requestID
}
