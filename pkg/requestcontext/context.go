// Package requestcontext provides HTTP-independent accessors for
// request-scoped values.
//
// Middleware sets values, services read them, tests inject them. Keeping this
// package free of net/http lets services import only what they need.
//
// The actor is the authenticated identity performing the call. Core services
// never consult ambient global state for identity; the actor always travels in
// the context.
package requestcontext

import (
	"context"
	"time"
)

// ActorKind distinguishes who is acting on an entity. It ends up in audit
// events as the actor prefix.
type ActorKind string

const (
	ActorOwner     ActorKind = "owner"
	ActorRecipient ActorKind = "recipient"
	ActorAdmin     ActorKind = "admin"
	ActorSystem    ActorKind = "system"
)

// Actor is the resolved, authenticated identity supplied by the calling edge.
type Actor struct {
	Kind    ActorKind
	Subject string // owner/recipient ID or admin email
}

// String renders the audit actor label, e.g. "owner:2c0a..." or "system".
func (a Actor) String() string {
	if a.Kind == ActorSystem || a.Subject == "" {
		return string(a.Kind)
	}
	return string(a.Kind) + ":" + a.Subject
}

// SystemActor is used by background processes such as the release sweeper.
var SystemActor = Actor{Kind: ActorSystem}

type (
	actorKey       struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// WithActor injects the authenticated actor into the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom retrieves the authenticated actor. The boolean is false when no
// middleware resolved one.
func ActorFrom(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

// WithRequestID injects a correlation ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID retrieves the correlation ID, or "" when unset.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithTime pins the request clock. Dispute-window and expiry checks read the
// clock through Now, so tests inject a fixed instant here instead of sleeping.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// Now returns the pinned request time when present, else the wall clock.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}
