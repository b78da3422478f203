package audit

import (
	"context"
	"fmt"
	"log/slog"

	"lifekey/pkg/platform/tx"
	"lifekey/pkg/requestcontext"
)

// Recorder appends events to the durable store and fans them out to an
// optional sink.
//
// The store append is the correctness-critical half: it runs inside the
// caller's transaction, and its failure propagates so the causing mutation
// never commits without its trail. The sink half is best-effort observability
// and can never fail the caller.
type Recorder struct {
	store  Store
	sink   Sink
	logger *slog.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithSink attaches a fan-out sink.
func WithSink(sink Sink) Option {
	return func(r *Recorder) { r.sink = sink }
}

// WithLogger attaches a structured logger for sink-side failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

// NewRecorder builds a Recorder over the given store.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record stamps and appends one event. Call it from inside the transaction
// that performs the causing mutation.
func (r *Recorder) Record(ctx context.Context, event Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.Actor == "" {
		if actor, ok := requestcontext.ActorFrom(ctx); ok {
			event.Actor = actor.String()
		} else {
			event.Actor = string(requestcontext.ActorSystem)
		}
	}

	if err := r.store.Append(ctx, event); err != nil {
		return fmt.Errorf("append audit event %s: %w", event.Action, err)
	}

	if r.sink != nil {
		// Publish after the transaction commits; a rolled-back mutation must
		// leave no trace downstream. tx.OnCommit runs the callback
		// immediately when no transaction encloses the call.
		tx.OnCommit(ctx, func() {
			r.sink.Publish(ctx, event)
		})
	}
	if r.logger != nil {
		r.logger.InfoContext(ctx, string(event.Action),
			"log_type", "audit",
			"actor", event.Actor,
			"target_type", event.TargetType,
			"target_id", event.TargetID,
			"request_id", event.RequestID,
		)
	}
	return nil
}

// Store exposes the underlying store for read paths (audit timeline pages).
func (r *Recorder) Store() Store { return r.store }
