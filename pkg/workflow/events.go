package workflow

import (
	"context"
	"time"

	"github.com/binnyhq/part-namer/pkg/registry"
)

// Action identifies the operation an Event describes.
type Action string

const (
	ActionPropose Action = "propose"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionEdit    Action = "edit"
	ActionDefer   Action = "defer"
)

// Event outcomes.
const (
	OutcomeCreated          = "created"
	OutcomeCommitted        = "committed"
	OutcomeAlreadyCommitted = "already_committed"
	OutcomeConflict         = "conflict"
	OutcomeRejected         = "rejected"
	OutcomeUpdated          = "updated"
	OutcomeDeferred         = "deferred"
)

// Event describes one decision or state change made by the Engine.
type Event struct {
	At         time.Time
	Kind       registry.Kind
	ProposalID string
	Code       string
	Action     Action
	Outcome    string
	Actor      string
	Detail     string
}

// Recorder receives Events after the change they describe has been persisted.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, ev Event) error

func (f RecorderFunc) Record(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

func (e *Engine) record(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = e.now().UTC()
	}
	ev.Actor = ActorFromContext(ctx)
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Record(ctx, ev); err != nil {
		e.logger.Warn("failed to record workflow event",
			"kind", ev.Kind, "proposal", ev.ProposalID, "action", ev.Action, "error", err)
	}
}
