package relay

import (
	"context"
	"log/slog"
)

// State is a step in the lifecycle of a single upload:
//
//	receiving → spooled → uploading → permission_granting → done
//
// Any non-terminal state may move to cleaning_up → failed. A tracker belongs
// to exactly one request; nothing about it is shared.
type State string

const (
	StateReceiving          State = "receiving"
	StateSpooled            State = "spooled"
	StateUploading          State = "uploading"
	StatePermissionGranting State = "permission_granting"
	StateDone               State = "done"
	StateCleaningUp         State = "cleaning_up"
	StateFailed             State = "failed"
)

var transitions = map[State][]State{
	StateReceiving:          {StateSpooled, StateCleaningUp},
	StateSpooled:            {StateUploading, StateCleaningUp},
	StateUploading:          {StatePermissionGranting, StateCleaningUp},
	StatePermissionGranting: {StateDone, StateCleaningUp},
	StateCleaningUp:         {StateFailed},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition reports whether moving from s to next is legal.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type tracker struct {
	ctx    context.Context
	logger *slog.Logger
	state  State
}

func newTracker(ctx context.Context, logger *slog.Logger) *tracker {
	return &tracker{ctx: ctx, logger: logger, state: StateReceiving}
}

func (t *tracker) current() State {
	return t.state
}

// to moves the tracker to next. Illegal transitions are logged and ignored.
func (t *tracker) to(next State) {
	if !t.state.CanTransition(next) {
		t.logger.WarnContext(t.ctx, "illegal upload state transition", "from", t.state, "to", next)
		return
	}
	t.logger.DebugContext(t.ctx, "upload state changed", "from", t.state, "to", next)
	t.state = next
}

// fail runs the cleaning_up → failed path from any non-terminal state.
func (t *tracker) fail(cleanup func()) {
	if t.state.Terminal() {
		return
	}
	t.to(StateCleaningUp)
	cleanup()
	t.to(StateFailed)
}
