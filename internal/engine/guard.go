package engine

import (
	"context"
	"log"
)

// GuardState is the exit guard's position in its lifecycle.
type GuardState int

const (
	StateEditing GuardState = iota
	StateConfirmingExit
	StateSaving
	StateExited
)

func (s GuardState) String() string {
	switch s {
	case StateEditing:
		return "editing"
	case StateConfirmingExit:
		return "confirming_exit"
	case StateSaving:
		return "saving"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// SaveFunc runs one sync pass for the session.
type SaveFunc func(ctx context.Context) (Counts, error)

// ExitGuard governs leaving the edit screen. Navigating away mid-edit asks
// for confirmation and, when confirmed, drives one guarded save before
// letting the user go. A guarded save that fails still releases the user;
// trapping them on the screen would be worse than losing the delta. The
// explicit done action is the opposite: its failures surface and block.
type ExitGuard struct {
	state     GuardState
	save      SaveFunc
	justSaved bool
}

func NewExitGuard(save SaveFunc) *ExitGuard {
	return &ExitGuard{state: StateEditing, save: save}
}

func (g *ExitGuard) State() GuardState { return g.state }

// MarkDirty notes a user edit since the last successful save. The next exit
// attempt prompts again.
func (g *ExitGuard) MarkDirty() {
	if g.state == StateEditing {
		g.justSaved = false
	}
}

// RequestExit handles a navigation-away attempt. Straight after a
// successful manual save there is nothing to lose, so it exits without
// re-prompting; otherwise it moves to the confirmation prompt.
func (g *ExitGuard) RequestExit() GuardState {
	if g.state != StateEditing {
		return g.state
	}
	if g.justSaved {
		g.state = StateExited
	} else {
		g.state = StateConfirmingExit
	}
	return g.state
}

// Cancel returns from the confirmation prompt with nothing changed.
func (g *ExitGuard) Cancel() GuardState {
	if g.state == StateConfirmingExit {
		g.state = StateEditing
	}
	return g.state
}

// Confirm runs the guarded save and exits regardless of its outcome. The
// error is logged, never surfaced: this is the auto-save-on-back path.
func (g *ExitGuard) Confirm(ctx context.Context) GuardState {
	if g.state != StateConfirmingExit {
		return g.state
	}
	g.state = StateSaving
	if _, err := g.save(ctx); err != nil {
		log.Printf("exit guard: guarded save failed: %v", err)
	}
	g.state = StateExited
	return g.state
}

// ManualSave is the explicit done action. Failures are returned to the
// caller and the session stays in editing; success arms the no-reprompt
// exit.
func (g *ExitGuard) ManualSave(ctx context.Context) (Counts, error) {
	if g.state != StateEditing {
		return Counts{}, nil
	}
	g.state = StateSaving
	counts, err := g.save(ctx)
	g.state = StateEditing
	if err != nil {
		return counts, err
	}
	g.justSaved = true
	return counts, nil
}
