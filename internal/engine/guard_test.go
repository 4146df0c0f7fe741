package engine

import (
	"context"
	"errors"
	"testing"
)

func TestExitGuardConfirmSavesThenExits(t *testing.T) {
	saves := 0
	guard := NewExitGuard(func(context.Context) (Counts, error) {
		saves++
		return Counts{Created: 1}, nil
	})

	if got := guard.RequestExit(); got != StateConfirmingExit {
		t.Fatalf("expected confirmation prompt, got %s", got)
	}
	if got := guard.Confirm(context.Background()); got != StateExited {
		t.Fatalf("expected exit after guarded save, got %s", got)
	}
	if saves != 1 {
		t.Fatalf("expected exactly one guarded save, got %d", saves)
	}
}

func TestExitGuardCancelReturnsToEditing(t *testing.T) {
	guard := NewExitGuard(func(context.Context) (Counts, error) {
		t.Fatal("cancel must not save")
		return Counts{}, nil
	})

	guard.RequestExit()
	if got := guard.Cancel(); got != StateEditing {
		t.Fatalf("expected editing after cancel, got %s", got)
	}
}

func TestExitGuardSwallowsGuardedSaveFailure(t *testing.T) {
	guard := NewExitGuard(func(context.Context) (Counts, error) {
		return Counts{}, errors.New("network down")
	})

	guard.RequestExit()
	if got := guard.Confirm(context.Background()); got != StateExited {
		t.Fatalf("a failed guarded save must still release the user, got %s", got)
	}
}

func TestExitGuardManualSaveFailureBlocks(t *testing.T) {
	fail := true
	guard := NewExitGuard(func(context.Context) (Counts, error) {
		if fail {
			return Counts{}, errors.New("network down")
		}
		return Counts{Updated: 1}, nil
	})

	if _, err := guard.ManualSave(context.Background()); err == nil {
		t.Fatal("manual save failure must surface")
	}
	if got := guard.State(); got != StateEditing {
		t.Fatalf("failed manual save must stay on the screen, got %s", got)
	}

	fail = false
	counts, err := guard.ManualSave(context.Background())
	if err != nil {
		t.Fatalf("ManualSave() error = %v", err)
	}
	if counts.Updated != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	// Leaving right after a successful manual save skips the prompt.
	if got := guard.RequestExit(); got != StateExited {
		t.Fatalf("expected direct exit after manual save, got %s", got)
	}
}

func TestExitGuardEditAfterSaveRearmsPrompt(t *testing.T) {
	guard := NewExitGuard(func(context.Context) (Counts, error) {
		return Counts{}, nil
	})

	if _, err := guard.ManualSave(context.Background()); err != nil {
		t.Fatalf("ManualSave() error = %v", err)
	}
	guard.MarkDirty()
	if got := guard.RequestExit(); got != StateConfirmingExit {
		t.Fatalf("edits after a save must re-arm the prompt, got %s", got)
	}
}
