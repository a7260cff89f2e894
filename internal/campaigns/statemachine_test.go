package campaigns

import (
	"errors"
	"testing"
)

func TestNext_AllowedTransitions(t *testing.T) {
	cases := []struct {
		from ExecutionStatus
		cmd  Command
		want ExecutionStatus
	}{
		{ExecutionIdle, CommandStart, ExecutionRunning},
		{ExecutionError, CommandStart, ExecutionRunning},
		{ExecutionRunning, CommandPause, ExecutionRunning},
		{ExecutionRunning, EventQuiesced, ExecutionPaused},
		{ExecutionPaused, CommandResume, ExecutionRunning},
		{ExecutionRunning, CommandStop, ExecutionCompleted},
		{ExecutionPaused, CommandStop, ExecutionCompleted},
		{ExecutionError, CommandStop, ExecutionCompleted},
		{ExecutionRunning, EventExhausted, ExecutionCompleted},
		{ExecutionRunning, EventFault, ExecutionError},
	}
	for _, tc := range cases {
		got, err := Next(tc.from, tc.cmd)
		if err != nil {
			t.Fatalf("%s/%s: unexpected err: %v", tc.from, tc.cmd, err)
		}
		if got != tc.want {
			t.Fatalf("%s/%s: expected %s, got %s", tc.from, tc.cmd, tc.want, got)
		}
	}
}

func TestNext_RejectsInvalidTransitions(t *testing.T) {
	cases := []struct {
		from ExecutionStatus
		cmd  Command
	}{
		{ExecutionRunning, CommandStart},
		{ExecutionPaused, CommandStart},
		{ExecutionCompleted, CommandStart},
		{ExecutionPaused, CommandPause},
		{ExecutionIdle, CommandPause},
		{ExecutionRunning, CommandResume},
		{ExecutionCompleted, CommandResume},
		{ExecutionPaused, EventFault},
	}
	for _, tc := range cases {
		got, err := Next(tc.from, tc.cmd)
		if err == nil {
			t.Fatalf("%s/%s: expected error", tc.from, tc.cmd)
		}
		if !errors.Is(err, ErrInvalidState) || !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s/%s: expected invalid state/transition, got %v", tc.from, tc.cmd, err)
		}
		if got != tc.from {
			t.Fatalf("%s/%s: state must be unchanged, got %s", tc.from, tc.cmd, got)
		}
	}
}

func TestNext_StopIsIdempotent(t *testing.T) {
	once, err := Next(ExecutionRunning, CommandStop)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	twice, err := Next(once, CommandStop)
	if err != nil {
		t.Fatalf("second stop must not fail: %v", err)
	}
	if once != twice {
		t.Fatalf("expected same state, got %s then %s", once, twice)
	}
	if got, err := Next(ExecutionIdle, CommandStop); err != nil || got != ExecutionIdle {
		t.Fatalf("stop on idle must be a no-op, got %s %v", got, err)
	}
}

func TestLifecycleAfter_StopPolicy(t *testing.T) {
	if got := LifecycleAfter(StatusActive, CommandStop, true); got != StatusCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
	if got := LifecycleAfter(StatusActive, CommandStop, false); got != StatusActive {
		t.Fatalf("expected lifecycle unchanged, got %s", got)
	}
	if got := LifecycleAfter(StatusDraft, CommandStart, true); got != StatusActive {
		t.Fatalf("expected active, got %s", got)
	}
}
