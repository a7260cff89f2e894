package campaigns

// Command is an operator command or an internal dialer event.
type Command string

const (
	CommandStart  Command = "start"
	CommandPause  Command = "pause"
	CommandResume Command = "resume"
	CommandStop   Command = "stop"

	// Dialer-originated events.
	EventQuiesced  Command = "quiesced"
	EventExhausted Command = "exhausted"
	EventFault     Command = "fault"
)

// Next returns the execution status reached by applying cmd to from.
//
// Stop is idempotent: applied to idle or completed it returns the same status
// and no error. Pause from running stays running; the dialer reports
// EventQuiesced once nothing is mid-dispatch.
func Next(from ExecutionStatus, cmd Command) (ExecutionStatus, error) {
	switch cmd {
	case CommandStart:
		switch from {
		case ExecutionIdle, ExecutionError, "":
			return ExecutionRunning, nil
		}
	case CommandPause:
		if from == ExecutionRunning {
			return ExecutionRunning, nil
		}
	case CommandResume:
		if from == ExecutionPaused {
			return ExecutionRunning, nil
		}
	case CommandStop:
		switch from {
		case ExecutionRunning, ExecutionPaused, ExecutionError:
			return ExecutionCompleted, nil
		case ExecutionIdle, ExecutionCompleted, "":
			return from, nil
		}
	case EventQuiesced:
		if from == ExecutionRunning {
			return ExecutionPaused, nil
		}
	case EventExhausted:
		if from == ExecutionRunning {
			return ExecutionCompleted, nil
		}
	case EventFault:
		if from == ExecutionRunning {
			return ExecutionError, nil
		}
	}
	return from, &TransitionError{From: from, Command: cmd}
}

// LifecycleAfter returns the lifecycle status a campaign takes after a
// successful transition. stopCompletes selects whether Stop forces completed.
func LifecycleAfter(current Status, cmd Command, stopCompletes bool) Status {
	switch cmd {
	case CommandStart, CommandResume:
		return StatusActive
	case EventQuiesced:
		return StatusPaused
	case EventExhausted:
		return StatusCompleted
	case CommandStop:
		if stopCompletes {
			return StatusCompleted
		}
	}
	return current
}
