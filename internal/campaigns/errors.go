package campaigns

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("campaigns: not found")
	ErrInvalidState      = errors.New("campaigns: invalid state")
	ErrInvalidTransition = errors.New("campaigns: invalid transition")
	ErrEmptyQueue        = errors.New("campaigns: no pending calls")
	ErrInvalidPolicy     = errors.New("campaigns: invalid policy")
)

// TransitionError is returned when a command is not allowed from the current
// execution status. It matches both ErrInvalidState and ErrInvalidTransition.
type TransitionError struct {
	From    ExecutionStatus
	Command Command
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("campaigns: cannot %s from %s", e.Command, e.From)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidState || target == ErrInvalidTransition
}

// PolicyError describes why a campaign policy cannot be executed.
// It matches both ErrInvalidState and ErrInvalidPolicy.
type PolicyError struct {
	Field  string
	Reason string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("campaigns: invalid policy: %s %s", e.Field, e.Reason)
}

func (e *PolicyError) Is(target error) bool {
	return target == ErrInvalidState || target == ErrInvalidPolicy
}
