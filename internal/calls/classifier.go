package calls

import (
	"strings"
	"time"

	"voiceagents/internal/campaigns"
)

// RawOutcome is the completion signal reported by the telephony gateway.
type RawOutcome string

const (
	RawAnsweredInterested    RawOutcome = "answered_interested"
	RawAnsweredNotInterested RawOutcome = "answered_not_interested"
	RawAnsweredCallback      RawOutcome = "answered_callback"
	RawAnsweredOptOut        RawOutcome = "answered_opt_out"
	RawAnsweredMachine       RawOutcome = "answered_machine"
	RawAnsweredWrongNumber   RawOutcome = "answered_wrong_number"
	RawNoAnswer              RawOutcome = "no_answer"
	RawBusy                  RawOutcome = "busy"
	RawFailed                RawOutcome = "failed"
)

// ParseRawOutcome normalizes provider spellings ("no-answer", "Busy", ...).
func ParseRawOutcome(s string) RawOutcome {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	return RawOutcome(s)
}

// Valid reports whether r is one of the known signals.
func (r RawOutcome) Valid() bool {
	switch r {
	case RawAnsweredInterested, RawAnsweredNotInterested, RawAnsweredCallback,
		RawAnsweredOptOut, RawAnsweredMachine, RawAnsweredWrongNumber,
		RawNoAnswer, RawBusy, RawFailed:
		return true
	}
	return false
}

// Classification is the terminal state derived from a raw outcome.
type Classification struct {
	Status   Status
	Outcome  Outcome
	Answered bool
}

// Classify maps a raw gateway signal to status and outcome.
// Unknown signals are treated as provider failures.
func Classify(raw RawOutcome) Classification {
	switch raw {
	case RawAnsweredInterested:
		return Classification{Status: StatusCompleted, Outcome: OutcomeInterested, Answered: true}
	case RawAnsweredNotInterested:
		return Classification{Status: StatusCompleted, Outcome: OutcomeNotInterested, Answered: true}
	case RawAnsweredCallback:
		return Classification{Status: StatusCompleted, Outcome: OutcomeCallback, Answered: true}
	case RawAnsweredOptOut:
		return Classification{Status: StatusCompleted, Outcome: OutcomeDoNotCall, Answered: true}
	case RawAnsweredMachine:
		return Classification{Status: StatusCompleted, Outcome: OutcomeVoicemail, Answered: true}
	case RawAnsweredWrongNumber:
		return Classification{Status: StatusCompleted, Outcome: OutcomeWrongNumber, Answered: true}
	case RawNoAnswer:
		return Classification{Status: StatusNoAnswer}
	case RawBusy:
		return Classification{Status: StatusBusy}
	default:
		return Classification{Status: StatusFailed}
	}
}

// Apply folds the classification into the call row and campaign counters.
//
// Dials is counted when the call is placed, not here. Callers must persist
// call and counters in the same write.
func (cl Classification) Apply(call *CampaignCall, counters *campaigns.Counters, durationSeconds int, now time.Time) {
	call.Status = cl.Status
	call.Outcome = cl.Outcome
	call.CompletedAt = &now
	call.UpdatedAt = now
	if !cl.Answered {
		call.DurationSeconds = 0
		return
	}
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	call.DurationSeconds = durationSeconds

	counters.Pickups++
	counters.TotalCallsAnswered++
	counters.TotalUsage += durationSeconds
	switch cl.Outcome {
	case OutcomeInterested:
		counters.Interested++
	case OutcomeNotInterested:
		counters.NotInterested++
	case OutcomeCallback:
		counters.Callback++
	case OutcomeDoNotCall:
		counters.DoNotCall++
	}
}
