package calls

import (
	"testing"
	"time"

	"voiceagents/internal/campaigns"
)

func TestClassify_Table(t *testing.T) {
	cases := []struct {
		raw      RawOutcome
		status   Status
		outcome  Outcome
		answered bool
	}{
		{RawAnsweredInterested, StatusCompleted, OutcomeInterested, true},
		{RawAnsweredNotInterested, StatusCompleted, OutcomeNotInterested, true},
		{RawAnsweredCallback, StatusCompleted, OutcomeCallback, true},
		{RawAnsweredOptOut, StatusCompleted, OutcomeDoNotCall, true},
		{RawAnsweredMachine, StatusCompleted, OutcomeVoicemail, true},
		{RawAnsweredWrongNumber, StatusCompleted, OutcomeWrongNumber, true},
		{RawNoAnswer, StatusNoAnswer, OutcomeNone, false},
		{RawBusy, StatusBusy, OutcomeNone, false},
		{RawFailed, StatusFailed, OutcomeNone, false},
		{RawOutcome("something_else"), StatusFailed, OutcomeNone, false},
	}
	for _, tc := range cases {
		got := Classify(tc.raw)
		if got.Status != tc.status || got.Outcome != tc.outcome || got.Answered != tc.answered {
			t.Fatalf("%s: unexpected classification %+v", tc.raw, got)
		}
	}
}

func TestApply_AnsweredTouchesPickupsAndOutcomeCounter(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	var counters campaigns.Counters
	call := CampaignCall{Status: StatusCalling}

	Classify(RawAnsweredCallback).Apply(&call, &counters, 42, now)

	if call.Status != StatusCompleted || call.Outcome != OutcomeCallback {
		t.Fatalf("unexpected call state: %+v", call)
	}
	if call.DurationSeconds != 42 || call.CompletedAt == nil {
		t.Fatalf("expected duration and completed_at on answered call")
	}
	if counters.Pickups != 1 || counters.Callback != 1 || counters.TotalCallsAnswered != 1 || counters.TotalUsage != 42 {
		t.Fatalf("unexpected counters: %+v", counters)
	}
	if counters.Dials != 0 {
		t.Fatalf("dials are counted at dispatch, got %d", counters.Dials)
	}
}

func TestApply_UnansweredLeavesOutcomeEmpty(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	var counters campaigns.Counters
	call := CampaignCall{Status: StatusCalling}

	Classify(RawBusy).Apply(&call, &counters, 30, now)

	if call.Status != StatusBusy || call.Outcome != OutcomeNone || call.DurationSeconds != 0 {
		t.Fatalf("unexpected call state: %+v", call)
	}
	if counters != (campaigns.Counters{}) {
		t.Fatalf("expected no counter change, got %+v", counters)
	}
}

func TestParseRawOutcome_NormalizesProviderSpelling(t *testing.T) {
	if got := ParseRawOutcome(" No-Answer "); got != RawNoAnswer {
		t.Fatalf("expected no_answer, got %q", got)
	}
}

func TestStatusBuckets(t *testing.T) {
	want := map[Status]Bucket{
		StatusPending:   BucketQueued,
		StatusCalling:   BucketProcessing,
		StatusCompleted: BucketCompleted,
		StatusDoNotCall: BucketCompleted,
		StatusFailed:    BucketFailed,
		StatusNoAnswer:  BucketFailed,
		StatusBusy:      BucketFailed,
	}
	for s, b := range want {
		if s.Bucket() != b {
			t.Fatalf("%s: expected bucket %s, got %s", s, b, s.Bucket())
		}
		if s.Terminal() == (s == StatusPending || s == StatusCalling) {
			t.Fatalf("%s: unexpected terminal flag", s)
		}
	}
}
