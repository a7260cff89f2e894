package calls

import "time"

// CampaignCall is one queued or attempted contact of a campaign.
//
// Contact fields are a snapshot taken when the queue is materialized; later
// edits to the contact list never reach an existing row.
//
// Status is terminal once it leaves pending/calling. Outcome and
// DurationSeconds are only set for answered calls.
type CampaignCall struct {
	ID         string `json:"id" db:"id"`
	CampaignID string `json:"campaign_id" db:"campaign_id"`

	// Position is the creation order inside the campaign queue.
	Position int `json:"position" db:"position"`

	ContactName  string `json:"contact_name" db:"contact_name"`
	ContactPhone string `json:"contact_phone" db:"contact_phone"`
	ContactEmail string `json:"contact_email,omitempty" db:"contact_email"`
	DoNotCall    bool   `json:"do_not_call" db:"do_not_call"`

	Status  Status  `json:"status" db:"status"`
	Outcome Outcome `json:"outcome,omitempty" db:"outcome"`

	DurationSeconds int `json:"call_duration,omitempty" db:"call_duration"`

	// External correlation handles returned by the telephony gateway.
	CallSID  string `json:"call_sid,omitempty" db:"call_sid"`
	RoomName string `json:"room_name,omitempty" db:"room_name"`

	// Error is the dispatch fault that failed this call, if any.
	Error string `json:"error,omitempty" db:"error"`

	CalledAt    *time.Time `json:"called_at,omitempty" db:"called_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusCalling   Status = "calling"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusNoAnswer  Status = "no_answer"
	StatusBusy      Status = "busy"
	StatusDoNotCall Status = "do_not_call"
)

// Terminal reports whether no further transition is expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusNoAnswer, StatusBusy, StatusDoNotCall:
		return true
	default:
		return false
	}
}

type Outcome string

const (
	OutcomeNone          Outcome = ""
	OutcomeInterested    Outcome = "interested"
	OutcomeNotInterested Outcome = "not_interested"
	OutcomeCallback      Outcome = "callback"
	OutcomeDoNotCall     Outcome = "do_not_call"
	OutcomeVoicemail     Outcome = "voicemail"
	OutcomeWrongNumber   Outcome = "wrong_number"
)

// Bucket is the coarse grouping used for queue observability.
type Bucket string

const (
	BucketQueued     Bucket = "queued"
	BucketProcessing Bucket = "processing"
	BucketCompleted  Bucket = "completed"
	BucketFailed     Bucket = "failed"
)

// Bucket maps a status into exactly one queue bucket.
func (s Status) Bucket() Bucket {
	switch s {
	case StatusCalling:
		return BucketProcessing
	case StatusCompleted, StatusDoNotCall:
		return BucketCompleted
	case StatusFailed, StatusNoAnswer, StatusBusy:
		return BucketFailed
	default:
		return BucketQueued
	}
}
