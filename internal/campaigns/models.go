package campaigns

import "time"

// Campaign is a tenant-scoped outbound calling campaign.
//
// Status is the business-facing lifecycle; ExecutionStatus is the dialer's
// live run state. The two are correlated but written independently.
//
// Counters are only ever incremented, except CurrentDailyCalls which resets
// when the first dial of a new day happens (see quota.ApplyDailyReset).
type Campaign struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`
	UserID      string `json:"user_id" db:"user_id"`
	Name        string `json:"name" db:"name"`

	// AssistantID and ContactListID are opaque references owned by the surrounding app.
	AssistantID   string `json:"assistant_id" db:"assistant_id"`
	ContactListID string `json:"contact_list_id" db:"contact_list_id"`

	Policy

	Status          Status          `json:"status" db:"status"`
	ExecutionStatus ExecutionStatus `json:"execution_status" db:"execution_status"`

	Counters

	// DailyCallsDay is the YYYY-MM-DD day CurrentDailyCalls was counted for.
	DailyCallsDay string `json:"daily_calls_day,omitempty" db:"daily_calls_day"`

	LastExecutionAt     *time.Time `json:"last_execution_at,omitempty" db:"last_execution_at"`
	NextCallAt          *time.Time `json:"next_call_at,omitempty" db:"next_call_at"`
	QueueMaterializedAt *time.Time `json:"queue_materialized_at,omitempty" db:"queue_materialized_at"`

	// LastError holds the most recent dispatch-level fault, if any.
	LastError string `json:"last_error,omitempty" db:"last_error"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Counters are the aggregated per-campaign call counters.
type Counters struct {
	Dials              int `json:"dials" db:"dials"`
	Pickups            int `json:"pickups" db:"pickups"`
	DoNotCall          int `json:"do_not_call" db:"do_not_call"`
	Interested         int `json:"interested" db:"interested"`
	NotInterested      int `json:"not_interested" db:"not_interested"`
	Callback           int `json:"callback" db:"callback"`
	TotalUsage         int `json:"total_usage" db:"total_usage"` // seconds of answered talk time
	CurrentDailyCalls  int `json:"current_daily_calls" db:"current_daily_calls"`
	TotalCallsMade     int `json:"total_calls_made" db:"total_calls_made"`
	TotalCallsAnswered int `json:"total_calls_answered" db:"total_calls_answered"`
}

// Status is the durable lifecycle status of a campaign.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// ExecutionStatus is the dialer's live state for a campaign.
type ExecutionStatus string

const (
	ExecutionIdle      ExecutionStatus = "idle"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionPaused    ExecutionStatus = "paused"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionError     ExecutionStatus = "error"
)

// Materialized reports whether the contact source was already copied into the queue.
func (c Campaign) Materialized() bool { return c.QueueMaterializedAt != nil }
