package audit

import "time"

// Event is an append-only record of an operator command or a dialer fault.
//
// Events are never updated or deleted. WorkspaceID is always set so records
// stay tenant-scoped.
type Event struct {
	ID          string    `json:"id" db:"id"`
	WorkspaceID string    `json:"workspace_id" db:"workspace_id"`
	Type        EventType `json:"type" db:"type"`

	// Actor fields are empty for events raised by the dialer itself.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress   string `json:"ip_address,omitempty" db:"ip_address"`

	CampaignID string `json:"campaign_id" db:"campaign_id"`
	CallID     string `json:"call_id,omitempty" db:"call_id"`
	Command    string `json:"command,omitempty" db:"command"`

	// FromStatus/ToStatus are execution statuses around the event.
	FromStatus string `json:"from_status,omitempty" db:"from_status"`
	ToStatus   string `json:"to_status,omitempty" db:"to_status"`

	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCommand       EventType = "campaign_command"
	EventTypeDispatchFault EventType = "dispatch_fault"
	EventTypeExecution     EventType = "execution_change"
)

// Actor identifies who issued a command.
type Actor struct {
	UserID string
	Role   string
	IP     string
}
