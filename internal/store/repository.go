// Package store persists campaigns and their call queues.
//
// The dialer is the only writer of campaign counters and call rows; every
// method that touches both does so in one atomic write.
package store

import (
	"context"
	"errors"

	"voiceagents/internal/calls"
	"voiceagents/internal/campaigns"
)

var ErrCallNotFound = errors.New("store: call not found")

// Repository is the persistence contract used by the dialer.
type Repository interface {
	Reader

	CreateCampaign(ctx context.Context, c campaigns.Campaign) error
	// SaveCampaign overwrites the mutable columns of an existing campaign.
	SaveCampaign(ctx context.Context, c campaigns.Campaign) error
	ListCampaignsByExecution(ctx context.Context, status campaigns.ExecutionStatus) ([]campaigns.Campaign, error)

	// Materialize appends the queue rows and saves c (with QueueMaterializedAt set) atomically.
	Materialize(ctx context.Context, c campaigns.Campaign, rows []calls.CampaignCall) error
	// NextPending returns the oldest pending call of the campaign, in queue order.
	NextPending(ctx context.Context, campaignID string) (calls.CampaignCall, bool, error)
	CountPending(ctx context.Context, campaignID string) (int, error)

	// SaveCall writes the call row and the campaign row atomically.
	SaveCall(ctx context.Context, c campaigns.Campaign, call calls.CampaignCall) error
	GetCall(ctx context.Context, id string) (calls.CampaignCall, error)
	FindCallBySID(ctx context.Context, callSID string) (calls.CampaignCall, error)
}

// Reader is the read side used by reporting. It never mutates state.
type Reader interface {
	GetCampaign(ctx context.Context, id string) (campaigns.Campaign, error)
	// ListCalls returns every call of the campaign in queue order.
	ListCalls(ctx context.Context, campaignID string) ([]calls.CampaignCall, error)
	// RecentCalls returns up to limit calls, most recently called first.
	RecentCalls(ctx context.Context, campaignID string, limit int) ([]calls.CampaignCall, error)
}
