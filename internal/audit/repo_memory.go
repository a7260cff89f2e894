package audit

import (
	"context"
	"sync"
)

// MemoryRepo keeps events in process memory. Used by tests and local runs.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy, optionally filtered by campaign.
func (r *MemoryRepo) Events(campaignID string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, len(r.events))
	for _, e := range r.events {
		if campaignID == "" || e.CampaignID == campaignID {
			out = append(out, e)
		}
	}
	return out
}
