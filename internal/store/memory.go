package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"voiceagents/internal/calls"
	"voiceagents/internal/campaigns"
)

// MemoryRepo is an in-memory Repository for tests and single-node development.
// Every method holds one mutex, so combined campaign/call writes are atomic.
type MemoryRepo struct {
	mu sync.Mutex

	campaigns map[string]campaigns.Campaign
	queues    map[string][]calls.CampaignCall // campaign id -> queue order
	index     map[string]callRef              // call id -> position
	bySID     map[string]string               // call sid -> call id
}

type callRef struct {
	campaignID string
	pos        int
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		campaigns: map[string]campaigns.Campaign{},
		queues:    map[string][]calls.CampaignCall{},
		index:     map[string]callRef{},
		bySID:     map[string]string{},
	}
}

func (r *MemoryRepo) CreateCampaign(ctx context.Context, c campaigns.Campaign) error {
	if c.ID == "" {
		return errors.New("store: campaign id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.campaigns[c.ID]; ok {
		return fmt.Errorf("store: campaign %s already exists", c.ID)
	}
	r.campaigns[c.ID] = cloneCampaign(c)
	return nil
}

func (r *MemoryRepo) GetCampaign(ctx context.Context, id string) (campaigns.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return campaigns.Campaign{}, campaigns.ErrNotFound
	}
	return cloneCampaign(c), nil
}

func (r *MemoryRepo) SaveCampaign(ctx context.Context, c campaigns.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveCampaignLocked(c)
}

func (r *MemoryRepo) saveCampaignLocked(c campaigns.Campaign) error {
	if _, ok := r.campaigns[c.ID]; !ok {
		return campaigns.ErrNotFound
	}
	r.campaigns[c.ID] = cloneCampaign(c)
	return nil
}

func (r *MemoryRepo) ListCampaignsByExecution(ctx context.Context, status campaigns.ExecutionStatus) ([]campaigns.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]campaigns.Campaign, 0)
	for _, c := range r.campaigns {
		if c.ExecutionStatus == status {
			out = append(out, cloneCampaign(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepo) Materialize(ctx context.Context, c campaigns.Campaign, rows []calls.CampaignCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.campaigns[c.ID]; !ok {
		return campaigns.ErrNotFound
	}
	for _, row := range rows {
		if _, dup := r.index[row.ID]; dup {
			return fmt.Errorf("store: call %s already exists", row.ID)
		}
	}
	q := r.queues[c.ID]
	for _, row := range rows {
		row.CampaignID = c.ID
		row.Position = len(q)
		r.index[row.ID] = callRef{campaignID: c.ID, pos: len(q)}
		q = append(q, row)
	}
	r.queues[c.ID] = q
	return r.saveCampaignLocked(c)
}

func (r *MemoryRepo) NextPending(ctx context.Context, campaignID string) (calls.CampaignCall, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.queues[campaignID] {
		if row.Status == calls.StatusPending {
			return row, true, nil
		}
	}
	return calls.CampaignCall{}, false, nil
}

func (r *MemoryRepo) CountPending(ctx context.Context, campaignID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, row := range r.queues[campaignID] {
		if row.Status == calls.StatusPending {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) SaveCall(ctx context.Context, c campaigns.Campaign, call calls.CampaignCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.index[call.ID]
	if !ok || ref.campaignID != c.ID {
		return ErrCallNotFound
	}
	if _, ok := r.campaigns[c.ID]; !ok {
		return campaigns.ErrNotFound
	}
	prev := r.queues[ref.campaignID][ref.pos]
	if prev.CallSID != "" && prev.CallSID != call.CallSID {
		delete(r.bySID, prev.CallSID)
	}
	if call.CallSID != "" {
		r.bySID[call.CallSID] = call.ID
	}
	call.Position = ref.pos
	r.queues[ref.campaignID][ref.pos] = call
	r.campaigns[c.ID] = cloneCampaign(c)
	return nil
}

func (r *MemoryRepo) GetCall(ctx context.Context, id string) (calls.CampaignCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.index[id]
	if !ok {
		return calls.CampaignCall{}, ErrCallNotFound
	}
	return r.queues[ref.campaignID][ref.pos], nil
}

func (r *MemoryRepo) FindCallBySID(ctx context.Context, callSID string) (calls.CampaignCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.bySID[callSID]
	if !ok {
		return calls.CampaignCall{}, ErrCallNotFound
	}
	ref := r.index[id]
	return r.queues[ref.campaignID][ref.pos], nil
}

func (r *MemoryRepo) ListCalls(ctx context.Context, campaignID string) ([]calls.CampaignCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := r.queues[campaignID]
	out := make([]calls.CampaignCall, len(q))
	copy(out, q)
	return out, nil
}

func (r *MemoryRepo) RecentCalls(ctx context.Context, campaignID string, limit int) ([]calls.CampaignCall, error) {
	out, err := r.ListCalls(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	SortMostRecent(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SortMostRecent orders calls by CalledAt descending; never-called rows go
// last, newest created first.
func SortMostRecent(rows []calls.CampaignCall) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch {
		case a.CalledAt != nil && b.CalledAt != nil:
			if !a.CalledAt.Equal(*b.CalledAt) {
				return a.CalledAt.After(*b.CalledAt)
			}
		case a.CalledAt != nil:
			return true
		case b.CalledAt != nil:
			return false
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.Position > b.Position
	})
}

type snapshot struct {
	Campaigns []campaigns.Campaign `json:"campaigns"`
	Calls     []calls.CampaignCall `json:"calls"`
	TakenAt   time.Time            `json:"taken_at"`
}

// Snapshot serializes the full repository content.
func (r *MemoryRepo) Snapshot() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := snapshot{TakenAt: time.Now().UTC()}
	ids := make([]string, 0, len(r.campaigns))
	for id := range r.campaigns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s.Campaigns = append(s.Campaigns, r.campaigns[id])
		s.Calls = append(s.Calls, r.queues[id]...)
	}
	return json.Marshal(s)
}

// LoadSnapshot builds a repository from Snapshot output, preserving queue order.
func LoadSnapshot(data []byte) (*MemoryRepo, error) {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("store: decode snapshot: %w", err)
	}
	r := NewMemoryRepo()
	for _, c := range s.Campaigns {
		r.campaigns[c.ID] = c
	}
	sort.SliceStable(s.Calls, func(i, j int) bool {
		if s.Calls[i].CampaignID != s.Calls[j].CampaignID {
			return s.Calls[i].CampaignID < s.Calls[j].CampaignID
		}
		return s.Calls[i].Position < s.Calls[j].Position
	})
	for _, row := range s.Calls {
		if _, ok := r.campaigns[row.CampaignID]; !ok {
			return nil, fmt.Errorf("store: call %s references unknown campaign %s", row.ID, row.CampaignID)
		}
		q := r.queues[row.CampaignID]
		row.Position = len(q)
		r.index[row.ID] = callRef{campaignID: row.CampaignID, pos: len(q)}
		if row.CallSID != "" {
			r.bySID[row.CallSID] = row.ID
		}
		r.queues[row.CampaignID] = append(q, row)
	}
	return r, nil
}

func cloneCampaign(c campaigns.Campaign) campaigns.Campaign {
	if c.CallingDays != nil {
		days := make([]string, len(c.CallingDays))
		copy(days, c.CallingDays)
		c.CallingDays = days
	}
	return c
}
