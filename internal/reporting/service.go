// Package reporting projects campaign progress from the stored call rows.
package reporting

import (
	"context"
	"errors"

	"voiceagents/internal/calls"
	"voiceagents/internal/store"
)

const (
	DefaultCallsLimit = 50
	MaxCallsLimit     = 500
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Service is a pure reader; it never writes campaign or call state.
type Service struct {
	repo store.Reader
}

func NewService(repo store.Reader) *Service { return &Service{repo: repo} }

// Status returns the campaign with its queue buckets and call statistics.
func (s *Service) Status(ctx context.Context, campaignID string) (CampaignStatus, error) {
	if campaignID == "" {
		return CampaignStatus{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CampaignStatus{}, errors.New("reporting: repository not configured")
	}
	c, err := s.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return CampaignStatus{}, err
	}
	rows, err := s.repo.ListCalls(ctx, campaignID)
	if err != nil {
		return CampaignStatus{}, err
	}
	q, st := Summarize(rows)
	return CampaignStatus{Campaign: c, QueueStatus: q, Stats: st}, nil
}

// Summarize buckets rows and computes their statistics.
func Summarize(rows []calls.CampaignCall) (QueueStatus, Stats) {
	var q QueueStatus
	st := Stats{Total: len(rows)}
	for _, r := range rows {
		switch r.Status.Bucket() {
		case calls.BucketQueued:
			q.Queued++
		case calls.BucketProcessing:
			q.Processing++
		case calls.BucketCompleted:
			q.Completed++
		case calls.BucketFailed:
			q.Failed++
		}

		switch r.Status {
		case calls.StatusCompleted:
			st.Completed++
		case calls.StatusFailed:
			st.Failed++
		case calls.StatusNoAnswer:
			st.NoAnswer++
		case calls.StatusBusy:
			st.Busy++
		}
		if r.Status == calls.StatusDoNotCall || r.Outcome == calls.OutcomeDoNotCall {
			st.DoNotCall++
		}
		switch r.Outcome {
		case calls.OutcomeInterested:
			st.Interested++
		case calls.OutcomeNotInterested:
			st.NotInterested++
		case calls.OutcomeCallback:
			st.Callback++
		}
		if r.Outcome != calls.OutcomeNone {
			st.Answered++
		}
	}
	return q, st
}

// Calls returns up to limit calls, most recently called first. A limit of
// zero or less means DefaultCallsLimit; larger limits are capped at MaxCallsLimit.
func (s *Service) Calls(ctx context.Context, campaignID string, limit int) (CallsPage, error) {
	if campaignID == "" {
		return CallsPage{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsPage{}, errors.New("reporting: repository not configured")
	}
	if limit <= 0 {
		limit = DefaultCallsLimit
	}
	if limit > MaxCallsLimit {
		limit = MaxCallsLimit
	}
	if _, err := s.repo.GetCampaign(ctx, campaignID); err != nil {
		return CallsPage{}, err
	}
	rows, err := s.repo.RecentCalls(ctx, campaignID, limit)
	if err != nil {
		return CallsPage{}, err
	}
	if rows == nil {
		rows = []calls.CampaignCall{}
	}
	return CallsPage{CampaignID: campaignID, Limit: limit, Calls: rows}, nil
}

// Workspace returns the workspace a campaign belongs to.
func (s *Service) Workspace(ctx context.Context, campaignID string) (string, error) {
	c, err := s.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return "", err
	}
	return c.WorkspaceID, nil
}
