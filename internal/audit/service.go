package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Repository is append-only; there is no update or delete.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

var ErrInvalidEvent = errors.New("audit: invalid event")

// Service records campaign audit events.
//
// Recording is best-effort for callers: Record* helpers log a failed write
// and never return it, so a broken audit sink cannot stall dialing.
type Service struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log, clock: time.Now}
}

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.WorkspaceID == "" || e.CampaignID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// RecordCommand stores an operator command and the status change it caused.
func (s *Service) RecordCommand(ctx context.Context, a Actor, workspaceID, campaignID, command, from, to string) {
	s.record(ctx, Event{
		WorkspaceID: workspaceID,
		Type:        EventTypeCommand,
		ActorUserID: a.UserID,
		ActorRole:   a.Role,
		IPAddress:   a.IP,
		CampaignID:  campaignID,
		Command:     command,
		FromStatus:  from,
		ToStatus:    to,
	})
}

// RecordExecution stores a status change made by the dialer (pause
// acknowledged, queue exhausted).
func (s *Service) RecordExecution(ctx context.Context, workspaceID, campaignID, event, from, to string) {
	s.record(ctx, Event{
		WorkspaceID: workspaceID,
		Type:        EventTypeExecution,
		CampaignID:  campaignID,
		Command:     event,
		FromStatus:  from,
		ToStatus:    to,
	})
}

// RecordDispatchFault stores the fault that moved a campaign to error.
func (s *Service) RecordDispatchFault(ctx context.Context, workspaceID, campaignID, callID string, fault error) {
	msg := ""
	if fault != nil {
		msg = fault.Error()
	}
	s.record(ctx, Event{
		WorkspaceID: workspaceID,
		Type:        EventTypeDispatchFault,
		CampaignID:  campaignID,
		CallID:      callID,
		Message:     msg,
	})
}

func (s *Service) record(ctx context.Context, e Event) {
	if s == nil {
		return
	}
	if err := s.Append(ctx, e); err != nil {
		s.log.Warn("audit append failed", "type", e.Type, "campaign_id", e.CampaignID, "err", err)
	}
}
