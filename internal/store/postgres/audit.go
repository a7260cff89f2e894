package postgres

import (
	"context"

	"voiceagents/internal/audit"
)

var _ audit.Repository = (*Store)(nil)

// Append inserts one audit event. The table has no update path.
func (s *Store) Append(ctx context.Context, e audit.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, workspace_id, type, actor_user_id, actor_role, ip_address,
			campaign_id, call_id, command, from_status, to_status, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.WorkspaceID, e.Type, e.ActorUserID, e.ActorRole, e.IPAddress,
		e.CampaignID, e.CallID, e.Command, e.FromStatus, e.ToStatus, e.Message, e.CreatedAt,
	)
	return err
}
