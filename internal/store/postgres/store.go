// Package postgres implements store.Repository, contacts.Source and
// audit.Repository on PostgreSQL through database/sql.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"voiceagents/internal/calls"
	"voiceagents/internal/campaigns"
	"voiceagents/internal/store"
	"voiceagents/pkg/utils"

	"github.com/lib/pq"
)

// Store is safe for concurrent use; all state lives in the database.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, clock: time.Now}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ store.Repository = (*Store)(nil)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

const campaignColumns = `id, workspace_id, user_id, name, assistant_id, contact_list_id,
	daily_cap, calling_days, start_hour, end_hour, timezone, campaign_prompt,
	status, execution_status,
	dials, pickups, do_not_call, interested, not_interested, callback, total_usage,
	current_daily_calls, total_calls_made, total_calls_answered, daily_calls_day,
	last_execution_at, next_call_at, queue_materialized_at, last_error,
	created_at, updated_at`

func scanCampaign(row scanner) (campaigns.Campaign, error) {
	var (
		c                          campaigns.Campaign
		lastExec, next, materialis sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.WorkspaceID, &c.UserID, &c.Name, &c.AssistantID, &c.ContactListID,
		&c.DailyCap, pq.Array(&c.CallingDays), &c.StartHour, &c.EndHour, &c.Timezone, &c.Prompt,
		&c.Status, &c.ExecutionStatus,
		&c.Dials, &c.Pickups, &c.DoNotCall, &c.Interested, &c.NotInterested, &c.Callback, &c.TotalUsage,
		&c.CurrentDailyCalls, &c.TotalCallsMade, &c.TotalCallsAnswered, &c.DailyCallsDay,
		&lastExec, &next, &materialis, &c.LastError,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return campaigns.Campaign{}, err
	}
	c.LastExecutionAt = timePtr(lastExec)
	c.NextCallAt = timePtr(next)
	c.QueueMaterializedAt = timePtr(materialis)
	return c, nil
}

func (s *Store) CreateCampaign(ctx context.Context, c campaigns.Campaign) error {
	now := s.clock().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaigns (`+campaignColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		        $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31)`,
		c.ID, c.WorkspaceID, c.UserID, c.Name, c.AssistantID, c.ContactListID,
		c.DailyCap, pq.Array(c.CallingDays), c.StartHour, c.EndHour, c.Timezone, c.Prompt,
		c.Status, c.ExecutionStatus,
		c.Dials, c.Pickups, c.DoNotCall, c.Interested, c.NotInterested, c.Callback, c.TotalUsage,
		c.CurrentDailyCalls, c.TotalCallsMade, c.TotalCallsAnswered, c.DailyCallsDay,
		nullTime(c.LastExecutionAt), nullTime(c.NextCallAt), nullTime(c.QueueMaterializedAt), c.LastError,
		c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (s *Store) GetCampaign(ctx context.Context, id string) (campaigns.Campaign, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	c, err := scanCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return campaigns.Campaign{}, campaigns.ErrNotFound
	}
	return c, err
}

func (s *Store) SaveCampaign(ctx context.Context, c campaigns.Campaign) error {
	return s.saveCampaign(ctx, s.db, c)
}

// saveCampaign writes the mutable columns only; identity and policy are
// owned by the surrounding app.
func (s *Store) saveCampaign(ctx context.Context, q queryer, c campaigns.Campaign) error {
	res, err := q.ExecContext(ctx, `
		UPDATE campaigns SET
			status = $2, execution_status = $3,
			dials = $4, pickups = $5, do_not_call = $6, interested = $7, not_interested = $8,
			callback = $9, total_usage = $10, current_daily_calls = $11, total_calls_made = $12,
			total_calls_answered = $13, daily_calls_day = $14,
			last_execution_at = $15, next_call_at = $16, queue_materialized_at = $17,
			last_error = $18, updated_at = $19
		WHERE id = $1`,
		c.ID, c.Status, c.ExecutionStatus,
		c.Dials, c.Pickups, c.DoNotCall, c.Interested, c.NotInterested,
		c.Callback, c.TotalUsage, c.CurrentDailyCalls, c.TotalCallsMade,
		c.TotalCallsAnswered, c.DailyCallsDay,
		nullTime(c.LastExecutionAt), nullTime(c.NextCallAt), nullTime(c.QueueMaterializedAt),
		c.LastError, s.clock().UTC(),
	)
	if err != nil {
		return err
	}
	return expectOne(res, campaigns.ErrNotFound)
}

func (s *Store) ListCampaignsByExecution(ctx context.Context, status campaigns.ExecutionStatus) ([]campaigns.Campaign, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE execution_status = $1 ORDER BY id`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []campaigns.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const callColumns = `id, campaign_id, position, contact_name, contact_phone, contact_email, do_not_call,
	status, outcome, call_duration, call_sid, room_name, error,
	called_at, completed_at, created_at, updated_at`

func scanCall(row scanner) (calls.CampaignCall, error) {
	var (
		c                   calls.CampaignCall
		calledAt, completed sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.CampaignID, &c.Position, &c.ContactName, &c.ContactPhone, &c.ContactEmail, &c.DoNotCall,
		&c.Status, &c.Outcome, &c.DurationSeconds, &c.CallSID, &c.RoomName, &c.Error,
		&calledAt, &completed, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return calls.CampaignCall{}, err
	}
	c.CalledAt = timePtr(calledAt)
	c.CompletedAt = timePtr(completed)
	return c, nil
}

func collectCalls(rows *sql.Rows) ([]calls.CampaignCall, error) {
	defer rows.Close()
	var out []calls.CampaignCall
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Materialize(ctx context.Context, c campaigns.Campaign, rows []calls.CampaignCall) error {
	return utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		var next int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM campaign_calls WHERE campaign_id = $1`, c.ID,
		).Scan(&next); err != nil {
			return err
		}
		now := s.clock().UTC()
		for i, row := range rows {
			if row.CreatedAt.IsZero() {
				row.CreatedAt = now
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO campaign_calls (id, campaign_id, position, contact_name, contact_phone,
					contact_email, do_not_call, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				row.ID, c.ID, next+i, row.ContactName, row.ContactPhone,
				row.ContactEmail, row.DoNotCall, row.Status, row.CreatedAt, now,
			); err != nil {
				return err
			}
		}
		return s.saveCampaign(ctx, tx, c)
	})
}

func (s *Store) NextPending(ctx context.Context, campaignID string) (calls.CampaignCall, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+callColumns+` FROM campaign_calls
		WHERE campaign_id = $1 AND status = $2
		ORDER BY position
		LIMIT 1`, campaignID, calls.StatusPending)
	c, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return calls.CampaignCall{}, false, nil
	}
	if err != nil {
		return calls.CampaignCall{}, false, err
	}
	return c, true, nil
}

func (s *Store) CountPending(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM campaign_calls WHERE campaign_id = $1 AND status = $2`,
		campaignID, calls.StatusPending,
	).Scan(&n)
	return n, err
}

func (s *Store) SaveCall(ctx context.Context, c campaigns.Campaign, call calls.CampaignCall) error {
	return utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE campaign_calls SET
				status = $3, outcome = $4, call_duration = $5, call_sid = $6, room_name = $7,
				error = $8, called_at = $9, completed_at = $10, updated_at = $11
			WHERE id = $1 AND campaign_id = $2`,
			call.ID, c.ID,
			call.Status, call.Outcome, call.DurationSeconds, call.CallSID, call.RoomName,
			call.Error, nullTime(call.CalledAt), nullTime(call.CompletedAt), s.clock().UTC(),
		)
		if err != nil {
			return err
		}
		if err := expectOne(res, store.ErrCallNotFound); err != nil {
			return err
		}
		return s.saveCampaign(ctx, tx, c)
	})
}

func (s *Store) GetCall(ctx context.Context, id string) (calls.CampaignCall, error) {
	c, err := scanCall(s.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM campaign_calls WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return calls.CampaignCall{}, store.ErrCallNotFound
	}
	return c, err
}

func (s *Store) FindCallBySID(ctx context.Context, callSID string) (calls.CampaignCall, error) {
	if callSID == "" {
		return calls.CampaignCall{}, store.ErrCallNotFound
	}
	c, err := scanCall(s.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM campaign_calls WHERE call_sid = $1`, callSID))
	if errors.Is(err, sql.ErrNoRows) {
		return calls.CampaignCall{}, store.ErrCallNotFound
	}
	return c, err
}

func (s *Store) ListCalls(ctx context.Context, campaignID string) ([]calls.CampaignCall, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+callColumns+` FROM campaign_calls WHERE campaign_id = $1 ORDER BY position`, campaignID)
	if err != nil {
		return nil, err
	}
	return collectCalls(rows)
}

func (s *Store) RecentCalls(ctx context.Context, campaignID string, limit int) ([]calls.CampaignCall, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+callColumns+` FROM campaign_calls
		WHERE campaign_id = $1
		ORDER BY called_at DESC NULLS LAST, created_at DESC, position DESC
		LIMIT $2`, campaignID, limit)
	if err != nil {
		return nil, err
	}
	return collectCalls(rows)
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
