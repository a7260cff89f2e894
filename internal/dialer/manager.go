// Package dialer runs outbound campaigns.
//
// Manager owns the campaign state machine and one dispatcher goroutine per
// running campaign. Every write to a campaign row, from an operator command
// or a dispatcher, happens under that campaign's mutex, so commands never
// race a mid-flight dispatch.
package dialer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"voiceagents/internal/audit"
	"voiceagents/internal/calls"
	"voiceagents/internal/campaigns"
	"voiceagents/internal/contacts"
	"voiceagents/internal/metrics"
	"voiceagents/internal/store"
	"voiceagents/internal/telephony"

	"github.com/google/uuid"
)

// ResetZoneCampaign counts daily-cap days in each campaign's own time zone.
const ResetZoneCampaign = "campaign"

type Options struct {
	// ResetZone is ResetZoneCampaign or an IANA zone name.
	ResetZone string
	// StopCompletesCampaign sets the lifecycle status to completed on Stop.
	StopCompletesCampaign bool
	// PhoneRegion is the default region for contact number normalization.
	PhoneRegion string
	// IdleBackoff is the wait after a failed slot acquisition.
	IdleBackoff time.Duration

	Logger *slog.Logger
	Audit  *audit.Service
	Clock  func() time.Time
}

type Manager struct {
	repo     store.Repository
	source   contacts.Source
	gateway  telephony.Gateway
	outcomes *telephony.Outcomes
	slots    Slots

	opts     Options
	resetLoc *time.Location // nil: campaign zone
	log      *slog.Logger

	// base outlives command contexts; it is cancelled by Shutdown.
	base       context.Context
	cancelBase context.CancelFunc

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	runs  map[string]*run
	wg    sync.WaitGroup
}

func NewManager(repo store.Repository, source contacts.Source, gateway telephony.Gateway, outcomes *telephony.Outcomes, slots Slots, opts Options) (*Manager, error) {
	if repo == nil || source == nil || gateway == nil || outcomes == nil || slots == nil {
		return nil, errors.New("dialer: repository, source, gateway, outcomes and slots are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.IdleBackoff <= 0 {
		opts.IdleBackoff = time.Second
	}

	var resetLoc *time.Location
	zone := strings.TrimSpace(opts.ResetZone)
	if zone != "" && !strings.EqualFold(zone, ResetZoneCampaign) {
		loc, err := time.LoadLocation(zone)
		if err != nil {
			return nil, fmt.Errorf("dialer: reset zone: %w", err)
		}
		resetLoc = loc
	}

	base, cancel := context.WithCancel(context.Background())
	m := &Manager{
		repo:       repo,
		source:     source,
		gateway:    gateway,
		outcomes:   outcomes,
		slots:      slots,
		opts:       opts,
		resetLoc:   resetLoc,
		log:        opts.Logger,
		base:       base,
		cancelBase: cancel,
		locks:      map[string]*sync.Mutex{},
		runs:       map[string]*run{},
	}
	outcomes.OnOrphan(m.ApplyOutcome)
	return m, nil
}

// lock takes the campaign's write mutex and returns its unlock.
func (m *Manager) lock(id string) func() {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (m *Manager) currentRun(id string) *run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id]
}

// resetLocation is the zone daily-cap days are counted in for c.
func (m *Manager) resetLocation(c campaigns.Campaign) *time.Location {
	if m.resetLoc != nil {
		return m.resetLoc
	}
	loc, err := c.Location()
	if err != nil {
		return time.UTC
	}
	return loc
}

// Start begins or restarts dialing. The queue is materialized from the
// contact source on the first Start only.
func (m *Manager) Start(ctx context.Context, id string) (campaigns.Campaign, error) {
	unlock := m.lock(id)
	defer unlock()

	c, err := m.repo.GetCampaign(ctx, id)
	if err != nil {
		return campaigns.Campaign{}, err
	}
	from := c.ExecutionStatus
	next, err := campaigns.Next(from, campaigns.CommandStart)
	if err != nil {
		return c, err
	}
	if r := m.currentRun(id); r != nil {
		return c, &campaigns.TransitionError{From: from, Command: campaigns.CommandStart}
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	if _, err := c.Location(); err != nil {
		return c, err
	}
	c.CallingDays = campaigns.NormalizeDays(c.CallingDays)

	now := m.opts.Clock().UTC()
	c.ExecutionStatus = next
	c.Status = campaigns.LifecycleAfter(c.Status, campaigns.CommandStart, m.opts.StopCompletesCampaign)
	c.LastError = ""
	c.NextCallAt = nil
	c.UpdatedAt = now

	if !c.Materialized() {
		rows, err := m.buildQueue(ctx, c, now)
		if err != nil {
			return c, err
		}
		if len(rows) == 0 {
			return c, campaigns.ErrEmptyQueue
		}
		c.QueueMaterializedAt = &now
		if err := m.repo.Materialize(ctx, c, rows); err != nil {
			return c, fmt.Errorf("materialize queue: %w", err)
		}
	} else {
		pending, err := m.repo.CountPending(ctx, id)
		if err != nil {
			return c, err
		}
		if pending == 0 {
			return c, campaigns.ErrEmptyQueue
		}
		if err := m.repo.SaveCampaign(ctx, c); err != nil {
			return c, err
		}
	}

	m.spawn(c)
	m.recordCommand(ctx, c, campaigns.CommandStart, from)
	return c, nil
}

func (m *Manager) buildQueue(ctx context.Context, c campaigns.Campaign, now time.Time) ([]calls.CampaignCall, error) {
	list, err := m.source.Contacts(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("load contacts: %w", err)
	}
	list = contacts.Prepare(list, m.opts.PhoneRegion)
	rows := make([]calls.CampaignCall, 0, len(list))
	for _, ct := range list {
		rows = append(rows, calls.CampaignCall{
			ID:           uuid.NewString(),
			CampaignID:   c.ID,
			ContactName:  ct.Name,
			ContactPhone: ct.Phone,
			ContactEmail: ct.Email,
			DoNotCall:    ct.DoNotCall,
			Status:       calls.StatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return rows, nil
}

// Pause stops new dispatches. The in-flight call, if any, finishes and is
// recorded first; the dispatcher then writes paused. Pause waits for that
// until ctx is done and reports whether it happened.
func (m *Manager) Pause(ctx context.Context, id string) (bool, error) {
	unlock := m.lock(id)
	c, err := m.repo.GetCampaign(ctx, id)
	if err != nil {
		unlock()
		return false, err
	}
	if _, err := campaigns.Next(c.ExecutionStatus, campaigns.CommandPause); err != nil {
		unlock()
		return false, err
	}

	r := m.currentRun(id)
	if r == nil {
		// No live dispatcher (e.g. not restored yet): quiesced already.
		err := m.quiesce(ctx, c)
		unlock()
		return err == nil, err
	}
	r.requestPause()
	unlock()
	m.recordCommand(ctx, c, campaigns.CommandPause, c.ExecutionStatus)

	select {
	case <-r.done:
	case <-ctx.Done():
		return false, nil
	}
	// The loop may also have ended by exhausting the queue or by a fault.
	c, err = m.repo.GetCampaign(context.WithoutCancel(ctx), id)
	if err != nil {
		return false, err
	}
	return c.ExecutionStatus == campaigns.ExecutionPaused, nil
}

// quiesce writes paused. Caller holds the campaign lock.
func (m *Manager) quiesce(ctx context.Context, c campaigns.Campaign) error {
	next, err := campaigns.Next(c.ExecutionStatus, campaigns.EventQuiesced)
	if err != nil {
		return err
	}
	from := c.ExecutionStatus
	c.ExecutionStatus = next
	c.Status = campaigns.LifecycleAfter(c.Status, campaigns.EventQuiesced, m.opts.StopCompletesCampaign)
	c.NextCallAt = nil
	c.UpdatedAt = m.opts.Clock().UTC()
	if err := m.repo.SaveCampaign(ctx, c); err != nil {
		return err
	}
	m.recordExecution(ctx, c, campaigns.EventQuiesced, from)
	return nil
}

// Resume continues a paused campaign from its next pending call.
func (m *Manager) Resume(ctx context.Context, id string) error {
	unlock := m.lock(id)
	defer unlock()

	c, err := m.repo.GetCampaign(ctx, id)
	if err != nil {
		return err
	}
	from := c.ExecutionStatus
	next, err := campaigns.Next(from, campaigns.CommandResume)
	if err != nil {
		return err
	}
	if m.currentRun(id) != nil {
		return &campaigns.TransitionError{From: from, Command: campaigns.CommandResume}
	}
	c.ExecutionStatus = next
	c.Status = campaigns.LifecycleAfter(c.Status, campaigns.CommandResume, m.opts.StopCompletesCampaign)
	c.UpdatedAt = m.opts.Clock().UTC()
	if err := m.repo.SaveCampaign(ctx, c); err != nil {
		return err
	}
	m.spawn(c)
	m.recordCommand(ctx, c, campaigns.CommandResume, from)
	return nil
}

// Stop ends the campaign. It does not wait for, or interrupt, an in-flight
// call; that call's outcome is still recorded. Stop on an idle or completed
// campaign does nothing.
func (m *Manager) Stop(ctx context.Context, id string) error {
	unlock := m.lock(id)
	defer unlock()

	c, err := m.repo.GetCampaign(ctx, id)
	if err != nil {
		return err
	}
	from := c.ExecutionStatus
	next, err := campaigns.Next(from, campaigns.CommandStop)
	if err != nil {
		return err
	}
	if next == from {
		return nil
	}
	c.ExecutionStatus = next
	c.Status = campaigns.LifecycleAfter(c.Status, campaigns.CommandStop, m.opts.StopCompletesCampaign)
	c.NextCallAt = nil
	c.UpdatedAt = m.opts.Clock().UTC()
	if err := m.repo.SaveCampaign(ctx, c); err != nil {
		return err
	}
	if r := m.currentRun(id); r != nil {
		r.requestStop()
	}
	m.recordCommand(ctx, c, campaigns.CommandStop, from)
	return nil
}

// Restore starts a dispatcher for every campaign persisted as running.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	running, err := m.repo.ListCampaignsByExecution(ctx, campaigns.ExecutionRunning)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range running {
		unlock := m.lock(c.ID)
		if m.currentRun(c.ID) == nil {
			m.spawn(c)
			n++
		}
		unlock()
	}
	return n, nil
}

// ApplyOutcome records an outcome for a call still in calling. Outcomes for
// calls already terminal are ignored. It serves callbacks no dispatcher is
// waiting for.
func (m *Manager) ApplyOutcome(ctx context.Context, out telephony.Outcome) error {
	call, err := m.repo.GetCall(ctx, out.CallID)
	if err != nil {
		return err
	}
	unlock := m.lock(call.CampaignID)
	defer unlock()
	_, err = m.recordOutcome(ctx, out)
	return err
}

// recordOutcome classifies out and writes call and counters together.
// Caller holds the campaign lock. applied is false for calls no longer calling.
func (m *Manager) recordOutcome(ctx context.Context, out telephony.Outcome) (applied bool, err error) {
	call, err := m.repo.GetCall(ctx, out.CallID)
	if err != nil {
		return false, err
	}
	if call.Status != calls.StatusCalling {
		return false, nil
	}
	c, err := m.repo.GetCampaign(ctx, call.CampaignID)
	if err != nil {
		return false, err
	}

	now := m.opts.Clock().UTC()
	cl := calls.Classify(out.Raw)
	cl.Apply(&call, &c.Counters, out.DurationSeconds, now)
	if call.CallSID == "" {
		call.CallSID = out.CallSID
	}
	c.LastExecutionAt = &now
	c.UpdatedAt = now
	if err := m.repo.SaveCall(ctx, c, call); err != nil {
		return false, err
	}
	metrics.CallOutcome(string(call.Status), string(call.Outcome))
	return true, nil
}

// Shutdown halts every dispatcher without changing persisted status, so
// Restore resumes them on the next start. Waits for in-flight outcomes
// until ctx is done, then abandons them.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, r := range m.runs {
		r.requestShutdown()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.cancelBase()
		return nil
	case <-ctx.Done():
		m.cancelBase()
		<-done
		return ctx.Err()
	}
}

// Running reports whether a dispatcher is alive for id.
func (m *Manager) Running(id string) bool { return m.currentRun(id) != nil }

func (m *Manager) recordCommand(ctx context.Context, c campaigns.Campaign, cmd campaigns.Command, from campaigns.ExecutionStatus) {
	m.log.Info("campaign command", "campaign_id", c.ID, "command", cmd, "from", from, "to", c.ExecutionStatus)
	if m.opts.Audit != nil {
		m.opts.Audit.RecordCommand(ctx, audit.ActorFrom(ctx), c.WorkspaceID, c.ID, string(cmd), string(from), string(c.ExecutionStatus))
	}
}

func (m *Manager) recordExecution(ctx context.Context, c campaigns.Campaign, ev campaigns.Command, from campaigns.ExecutionStatus) {
	m.log.Info("campaign execution change", "campaign_id", c.ID, "event", ev, "from", from, "to", c.ExecutionStatus)
	if m.opts.Audit != nil {
		m.opts.Audit.RecordExecution(ctx, c.WorkspaceID, c.ID, string(ev), string(from), string(c.ExecutionStatus))
	}
}
