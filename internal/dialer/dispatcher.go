package dialer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"voiceagents/internal/calls"
	"voiceagents/internal/campaigns"
	"voiceagents/internal/metrics"
	"voiceagents/internal/quota"
	"voiceagents/internal/telephony"
)

// run is the control block of one dispatcher goroutine.
type run struct {
	campaignID string

	// halt is cancelled by pause, stop and shutdown. It interrupts slot
	// waits and window sleeps, never a dispatch or an outcome wait.
	halt       context.Context
	cancelHalt context.CancelFunc

	pause atomic.Bool
	stop  atomic.Bool

	// inFlight is set from mark-calling until the call's outcome is written.
	inFlight atomic.Bool

	done     chan struct{}
	doneOnce sync.Once
}

func (r *run) requestPause() { r.pause.Store(true); r.cancelHalt() }
func (r *run) requestStop() { r.stop.Store(true); r.cancelHalt() }
func (r *run) requestShutdown() { r.cancelHalt() }
func (r *run) halted() bool { return r.halt.Err() != nil }

// spawn starts the dispatcher for c. Caller holds the campaign lock.
func (m *Manager) spawn(c campaigns.Campaign) {
	halt, cancel := context.WithCancel(m.base)
	r := &run{campaignID: c.ID, halt: halt, cancelHalt: cancel, done: make(chan struct{})}

	m.mu.Lock()
	m.runs[c.ID] = r
	m.mu.Unlock()

	m.wg.Add(1)
	metrics.DispatcherStarted()
	go func() {
		defer m.wg.Done()
		defer metrics.DispatcherStopped()
		m.dispatch(r)
	}()
}

// dispatch is the per-campaign dialing loop.
func (m *Manager) dispatch(r *run) {
	log := m.log.With("campaign_id", r.campaignID)
	log.Info("dispatcher started")
	defer m.finish(r, log)

	for !r.halted() {
		call, wait, ok := m.nextCall(r, log)
		if !ok {
			return
		}
		if wait > 0 {
			m.sleep(r, wait)
			continue
		}
		if call.ID == "" {
			continue
		}
		if !m.place(r, call, log) {
			return
		}
	}
}

// nextCall decides the next step under the campaign lock. It returns the
// call to place, or a wait when dialing is not allowed now. ok is false when
// the loop must exit.
func (m *Manager) nextCall(r *run, log *slog.Logger) (call calls.CampaignCall, wait time.Duration, ok bool) {
	ctx := m.base
	unlock := m.lock(r.campaignID)
	defer unlock()

	if r.halted() {
		return call, 0, false
	}
	c, err := m.repo.GetCampaign(ctx, r.campaignID)
	if err != nil {
		log.Error("dispatcher load campaign failed", "err", err)
		return call, m.opts.IdleBackoff, true
	}
	if c.ExecutionStatus != campaigns.ExecutionRunning {
		return call, 0, false
	}

	now := m.opts.Clock()
	dec := quota.Evaluate(c, now, m.resetLocation(c))
	if !dec.Allowed {
		if dec.NextAt.IsZero() {
			m.fault(ctx, c, calls.CampaignCall{}, errors.New("dialer: no calling window within a week: "+string(dec.Reason)), log)
			return call, 0, false
		}
		next := dec.NextAt.UTC()
		c.NextCallAt = &next
		c.UpdatedAt = now.UTC()
		if err := m.repo.SaveCampaign(ctx, c); err != nil {
			log.Error("persist next_call_at failed", "err", err)
		}
		log.Debug("dialing window closed", "reason", dec.Reason, "next_call_at", next)
		return call, dec.NextAt.Sub(now), true
	}

	call, found, err := m.repo.NextPending(ctx, c.ID)
	if err != nil {
		log.Error("dispatcher pop failed", "err", err)
		return calls.CampaignCall{}, m.opts.IdleBackoff, true
	}
	if !found {
		m.exhaust(ctx, c, log)
		return call, 0, false
	}

	if call.DoNotCall {
		ts := now.UTC()
		call.Status = calls.StatusDoNotCall
		call.CompletedAt = &ts
		call.UpdatedAt = ts
		c.TotalCallsMade++
		c.DoNotCall++
		c.UpdatedAt = ts
		if err := m.repo.SaveCall(ctx, c, call); err != nil {
			log.Error("skip do-not-call failed", "call_id", call.ID, "err", err)
			return calls.CampaignCall{}, m.opts.IdleBackoff, true
		}
		metrics.CallOutcome(string(calls.StatusDoNotCall), "")
		log.Debug("do-not-call contact skipped", "call_id", call.ID)
		return calls.CampaignCall{}, 0, true
	}
	return call, 0, true
}

// place acquires a slot, dispatches call and records its outcome. It
// returns false when the loop must exit.
func (m *Manager) place(r *run, call calls.CampaignCall, log *slog.Logger) bool {
	log = log.With("call_id", call.ID)

	if err := m.slots.Acquire(r.halt, call.ID); err != nil {
		if r.halted() {
			return false
		}
		log.Warn("slot acquire failed", "err", err)
		m.sleep(r, m.opts.IdleBackoff)
		return true
	}
	released := false
	release := func() {
		if !released {
			released = true
			m.slots.Release(call.ID)
			metrics.CallFinished()
		}
	}
	metrics.CallStarted()
	defer release()

	c, call, ok := m.markCalling(r, call.ID, log)
	if !ok {
		return !r.halted()
	}
	r.inFlight.Store(true)

	req := telephony.DialRequest{
		CallID:      call.ID,
		CampaignID:  c.ID,
		WorkspaceID: c.WorkspaceID,
		AssistantID: c.AssistantID,
		To:          call.ContactPhone,
		ContactName: call.ContactName,
		Prompt:      RenderPrompt(c.Prompt, call, c),
	}

	pending := m.outcomes.Expect(call.ID)
	h, err := m.gateway.Dispatch(m.base, req)
	if err != nil {
		metrics.DispatchFault()
		log.Warn("dispatch failed, retrying", "err", err)
		h, err = m.gateway.Dispatch(m.base, req)
	}
	if err != nil {
		metrics.DispatchFault()
		pending.Cancel()
		unlock := m.lock(c.ID)
		fresh, gerr := m.repo.GetCampaign(m.base, c.ID)
		if gerr != nil {
			fresh = c
		}
		m.fault(m.base, fresh, call, err, log)
		r.inFlight.Store(false)
		unlock()
		return false
	}
	metrics.CallDialed()
	m.saveHandle(call.ID, c.ID, h, log)
	log.Info("call dispatched", "call_sid", h.CallSID)

	out, err := pending.Wait(m.base)
	if err != nil {
		// Shutting down: the call stays calling and its late callback is
		// applied as an orphan.
		return false
	}
	return m.settle(r, c, call, out, log)
}

// outcomeWriteAttempts bounds the writes of one outcome before the campaign
// is faulted.
const outcomeWriteAttempts = 3

// settle records out, retrying store failures after IdleBackoff. When every
// attempt fails the call is failed and the campaign moves to error. It
// returns false when the loop must exit.
func (m *Manager) settle(r *run, c campaigns.Campaign, call calls.CampaignCall, out telephony.Outcome, log *slog.Logger) bool {
	var err error
	for attempt := 1; attempt <= outcomeWriteAttempts; attempt++ {
		if attempt > 1 && !sleepCtx(m.base, m.opts.IdleBackoff) {
			return false
		}
		unlock := m.lock(c.ID)
		var applied bool
		applied, err = m.recordOutcome(m.base, out)
		unlock()
		if err == nil {
			r.inFlight.Store(false)
			if applied {
				log.Info("call completed", "outcome", out.Raw, "duration", out.DurationSeconds)
			}
			return true
		}
		log.Warn("record outcome failed", "attempt", attempt, "err", err)
	}
	if m.base.Err() != nil {
		return false
	}

	unlock := m.lock(c.ID)
	defer unlock()
	if fresh, gerr := m.repo.GetCampaign(m.base, c.ID); gerr == nil {
		c = fresh
	}
	if fresh, gerr := m.repo.GetCall(m.base, call.ID); gerr == nil {
		if fresh.Status != calls.StatusCalling {
			r.inFlight.Store(false)
			return true
		}
		call = fresh
	}
	m.fault(m.base, c, call, fmt.Errorf("record outcome %s: %w", out.Raw, err), log)
	r.inFlight.Store(false)
	return false
}

// markCalling re-checks the window and moves the call to calling, counting
// the dial. ok is false when the call must not be placed now.
func (m *Manager) markCalling(r *run, callID string, log *slog.Logger) (campaigns.Campaign, calls.CampaignCall, bool) {
	ctx := m.base
	unlock := m.lock(r.campaignID)
	defer unlock()

	if r.halted() {
		return campaigns.Campaign{}, calls.CampaignCall{}, false
	}
	c, err := m.repo.GetCampaign(ctx, r.campaignID)
	if err != nil || c.ExecutionStatus != campaigns.ExecutionRunning {
		return campaigns.Campaign{}, calls.CampaignCall{}, false
	}
	call, err := m.repo.GetCall(ctx, callID)
	if err != nil || call.Status != calls.StatusPending {
		return campaigns.Campaign{}, calls.CampaignCall{}, false
	}

	now := m.opts.Clock()
	resetLoc := m.resetLocation(c)
	if !quota.CanDialNow(c, now, resetLoc) {
		return campaigns.Campaign{}, calls.CampaignCall{}, false
	}

	ts := now.UTC()
	quota.ApplyDailyReset(&c, now, resetLoc)
	c.CurrentDailyCalls++
	c.TotalCallsMade++
	c.Dials++
	c.NextCallAt = nil
	c.UpdatedAt = ts
	call.Status = calls.StatusCalling
	call.CalledAt = &ts
	call.UpdatedAt = ts
	if err := m.repo.SaveCall(ctx, c, call); err != nil {
		log.Error("mark calling failed", "err", err)
		return campaigns.Campaign{}, calls.CampaignCall{}, false
	}
	return c, call, true
}

func (m *Manager) saveHandle(callID, campaignID string, h telephony.Handle, log *slog.Logger) {
	unlock := m.lock(campaignID)
	defer unlock()
	call, err := m.repo.GetCall(m.base, callID)
	if err != nil || call.Status != calls.StatusCalling {
		return
	}
	c, err := m.repo.GetCampaign(m.base, campaignID)
	if err != nil {
		return
	}
	call.CallSID = h.CallSID
	call.RoomName = h.RoomName
	if err := m.repo.SaveCall(m.base, c, call); err != nil {
		log.Error("save call handle failed", "err", err)
	}
}

// fault fails call (when set) and moves a running campaign to error.
// Caller holds the campaign lock.
func (m *Manager) fault(ctx context.Context, c campaigns.Campaign, call calls.CampaignCall, cause error, log *slog.Logger) {
	now := m.opts.Clock().UTC()
	from := c.ExecutionStatus
	if next, err := campaigns.Next(from, campaigns.EventFault); err == nil {
		c.ExecutionStatus = next
		c.Status = campaigns.LifecycleAfter(c.Status, campaigns.EventFault, m.opts.StopCompletesCampaign)
	}
	c.LastError = cause.Error()
	c.NextCallAt = nil
	c.UpdatedAt = now

	var err error
	if call.ID != "" {
		call.Status = calls.StatusFailed
		call.Error = cause.Error()
		call.CompletedAt = &now
		call.UpdatedAt = now
		err = m.repo.SaveCall(ctx, c, call)
		metrics.CallOutcome(string(calls.StatusFailed), "")
	} else {
		err = m.repo.SaveCampaign(ctx, c)
	}
	if err != nil {
		log.Error("persist dispatch fault failed", "err", err)
	}
	log.Error("campaign halted by dispatch fault", "call_id", call.ID, "err", cause)
	if m.opts.Audit != nil {
		m.opts.Audit.RecordDispatchFault(ctx, c.WorkspaceID, c.ID, call.ID, cause)
	}
}

// exhaust completes a campaign whose queue has no pending call left.
// Caller holds the campaign lock.
func (m *Manager) exhaust(ctx context.Context, c campaigns.Campaign, log *slog.Logger) {
	from := c.ExecutionStatus
	next, err := campaigns.Next(from, campaigns.EventExhausted)
	if err != nil {
		return
	}
	c.ExecutionStatus = next
	c.Status = campaigns.LifecycleAfter(c.Status, campaigns.EventExhausted, m.opts.StopCompletesCampaign)
	c.NextCallAt = nil
	c.UpdatedAt = m.opts.Clock().UTC()
	if err := m.repo.SaveCampaign(ctx, c); err != nil {
		log.Error("persist completion failed", "err", err)
		return
	}
	m.recordExecution(ctx, c, campaigns.EventExhausted, from)
}

// sleep waits d or until the run is halted.
func (m *Manager) sleep(r *run, d time.Duration) {
	if d > 0 {
		sleepCtx(r.halt, d)
	}
}

// sleepCtx waits d or until ctx is done. It reports whether d elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish writes paused when a pause was requested and no call is left
// unresolved, then unregisters r. A call abandoned by Shutdown keeps the
// campaign running so Restore picks it up.
func (m *Manager) finish(r *run, log *slog.Logger) {
	unlock := m.lock(r.campaignID)
	defer unlock()

	if r.pause.Load() && !r.stop.Load() && !r.inFlight.Load() {
		ctx := context.WithoutCancel(m.base)
		c, err := m.repo.GetCampaign(ctx, r.campaignID)
		if err == nil && c.ExecutionStatus == campaigns.ExecutionRunning {
			if err := m.quiesce(ctx, c); err != nil {
				log.Error("persist pause failed", "err", err)
			}
		}
	}

	m.mu.Lock()
	if m.runs[r.campaignID] == r {
		delete(m.runs, r.campaignID)
	}
	m.mu.Unlock()
	r.cancelHalt()
	r.doneOnce.Do(func() { close(r.done) })
	log.Info("dispatcher stopped")
}
