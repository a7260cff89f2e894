package telephony

import (
	"context"
	"errors"
	"sync"
	"time"

	"voiceagents/internal/calls"
)

// Outcome is the completion signal of a placed call.
type Outcome struct {
	CallID          string           `json:"call_id"`
	CallSID         string           `json:"call_sid,omitempty"`
	Raw             calls.RawOutcome `json:"outcome"`
	DurationSeconds int              `json:"duration"`
	ReceivedAt      time.Time        `json:"received_at"`
}

// Resolution tells what Resolve did with an outcome.
type Resolution int

const (
	// Unclaimed: nobody is waiting for the call.
	Unclaimed Resolution = iota
	// Delivered to the waiting dispatcher.
	Delivered
	// Duplicate of an outcome already delivered.
	Duplicate
)

func (r Resolution) String() string {
	switch r {
	case Delivered:
		return "delivered"
	case Duplicate:
		return "duplicate"
	default:
		return "unclaimed"
	}
}

// OrphanHandler applies an outcome no dispatcher is waiting for, for example
// one that arrives after a restart.
type OrphanHandler func(ctx context.Context, out Outcome) error

var ErrWaitCancelled = errors.New("telephony: outcome wait cancelled")

const defaultRetain = time.Hour

// Outcomes routes provider callbacks to dispatchers.
//
// A dispatcher calls Expect before Dispatch, so a callback that races the
// Dispatch response still finds its waiter. Each call id is delivered at most
// once; repeats within the retain window report Duplicate.
type Outcomes struct {
	mu      sync.Mutex
	waiting map[string]chan Outcome
	settled map[string]time.Time
	orphan  OrphanHandler
	retain  time.Duration
	now     func() time.Time
}

func NewOutcomes() *Outcomes {
	return &Outcomes{
		waiting: map[string]chan Outcome{},
		settled: map[string]time.Time{},
		retain:  defaultRetain,
		now:     time.Now,
	}
}

// OnOrphan sets the handler used by Deliver for unclaimed outcomes.
func (o *Outcomes) OnOrphan(h OrphanHandler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.orphan = h
}

// Pending is a registered wait for one call's outcome.
type Pending struct {
	callID string
	ch     chan Outcome
	o      *Outcomes
}

// Expect registers interest in callID. Expecting an id that is already
// waited on replaces the earlier registration.
func (o *Outcomes) Expect(callID string) *Pending {
	o.mu.Lock()
	defer o.mu.Unlock()
	ch := make(chan Outcome, 1)
	o.waiting[callID] = ch
	delete(o.settled, callID)
	return &Pending{callID: callID, ch: ch, o: o}
}

// Wait blocks until the outcome arrives or ctx is done.
func (p *Pending) Wait(ctx context.Context) (Outcome, error) {
	select {
	case out := <-p.ch:
		return out, nil
	case <-ctx.Done():
		return Outcome{}, ErrWaitCancelled
	}
}

// Cancel drops the registration if it is still current.
func (p *Pending) Cancel() {
	p.o.mu.Lock()
	defer p.o.mu.Unlock()
	if cur, ok := p.o.waiting[p.callID]; ok && cur == p.ch {
		delete(p.o.waiting, p.callID)
	}
}

// Waiting reports the number of registered waits.
func (o *Outcomes) Waiting() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.waiting)
}

// Resolve hands out to its waiter, if any.
func (o *Outcomes) Resolve(out Outcome) Resolution {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.now()
	o.pruneLocked(now)
	if out.ReceivedAt.IsZero() {
		out.ReceivedAt = now
	}

	if ch, ok := o.waiting[out.CallID]; ok {
		delete(o.waiting, out.CallID)
		o.settled[out.CallID] = now
		ch <- out
		return Delivered
	}
	if _, ok := o.settled[out.CallID]; ok {
		return Duplicate
	}
	return Unclaimed
}

// Deliver resolves out and passes unclaimed outcomes to the orphan handler.
func (o *Outcomes) Deliver(ctx context.Context, out Outcome) (Resolution, error) {
	res := o.Resolve(out)
	if res != Unclaimed {
		return res, nil
	}
	o.mu.Lock()
	h := o.orphan
	o.mu.Unlock()
	if h == nil {
		return res, nil
	}
	if err := h(ctx, out); err != nil {
		return res, err
	}
	o.mu.Lock()
	o.settled[out.CallID] = o.now()
	o.mu.Unlock()
	return res, nil
}

func (o *Outcomes) pruneLocked(now time.Time) {
	for id, at := range o.settled {
		if now.Sub(at) > o.retain {
			delete(o.settled, id)
		}
	}
}
