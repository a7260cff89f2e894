package telephony

import (
	"context"
	"sync"
	"time"

	"voiceagents/internal/calls"

	"github.com/google/uuid"
)

// Script picks the outcome a simulated call ends with.
type Script func(req DialRequest) (calls.RawOutcome, int)

// SimulatedGateway completes every call locally after Delay. It backs local
// runs without provider credentials and the dialer tests.
type SimulatedGateway struct {
	Outcomes *Outcomes
	Delay    time.Duration
	Script   Script

	mu     sync.Mutex
	placed []DialRequest
}

func NewSimulatedGateway(o *Outcomes, delay time.Duration, script Script) *SimulatedGateway {
	if script == nil {
		script = func(DialRequest) (calls.RawOutcome, int) { return calls.RawAnsweredNotInterested, 30 }
	}
	return &SimulatedGateway{Outcomes: o, Delay: delay, Script: script}
}

func (g *SimulatedGateway) Dispatch(ctx context.Context, req DialRequest) (Handle, error) {
	if err := req.validate(); err != nil {
		return Handle{}, err
	}
	g.mu.Lock()
	g.placed = append(g.placed, req)
	g.mu.Unlock()

	raw, dur := g.Script(req)
	h := Handle{CallSID: "SIM" + uuid.NewString(), RoomName: RoomName(req.CallID)}
	out := Outcome{CallID: req.CallID, CallSID: h.CallSID, Raw: raw, DurationSeconds: dur}
	time.AfterFunc(g.Delay, func() { _, _ = g.Outcomes.Deliver(context.Background(), out) })
	return h, nil
}

// Placed returns every request dispatched so far.
func (g *SimulatedGateway) Placed() []DialRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]DialRequest, len(g.placed))
	copy(out, g.placed)
	return out
}
