package telephony

import (
	"context"
	"errors"
	"testing"
	"time"

	"voiceagents/internal/calls"
)

func TestOutcomes_ResolveBeforeWaitIsNotLost(t *testing.T) {
	o := NewOutcomes()
	p := o.Expect("call-1")

	if res := o.Resolve(Outcome{CallID: "call-1", Raw: calls.RawBusy}); res != Delivered {
		t.Fatalf("expected Delivered, got %v", res)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out, err := p.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if out.Raw != calls.RawBusy || out.ReceivedAt.IsZero() {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestOutcomes_DuplicateAfterDelivery(t *testing.T) {
	o := NewOutcomes()
	o.Expect("call-1")
	o.Resolve(Outcome{CallID: "call-1", Raw: calls.RawNoAnswer})

	if res := o.Resolve(Outcome{CallID: "call-1", Raw: calls.RawNoAnswer}); res != Duplicate {
		t.Fatalf("expected Duplicate, got %v", res)
	}
	if res := o.Resolve(Outcome{CallID: "other"}); res != Unclaimed {
		t.Fatalf("expected Unclaimed, got %v", res)
	}
}

func TestOutcomes_DuplicateWindowExpires(t *testing.T) {
	o := NewOutcomes()
	now := time.Unix(1700000000, 0)
	o.now = func() time.Time { return now }

	o.Expect("call-1")
	o.Resolve(Outcome{CallID: "call-1"})

	now = now.Add(2 * defaultRetain)
	if res := o.Resolve(Outcome{CallID: "call-1"}); res != Unclaimed {
		t.Fatalf("expected Unclaimed after retain window, got %v", res)
	}
}

func TestOutcomes_WaitCancelled(t *testing.T) {
	o := NewOutcomes()
	p := o.Expect("call-1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Wait(ctx); !errors.Is(err, ErrWaitCancelled) {
		t.Fatalf("expected ErrWaitCancelled, got %v", err)
	}
	p.Cancel()
	if o.Waiting() != 0 {
		t.Fatalf("expected registration to be dropped")
	}
}

func TestOutcomes_DeliverRoutesUnclaimedToOrphanHandler(t *testing.T) {
	o := NewOutcomes()
	var got []Outcome
	o.OnOrphan(func(_ context.Context, out Outcome) error {
		got = append(got, out)
		return nil
	})

	res, err := o.Deliver(context.Background(), Outcome{CallID: "late", Raw: calls.RawBusy})
	if err != nil || res != Unclaimed {
		t.Fatalf("expected Unclaimed without error, got %v %v", res, err)
	}
	res, _ = o.Deliver(context.Background(), Outcome{CallID: "late", Raw: calls.RawBusy})
	if res != Duplicate {
		t.Fatalf("expected the repeat to be a Duplicate, got %v", res)
	}
	if len(got) != 1 {
		t.Fatalf("expected one orphan apply, got %d", len(got))
	}
}

func TestOutcomes_OrphanErrorIsReturned(t *testing.T) {
	o := NewOutcomes()
	boom := errors.New("boom")
	o.OnOrphan(func(context.Context, Outcome) error { return boom })

	if _, err := o.Deliver(context.Background(), Outcome{CallID: "x"}); !errors.Is(err, boom) {
		t.Fatalf("expected orphan error, got %v", err)
	}
	if res := o.Resolve(Outcome{CallID: "x"}); res != Unclaimed {
		t.Fatalf("failed orphan apply must not mark the call settled")
	}
}
