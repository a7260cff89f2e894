package campaigns

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"
)

func validPolicy() Policy {
	return Policy{DailyCap: 10, CallingDays: []string{"Monday", "friday"}, StartHour: 9, EndHour: 17, Timezone: "Europe/Berlin"}
}

func TestPolicyValidate_Accepts(t *testing.T) {
	if err := validPolicy().Validate(); err != nil {
		t.Fatalf("expected valid policy, got %v", err)
	}

	allDay := validPolicy()
	allDay.StartHour, allDay.EndHour = 0, 0
	if err := allDay.Validate(); err != nil {
		t.Fatalf("expected 0-0 window to be valid, got %v", err)
	}
	allDay.StartHour, allDay.EndHour = 8, 24
	if err := allDay.Validate(); err != nil {
		t.Fatalf("expected *-24 window to be valid, got %v", err)
	}
}

func TestPolicyValidate_Rejects(t *testing.T) {
	mutations := map[string]func(p *Policy){
		"zero cap":     func(p *Policy) { p.DailyCap = 0 },
		"no days":      func(p *Policy) { p.CallingDays = nil },
		"bad day":      func(p *Policy) { p.CallingDays = []string{"funday"} },
		"hour range":   func(p *Policy) { p.EndHour = 25 },
		"inverted":     func(p *Policy) { p.StartHour, p.EndHour = 18, 9 },
		"bad timezone": func(p *Policy) { p.Timezone = "Mars/Olympus" },
	}
	for name, mutate := range mutations {
		p := validPolicy()
		mutate(&p)
		err := p.Validate()
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if !errors.Is(err, ErrInvalidPolicy) || !errors.Is(err, ErrInvalidState) {
			t.Fatalf("%s: expected invalid policy, got %v", name, err)
		}
	}
}

func TestPolicy_DialsOnIsCaseInsensitive(t *testing.T) {
	p := validPolicy()
	if !p.DialsOn(time.Monday) || !p.DialsOn(time.Friday) {
		t.Fatalf("expected monday and friday")
	}
	if p.DialsOn(time.Sunday) {
		t.Fatalf("did not expect sunday")
	}
}
