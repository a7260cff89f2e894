package campaigns

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Policy is the dialing policy of a campaign.
//
// Hours are whole local hours in Timezone. StartHour == EndHour == 0, or
// EndHour == 24, means the campaign may dial at any hour of a calling day.
type Policy struct {
	DailyCap    int      `json:"daily_cap" db:"daily_cap" validate:"gt=0"`
	CallingDays []string `json:"calling_days" db:"calling_days" validate:"min=1,dive,oneof=monday tuesday wednesday thursday friday saturday sunday"`
	StartHour   int      `json:"start_hour" db:"start_hour" validate:"gte=0,lte=24"`
	EndHour     int      `json:"end_hour" db:"end_hour" validate:"gte=0,lte=24"`
	Timezone    string   `json:"timezone,omitempty" db:"timezone" validate:"omitempty,timezone"`

	// Prompt is rendered per contact before dispatch; placeholders use {name}.
	Prompt string `json:"campaign_prompt" db:"campaign_prompt"`
}

var validate = validator.New()

// Validate checks that the policy can be executed by the dialer.
func (p Policy) Validate() error {
	p.CallingDays = NormalizeDays(p.CallingDays)
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &PolicyError{Field: fe.Field(), Reason: "failed " + fe.Tag()}
		}
		return &PolicyError{Field: "policy", Reason: err.Error()}
	}
	if !p.AllDay() && p.StartHour >= p.EndHour {
		return &PolicyError{Field: "StartHour", Reason: "must be before EndHour"}
	}
	return nil
}

// AllDay reports whether the hour check is disabled.
func (p Policy) AllDay() bool {
	return (p.StartHour == 0 && p.EndHour == 0) || p.EndHour == 24
}

// Location resolves the campaign time zone. Empty means UTC.
func (p Policy) Location() (*time.Location, error) {
	if strings.TrimSpace(p.Timezone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, &PolicyError{Field: "Timezone", Reason: err.Error()}
	}
	return loc, nil
}

// DialsOn reports whether d is one of the calling days.
func (p Policy) DialsOn(d time.Weekday) bool {
	want := strings.ToLower(d.String())
	for _, day := range p.CallingDays {
		if strings.ToLower(strings.TrimSpace(day)) == want {
			return true
		}
	}
	return false
}

// NormalizeDays lower-cases and trims weekday names.
func NormalizeDays(days []string) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, strings.ToLower(strings.TrimSpace(d)))
	}
	return out
}
