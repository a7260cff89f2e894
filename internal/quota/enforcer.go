// Package quota decides whether a campaign may place a call at a given instant.
//
// Every function here is pure: no I/O, no clock reads. The dialer passes in
// the current time and the zone in which calendar days are counted for the
// daily cap.
package quota

import (
	"time"

	"voiceagents/internal/campaigns"
)

// Reason explains why dialing is not allowed right now.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonInvalidCap   Reason = "invalid_daily_cap"
	ReasonCapReached   Reason = "daily_cap_reached"
	ReasonDayClosed    Reason = "not_a_calling_day"
	ReasonOutsideHours Reason = "outside_calling_hours"
)

// searchHorizon bounds the NextAt lookup; any valid policy has an eligible
// hour within a week of the next reset.
const searchHorizon = 8 * 24

// Decision is the result of Evaluate.
type Decision struct {
	Allowed bool
	Reason  Reason
	// NextAt is the earliest eligible instant when Allowed is false.
	// Zero when no instant exists within the search horizon.
	NextAt time.Time
}

// DayKey returns the calendar day of t in loc as YYYY-MM-DD.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// EffectiveDailyCalls is CurrentDailyCalls after the daily reset rule.
func EffectiveDailyCalls(c campaigns.Campaign, now time.Time, resetLoc *time.Location) int {
	if c.DailyCallsDay != DayKey(now, resetLoc) {
		return 0
	}
	return c.CurrentDailyCalls
}

// ApplyDailyReset zeroes CurrentDailyCalls on the first dial of a new day
// and stamps the day the counter now belongs to.
func ApplyDailyReset(c *campaigns.Campaign, now time.Time, resetLoc *time.Location) {
	day := DayKey(now, resetLoc)
	if c.DailyCallsDay != day {
		c.CurrentDailyCalls = 0
		c.DailyCallsDay = day
	}
}

// InWindow reports whether t falls on a calling day and inside calling hours.
func InWindow(p campaigns.Policy, t time.Time, loc *time.Location) bool {
	local := t.In(loc)
	if !p.DialsOn(local.Weekday()) {
		return false
	}
	if p.AllDay() {
		return true
	}
	h := local.Hour()
	return p.StartHour <= h && h < p.EndHour
}

// CanDialNow reports whether c may dial at now.
func CanDialNow(c campaigns.Campaign, now time.Time, resetLoc *time.Location) bool {
	return Evaluate(c, now, resetLoc).Allowed
}

// Evaluate applies the cap, day and hour checks in that order.
// resetLoc nil means the campaign's own zone.
func Evaluate(c campaigns.Campaign, now time.Time, resetLoc *time.Location) Decision {
	loc, err := c.Location()
	if err != nil {
		loc = time.UTC
	}
	if resetLoc == nil {
		resetLoc = loc
	}
	if c.DailyCap <= 0 {
		return Decision{Reason: ReasonInvalidCap}
	}

	if EffectiveDailyCalls(c, now, resetLoc) >= c.DailyCap {
		return Decision{Reason: ReasonCapReached, NextAt: nextWindow(c.Policy, startOfNextDay(now, resetLoc), loc)}
	}
	if !c.DialsOn(now.In(loc).Weekday()) {
		return Decision{Reason: ReasonDayClosed, NextAt: nextWindow(c.Policy, now, loc)}
	}
	if !InWindow(c.Policy, now, loc) {
		return Decision{Reason: ReasonOutsideHours, NextAt: nextWindow(c.Policy, now, loc)}
	}
	return Decision{Allowed: true}
}

// nextWindow finds the first instant >= from inside the calling window,
// checking from itself and then every local top of hour after it.
func nextWindow(p campaigns.Policy, from time.Time, loc *time.Location) time.Time {
	if InWindow(p, from, loc) {
		return from
	}
	local := from.In(loc)
	hour := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)
	for i := 1; i <= searchHorizon; i++ {
		t := hour.Add(time.Duration(i) * time.Hour)
		if InWindow(p, t, loc) {
			return t
		}
	}
	return time.Time{}
}

func startOfNextDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}
