// Package booking decides whether a proposed reservation may be created and
// carries it into the store.
package booking

import (
	"time"
)

// Reason tags a business-rule rejection.
type Reason string

const (
	ReasonMissingTimestamp       Reason = "missing_timestamp"
	ReasonPastTimestamp          Reason = "past_timestamp"
	ReasonTooFarInFuture         Reason = "too_far_in_future"
	ReasonOutsideBusinessHours   Reason = "outside_business_hours"
	ReasonWeekendNotServed       Reason = "weekend_not_served"
	ReasonInvalidSlotGranularity Reason = "invalid_slot_granularity"
	ReasonSlotUnavailable        Reason = "slot_unavailable"
	ReasonServiceInactive        Reason = "service_inactive"
)

// Rejection is a user-correctable refusal of a booking attempt. It is a value
// returned to the caller, distinct from infrastructure failures.
type Rejection struct {
	Reason  Reason
	Message string
}

func (r *Rejection) Error() string { return r.Message }

var (
	ErrMissingTimestamp       = &Rejection{ReasonMissingTimestamp, "date and time are required"}
	ErrPastTimestamp          = &Rejection{ReasonPastTimestamp, "cannot book in the past"}
	ErrTooFarInFuture         = &Rejection{ReasonTooFarInFuture, "cannot book more than 30 days in advance"}
	ErrOutsideBusinessHours   = &Rejection{ReasonOutsideBusinessHours, "business hours are 8:00 AM to 6:00 PM"}
	ErrWeekendNotServed       = &Rejection{ReasonWeekendNotServed, "no service on weekends"}
	ErrInvalidSlotGranularity = &Rejection{ReasonInvalidSlotGranularity, "reservations must be on 30-minute intervals"}
	ErrSlotUnavailable        = &Rejection{ReasonSlotUnavailable, "the selected slot is not available"}
	ErrServiceInactive        = &Rejection{ReasonServiceInactive, "service is not available for booking"}
)

// AsRejection unwraps err into a Rejection, if it is one.
func AsRejection(err error) (*Rejection, bool) {
	r, ok := err.(*Rejection)
	return r, ok
}

// Clock supplies the current instant. Injected so rule evaluation is a pure
// function of (timestamp, now) in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// Rules holds the business-hour parameters for validation.
type Rules struct {
	Grace       time.Duration // tolerated lateness of the timestamp
	MaxAdvance  time.Duration // booking horizon
	OpenHour    int
	CloseHour   int
	SlotMinutes int
	Location    *time.Location
}

// DefaultRules returns the operating defaults: 5-minute grace, 30-day
// horizon, 8:00-18:00, 30-minute slots.
func DefaultRules() Rules {
	return Rules{
		Grace:       5 * time.Minute,
		MaxAdvance:  30 * 24 * time.Hour,
		OpenHour:    8,
		CloseHour:   18,
		SlotMinutes: 30,
		Location:    time.Local,
	}
}

// Validator applies the booking business rules to candidate timestamps.
type Validator struct {
	rules Rules
	clock Clock
}

// NewValidator creates a validator; a nil clock means the wall clock.
func NewValidator(rules Rules, clock Clock) *Validator {
	if clock == nil {
		clock = SystemClock()
	}
	if rules.Location == nil {
		rules.Location = time.Local
	}
	if rules.SlotMinutes <= 0 {
		rules.SlotMinutes = 30
	}
	return &Validator{rules: rules, clock: clock}
}

// Rules returns the validator's rule set.
func (v *Validator) Rules() Rules { return v.rules }

// Normalize localizes t to the operating timezone and drops sub-minute
// precision. All rule evaluation and storage happens on normalized instants.
func (v *Validator) Normalize(t time.Time) time.Time {
	return t.In(v.rules.Location).Truncate(time.Minute)
}

// Validate checks a candidate timestamp against the business rules, in order,
// stopping at the first violation. A nil return means the slot may be booked
// (subject to availability).
func (v *Validator) Validate(t time.Time) error {
	if t.IsZero() {
		return ErrMissingTimestamp
	}

	local := v.Normalize(t)
	now := v.clock.Now().In(v.rules.Location)

	if local.Before(now.Add(-v.rules.Grace)) {
		return ErrPastTimestamp
	}
	if local.After(now.Add(v.rules.MaxAdvance)) {
		return ErrTooFarInFuture
	}

	hour, minute := local.Hour(), local.Minute()
	// Closing-hour boundary: HH:00 at the closing hour is still accepted,
	// anything past the hour is not.
	if hour < v.rules.OpenHour || (hour >= v.rules.CloseHour && minute > 0) {
		return ErrOutsideBusinessHours
	}

	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return ErrWeekendNotServed
	}

	if minute%v.rules.SlotMinutes != 0 {
		return ErrInvalidSlotGranularity
	}

	return nil
}
