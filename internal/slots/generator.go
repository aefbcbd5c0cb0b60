// Package slots builds the bookable slot grid for a calendar day.
package slots

import (
	"context"
	"time"
)

// Slot is one bookable start time on the grid.
type Slot struct {
	StartTime time.Time
	Available bool
}

// SlotInfo is a simplified representation for API responses.
type SlotInfo struct {
	Time      string `json:"time"` // "10:30"
	Available bool   `json:"available"`
}

// BookingChecker reports whether a slot start time already holds an active
// reservation.
type BookingChecker interface {
	IsSlotBooked(ctx context.Context, start time.Time) (bool, error)
}

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Schedule holds the grid parameters for a day: slot start times run from
// OpenHour:00 through CloseHour:00 inclusive, SlotMinutes apart.
type Schedule struct {
	OpenHour    int
	CloseHour   int
	SlotMinutes int
	Location    *time.Location
}

// DefaultSchedule returns the operating grid: 08:00 through 18:00 on
// 30-minute boundaries.
func DefaultSchedule() Schedule {
	return Schedule{
		OpenHour:    8,
		CloseHour:   18,
		SlotMinutes: 30,
		Location:    time.Local,
	}
}

// Generator generates the slot grid for a date.
type Generator struct {
	checker  BookingChecker
	schedule Schedule
	clock    Clock
}

// NewGenerator creates a slot generator. checker and clock may be nil; a nil
// clock means the wall clock.
func NewGenerator(checker BookingChecker, schedule Schedule, clock Clock) *Generator {
	if clock == nil {
		clock = systemClock{}
	}
	if schedule.SlotMinutes <= 0 {
		schedule.SlotMinutes = 30
	}
	if schedule.Location == nil {
		schedule.Location = time.Local
	}
	return &Generator{checker: checker, schedule: schedule, clock: clock}
}

// GenerateSlots returns every grid slot for the given date, with past and
// booked slots marked unavailable. Weekends have no grid and return nil.
func (g *Generator) GenerateSlots(ctx context.Context, date time.Time) ([]Slot, error) {
	date = date.In(g.schedule.Location)
	if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return nil, nil
	}

	first := time.Date(date.Year(), date.Month(), date.Day(), g.schedule.OpenHour, 0, 0, 0, g.schedule.Location)
	last := time.Date(date.Year(), date.Month(), date.Day(), g.schedule.CloseHour, 0, 0, 0, g.schedule.Location)
	step := time.Duration(g.schedule.SlotMinutes) * time.Minute
	now := g.clock.Now()

	var slots []Slot
	for cursor := first; !cursor.After(last); cursor = cursor.Add(step) {
		booked := false
		if g.checker != nil {
			var err error
			booked, err = g.checker.IsSlotBooked(ctx, cursor)
			if err != nil {
				return nil, err
			}
		}

		isPast := cursor.Before(now)

		slots = append(slots, Slot{
			StartTime: cursor,
			Available: !booked && !isPast,
		})
	}

	return slots, nil
}

// ToSlotInfo converts slots to their API representation.
func ToSlotInfo(slots []Slot) []SlotInfo {
	result := make([]SlotInfo, len(slots))
	for i, s := range slots {
		result[i] = SlotInfo{
			Time:      s.StartTime.Format("15:04"),
			Available: s.Available,
		}
	}
	return result
}

// GetAvailableSlots returns only the bookable slots.
func GetAvailableSlots(slots []Slot) []Slot {
	var available []Slot
	for _, s := range slots {
		if s.Available {
			available = append(available, s)
		}
	}
	return available
}

// NextAvailable returns the earliest bookable slot, or false if the day is
// fully booked or over.
func NextAvailable(slots []Slot) (Slot, bool) {
	for _, s := range slots {
		if s.Available {
			return s, true
		}
	}
	return Slot{}, false
}
