package models

import "time"

// Reservation statuses. Fixed set: the conflict rules depend on exactly
// which statuses occupy a slot.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// User roles.
const (
	RoleClient = "client"
	RoleStaff  = "staff"
)

// ActiveStatuses are the statuses that occupy a slot.
var ActiveStatuses = []string{StatusPending, StatusConfirmed}

// statusTransitions lists the allowed status changes. Cancelled is terminal.
var statusTransitions = map[string][]string{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled},
	StatusCancelled: {},
}

// ValidStatus reports whether s is a known reservation status.
func ValidStatus(s string) bool {
	_, ok := statusTransitions[s]
	return ok
}

// IsActiveStatus reports whether a reservation in status s occupies its slot.
func IsActiveStatus(s string) bool {
	return s == StatusPending || s == StatusConfirmed
}

// CanTransition reports whether a reservation may move from one status to another.
func CanTransition(from, to string) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Service represents a bookable service.
type Service struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceCents      int64     `json:"price_cents"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// User represents a registered account. Authentication lives at the boundary;
// the store only needs to identify reservation owners.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	RegisteredAt time.Time `json:"registered_at"`
}

// FullName returns the user's display name.
func (u *User) FullName() string {
	if u.FirstName == "" && u.LastName == "" {
		return u.Username
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Reservation represents a booked slot.
type Reservation struct {
	ID          int64     `json:"id"`
	Reference   string    `json:"reference"`
	UserID      int64     `json:"user_id"`
	ServiceID   int64     `json:"service_id"`
	ServiceName string    `json:"service_name"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Version     int64     `json:"version"`
}

// IsActive reports whether the reservation still occupies its slot.
func (r *Reservation) IsActive() bool {
	return IsActiveStatus(r.Status)
}

// IsUpcoming reports whether the reservation is active and in the future
// relative to now.
func (r *Reservation) IsUpcoming(now time.Time) bool {
	return r.IsActive() && !r.ScheduledAt.Before(now)
}

// ReservationStats summarizes a user's booking history.
type ReservationStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Confirmed int `json:"confirmed"`
	Cancelled int `json:"cancelled"`
}
