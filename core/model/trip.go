package model

import (
	"fmt"
	"time"
)

// TripStatus is the lifecycle state of a trip.
type TripStatus int

const (
	TripScheduled TripStatus = iota + 1
	TripDispatched
	TripEnRoutePickup
	TripArrivedPickup
	TripInProgress
	TripCompleted
	TripCancelled
	TripRescheduled
)

var tripStatusNames = []string{
	"SCHEDULED", "DISPATCHED", "EN_ROUTE_PICKUP", "ARRIVED_PICKUP",
	"IN_PROGRESS", "COMPLETED", "CANCELLED", "RESCHEDULED",
}

// TripStatuses lists every trip status in declaration order.
var TripStatuses = []TripStatus{
	TripScheduled, TripDispatched, TripEnRoutePickup, TripArrivedPickup,
	TripInProgress, TripCompleted, TripCancelled, TripRescheduled,
}

func (s TripStatus) String() string { return enumName(s, tripStatusNames) }

// ParseTripStatus converts the text form back to a TripStatus.
func ParseTripStatus(s string) (TripStatus, error) {
	return parseEnum[TripStatus]("trip status", s, tripStatusNames)
}

func (s TripStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *TripStatus) UnmarshalText(b []byte) error {
	v, err := ParseTripStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Terminal reports whether no further transition is possible.
func (s TripStatus) Terminal() bool {
	return s == TripCompleted || s == TripCancelled || s == TripRescheduled
}

// Active reports whether the trip holds a vehicle and a driver.
func (s TripStatus) Active() bool {
	switch s {
	case TripDispatched, TripEnRoutePickup, TripArrivedPickup, TripInProgress:
		return true
	}
	return false
}

// Priority ranks trips and requests.
type Priority int

const (
	PriorityStandard Priority = iota + 1
	PriorityUrgent
	PriorityVIP
)

var priorityNames = []string{"STANDARD", "URGENT", "VIP"}

func (p Priority) String() string { return enumName(p, priorityNames) }

// ParsePriority converts the text form back to a Priority.
func ParsePriority(s string) (Priority, error) {
	return parseEnum[Priority]("priority", s, priorityNames)
}

func (p Priority) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Passenger describes who is being transported.
type Passenger struct {
	Name  string `json:"name" yaml:"name"`
	Phone string `json:"phone,omitempty" yaml:"phone"`
	Count int    `json:"count,omitempty" yaml:"count"`
	Notes string `json:"notes,omitempty" yaml:"notes"`
}

// Location is an addressed point of the operating area.
type Location struct {
	Address  string   `json:"address" yaml:"address"`
	Position Position `json:"position" yaml:"position"`
}

// Feedback is attached to a trip when it completes.
type Feedback struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

// Validate checks the rating bounds.
func (f Feedback) Validate() error {
	if f.Rating < 1 || f.Rating > 5 {
		return fmt.Errorf("feedback rating %d out of range 1-5", f.Rating)
	}
	return nil
}

// Summary renders the feedback for audit details.
func (f Feedback) Summary() string {
	if f.Comment == "" {
		return fmt.Sprintf("rating %d/5", f.Rating)
	}
	return fmt.Sprintf("rating %d/5: %s", f.Rating, f.Comment)
}

// Trip is a single passenger transport assignment.
type Trip struct {
	ID                   string     `json:"id"`
	RequestID            string     `json:"request_id,omitempty"`
	Passenger            Passenger  `json:"passenger"`
	Pickup               Location   `json:"pickup"`
	Dropoff              Location   `json:"dropoff"`
	Priority             Priority   `json:"priority"`
	Status               TripStatus `json:"status"`
	VehicleID            string     `json:"vehicle_id,omitempty"`
	DriverID             string     `json:"driver_id,omitempty"`
	EstimatedDurationMin float64    `json:"estimated_duration_min"`
	Notes                string     `json:"notes,omitempty"`
	Feedback             *Feedback  `json:"feedback,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	ClosedAt             time.Time  `json:"closed_at,omitempty"`
}

// Assigned reports whether both resources are set.
func (t Trip) Assigned() bool { return t.VehicleID != "" && t.DriverID != "" }
