// README: Ride aggregate, status definitions and participant roles.
package ride

import (
	"strings"
	"time"

	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/modules/route"
	"ridedispatch/internal/types"
)

type Status string

const (
	StatusCreated              Status = "CREATED"
	StatusScheduled            Status = "SCHEDULED"
	StatusOngoing              Status = "ONGOING"
	StatusFinished             Status = "FINISHED"
	StatusCancelledByDriver    Status = "CANCELLED_BY_DRIVER"
	StatusCancelledByPassenger Status = "CANCELLED_BY_PASSENGER"
	StatusPanic                Status = "PANIC"
)

// ActiveStatuses are the statuses in which a ride holds its driver.
var ActiveStatuses = []Status{StatusScheduled, StatusOngoing}

// AllowedTransitions represents the ride state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusCreated:   {StatusScheduled},
	StatusScheduled: {StatusOngoing, StatusCancelledByDriver, StatusCancelledByPassenger},
	StatusOngoing:   {StatusFinished, StatusPanic, StatusCancelledByDriver, StatusCancelledByPassenger},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	_, ok := AllowedTransitions[s]
	return !ok
}

func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusOngoing
}

type Passenger struct {
	ID    types.ID
	Email string
}

type Ride struct {
	ID            types.ID
	Status        Status
	StatusVersion int
	// DriverID is set for every status except CREATED.
	DriverID    *types.ID
	DriverEmail string
	Passengers  []Passenger
	Route       route.Route
	Vehicle     driver.Preferences
	// ScheduledFor is nil for as-soon-as-possible rides.
	ScheduledFor       *time.Time
	CreatedAt          time.Time
	StartTime          *time.Time
	EndTime            *time.Time
	EstimatedPrice     types.Money
	FinalPrice         *types.Money
	MeasuredDistanceKm *float64
	CancellationReason string
}

// PlannedStart is when the ride starts or is expected to: the recorded
// start, then the scheduled time, then creation.
func (r Ride) PlannedStart() time.Time {
	switch {
	case r.StartTime != nil:
		return *r.StartTime
	case r.ScheduledFor != nil:
		return *r.ScheduledFor
	}
	return r.CreatedAt
}

// EstimatedEnd is PlannedStart plus the route's estimated duration.
func (r Ride) EstimatedEnd() time.Time {
	return r.PlannedStart().Add(r.Route.EstimatedDuration())
}

func (r Ride) AssignedTo(driverID types.ID) bool {
	return r.DriverID != nil && *r.DriverID == driverID
}

type Role string

const (
	RoleNone      Role = "none"
	RoleDriver    Role = "driver"
	RolePassenger Role = "passenger"
)

// Actor identifies whoever performs a lifecycle operation. Either field may
// be empty.
type Actor struct {
	ID    types.ID
	Email string
}

// ParticipantRole is the single check of how an actor relates to a ride.
// The assigned driver wins if the actor matches both.
func ParticipantRole(r *Ride, a Actor) Role {
	if r == nil {
		return RoleNone
	}
	if a.ID != "" && r.AssignedTo(a.ID) {
		return RoleDriver
	}
	if a.Email != "" && r.DriverID != nil && strings.EqualFold(a.Email, r.DriverEmail) {
		return RoleDriver
	}
	for _, p := range r.Passengers {
		if a.ID != "" && p.ID == a.ID {
			return RolePassenger
		}
		if a.Email != "" && strings.EqualFold(a.Email, p.Email) {
			return RolePassenger
		}
	}
	return RoleNone
}

// PanicRecord is the emergency report persisted with a PANIC transition.
type PanicRecord struct {
	ID              types.ID
	RideID          types.ID
	ReporterEmail   string
	VehicleLocation types.Point
	CreatedAt       time.Time
}

type Review struct {
	ID             types.ID
	RideID         types.ID
	PassengerEmail string
	DriverRating   int
	VehicleRating  int
	Comment        string
	CreatedAt      time.Time
}

type EventType string

const (
	EventRideScheduled EventType = "ride_scheduled"
	EventRideStarted   EventType = "ride_started"
	EventRideFinished  EventType = "ride_finished"
	EventRideCancelled EventType = "ride_cancelled"
	EventRidePanic     EventType = "ride_panic"
	EventDriverRated   EventType = "driver_rated"
)

// Event is handed to the notification sinks after a committed change.
type Event struct {
	Type       EventType         `json:"type"`
	RideID     types.ID          `json:"ride_id"`
	DriverID   types.ID          `json:"driver_id,omitempty"`
	Status     Status            `json:"status"`
	Recipients []string          `json:"recipients,omitempty"`
	Payload    map[string]string `json:"payload,omitempty"`
	At         time.Time         `json:"at"`
}
