// README: Driver aggregate, vehicle specification and per-day activity log.
package driver

import (
	"time"

	"ridedispatch/internal/types"
)

type VehicleType string

const (
	VehicleStandard VehicleType = "STANDARD"
	VehicleLuxury   VehicleType = "LUXURY"
	VehicleVan      VehicleType = "VAN"
)

func (t VehicleType) Valid() bool {
	switch t {
	case VehicleStandard, VehicleLuxury, VehicleVan:
		return true
	}
	return false
}

type Vehicle struct {
	Type         VehicleType
	Plate        string
	Seats        int
	PetFriendly  bool
	BabyFriendly bool
	Location     types.Point
}

// Preferences is what a passenger asks of a vehicle.
type Preferences struct {
	VehicleType   VehicleType
	PetFriendly   bool
	BabyFriendly  bool
	RequiredSeats int
}

// Satisfies reports whether the vehicle meets p. Pet and baby flags only
// constrain the match when they are requested.
func (v Vehicle) Satisfies(p Preferences) bool {
	if v.Type != p.VehicleType {
		return false
	}
	if p.PetFriendly && !v.PetFriendly {
		return false
	}
	if p.BabyFriendly && !v.BabyFriendly {
		return false
	}
	return v.Seats >= p.RequiredSeats
}

type Driver struct {
	ID      types.ID
	Email   string
	Name    string
	Vehicle Vehicle
	// Today is the activity log for the current calendar date, nil if the
	// driver has not toggled activity today.
	Today *DailyLog
	// Version increments on every committed ride change involving the driver.
	Version int
}

// DailyLog tracks one calendar date of driver activity. At most one exists
// per driver and date.
type DailyLog struct {
	DriverID        types.ID
	Date            time.Time
	IsActive        bool
	ActiveSeconds   int64
	LastActivatedAt *time.Time
}

// ActiveSecondsAt includes the running session when the log is active.
func (l DailyLog) ActiveSecondsAt(now time.Time) int64 {
	total := l.ActiveSeconds
	if l.IsActive && l.LastActivatedAt != nil && now.After(*l.LastActivatedAt) {
		total += int64(now.Sub(*l.LastActivatedAt) / time.Second)
	}
	return total
}
