// README: Availability answers which drivers are active today and which hold a ride.
package matching

import (
	"context"
	"time"

	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/modules/ride"
	"ridedispatch/internal/types"
)

type DriverSource interface {
	// ActiveDriversOn returns drivers whose log for day is active, with
	// their current Version.
	ActiveDriversOn(ctx context.Context, day time.Time) ([]driver.Driver, error)
}

type RideSource interface {
	RidesByStatus(ctx context.Context, statuses ...ride.Status) ([]ride.Ride, error)
}

// Availability is read-only and safe for concurrent use.
type Availability struct {
	drivers    DriverSource
	rides      RideSource
	clock      types.Clock
	loc        *time.Location
	dailyLimit int64
}

func NewAvailability(drivers DriverSource, rides RideSource, clock types.Clock, loc *time.Location, dailyLimitSeconds int64) *Availability {
	return &Availability{drivers: drivers, rides: rides, clock: clock, loc: loc, dailyLimit: dailyLimitSeconds}
}

// ActiveDrivers returns drivers active today that are still under the daily
// limit, counting the running session.
func (a *Availability) ActiveDrivers(ctx context.Context) ([]driver.Driver, error) {
	now := a.clock.Now()
	all, err := a.drivers.ActiveDriversOn(ctx, types.DayOf(now, a.loc))
	if err != nil {
		return nil, err
	}
	out := all[:0:0]
	for _, d := range all {
		if d.Today == nil || !d.Today.IsActive {
			continue
		}
		if d.Today.ActiveSecondsAt(now) >= a.dailyLimit {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// ActiveRides returns every SCHEDULED or ONGOING ride.
func (a *Availability) ActiveRides(ctx context.Context) ([]ride.Ride, error) {
	return a.rides.RidesByStatus(ctx, ride.ActiveStatuses...)
}

// BusyDriverIDs returns drivers holding a SCHEDULED or ONGOING ride among
// rides. A driver not in the set is truly free.
func BusyDriverIDs(rides []ride.Ride) map[types.ID]struct{} {
	out := make(map[types.ID]struct{})
	for _, r := range rides {
		if r.DriverID != nil && r.Status.Active() {
			out[*r.DriverID] = struct{}{}
		}
	}
	return out
}

func ridesByDriver(rides []ride.Ride) map[types.ID][]ride.Ride {
	out := make(map[types.ID][]ride.Ride)
	for _, r := range rides {
		if r.DriverID != nil && r.Status.Active() {
			out[*r.DriverID] = append(out[*r.DriverID], r)
		}
	}
	return out
}
