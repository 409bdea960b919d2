// README: In-memory arena holding drivers, rides, routes and price lists keyed by id.
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/modules/pricing"
	"ridedispatch/internal/modules/ride"
	"ridedispatch/internal/modules/route"
	"ridedispatch/internal/types"
)

type logKey struct {
	driverID types.ID
	day      string
}

type reviewKey struct {
	rideID types.ID
	email  string
}

// Arena is one lock over every table so that ride commits can check and
// bump driver versions atomically. Entities reference each other by id only.
type Arena struct {
	mu           sync.RWMutex
	drivers      map[types.ID]driver.Driver
	logs         map[logKey]driver.DailyLog
	rides        map[types.ID]ride.Ride
	reviews      map[reviewKey]ride.Review
	panics       []ride.PanicRecord
	routes       map[types.ID]route.Route
	routesByPath map[string]types.ID
	prices       []pricing.PriceList
}

func New() *Arena {
	return &Arena{
		drivers:      map[types.ID]driver.Driver{},
		logs:         map[logKey]driver.DailyLog{},
		rides:        map[types.ID]ride.Ride{},
		reviews:      map[reviewKey]ride.Review{},
		routes:       map[types.ID]route.Route{},
		routesByPath: map[string]types.ID{},
	}
}

func (a *Arena) Drivers() *Drivers { return &Drivers{a: a} }
func (a *Arena) Rides() *Rides     { return &Rides{a: a} }
func (a *Arena) Routes() *Routes   { return &Routes{a: a} }
func (a *Arena) Prices() *Prices   { return &Prices{a: a} }

// PutDriver inserts or replaces a driver. Today is stored as a daily log.
func (a *Arena) PutDriver(d driver.Driver) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if d.Today != nil {
		l := *d.Today
		l.DriverID = d.ID
		a.logs[logKey{d.ID, dayKey(l.Date)}] = l
	}
	d.Today = nil
	a.drivers[d.ID] = d
}

// PutRide inserts or replaces a ride as is, bypassing version checks.
func (a *Arena) PutRide(r ride.Ride) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rides[r.ID] = copyRide(r)
}

func (a *Arena) PanicRecords(rideID types.ID) []ride.PanicRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []ride.PanicRecord
	for _, p := range a.panics {
		if p.RideID == rideID {
			out = append(out, p)
		}
	}
	return out
}

// driverAt joins the driver with its log for day. Caller holds the lock.
func (a *Arena) driverAt(id types.ID, day time.Time) (driver.Driver, bool) {
	d, ok := a.drivers[id]
	if !ok {
		return driver.Driver{}, false
	}
	if l, ok := a.logs[logKey{id, dayKey(day)}]; ok {
		d.Today = &l
	}
	return d, true
}

func (a *Arena) sortedDriverIDs() []types.ID {
	ids := make([]types.ID, 0, len(a.drivers))
	for id := range a.drivers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func emailKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func copyRide(r ride.Ride) ride.Ride {
	r.Passengers = append([]ride.Passenger(nil), r.Passengers...)
	r.Route.Stops = append([]route.Stop(nil), r.Route.Stops...)
	return r
}
