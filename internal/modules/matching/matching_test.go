// README: Matching service tests covering availability and the four selection stages.
package matching_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"ridedispatch/internal/logging"
	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/modules/matching"
	"ridedispatch/internal/modules/ride"
	"ridedispatch/internal/modules/route"
	"ridedispatch/internal/storage/memory"
	"ridedispatch/internal/types"
)

var (
	now    = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	pickup = types.Point{Lat: 25.0, Lng: 121.5}
)

// north returns the point km kilometres due north of p.
func north(p types.Point, km float64) types.Point {
	return types.Point{Lat: p.Lat + km/6371.0*180/math.Pi, Lng: p.Lng}
}

type fixture struct {
	arena *memory.Arena
	svc   *matching.Service
	avail *matching.Availability
}

func newFixture() *fixture {
	a := memory.New()
	clock := types.FixedClock{T: now}
	cfg := matching.DefaultConfig()
	avail := matching.NewAvailability(a.Drivers(), a.Rides(), clock, time.UTC, cfg.DailyLimitSeconds)
	return &fixture{
		arena: a,
		avail: avail,
		svc:   matching.NewService(avail, clock, cfg, logging.Discard()),
	}
}

func (f *fixture) activeDriver(id types.ID, vt driver.VehicleType, seats int, at types.Point) {
	activated := now.Add(-time.Hour)
	f.arena.PutDriver(driver.Driver{
		ID:      id,
		Email:   string(id) + "@example.com",
		Vehicle: driver.Vehicle{Type: vt, Seats: seats, Location: at},
		Today: &driver.DailyLog{
			Date:            types.DayOf(now, time.UTC),
			IsActive:        true,
			LastActivatedAt: &activated,
		},
	})
}

// ride puts a ride for driverID whose destination is dest.
func (f *fixture) ride(id, driverID types.ID, status ride.Status, start time.Time, dur time.Duration, dest types.Point) {
	d := driverID
	r := ride.Ride{
		ID:       id,
		Status:   status,
		DriverID: &d,
		Route: route.Route{
			ID:              id + "-route",
			Stops:           []route.Stop{{Location: &pickup}, {Location: &dest}},
			DurationSeconds: int64(dur / time.Second),
		},
		CreatedAt: now.Add(-2 * time.Hour),
	}
	if status == ride.StatusOngoing {
		r.StartTime = &start
	} else {
		r.ScheduledFor = &start
	}
	f.arena.PutRide(r)
}

func standard(seats int) ride.MatchRequest {
	return ride.MatchRequest{
		Pickup:      pickup,
		Preferences: driver.Preferences{VehicleType: driver.VehicleStandard, RequiredSeats: seats},
	}
}

func TestActiveDriversExcludesDailyLimit(t *testing.T) {
	f := newFixture()
	day := types.DayOf(now, time.UTC)
	earlier := now.Add(-15 * time.Minute)
	f.arena.PutDriver(driver.Driver{ID: "at-limit", Today: &driver.DailyLog{Date: day, IsActive: true, ActiveSeconds: 28800}})
	f.arena.PutDriver(driver.Driver{ID: "over-with-session", Today: &driver.DailyLog{Date: day, IsActive: true, ActiveSeconds: 28000, LastActivatedAt: &earlier}})
	f.arena.PutDriver(driver.Driver{ID: "fresh", Today: &driver.DailyLog{Date: day, IsActive: true, ActiveSeconds: 100, LastActivatedAt: &earlier}})
	f.arena.PutDriver(driver.Driver{ID: "inactive", Today: &driver.DailyLog{Date: day, IsActive: false}})
	f.arena.PutDriver(driver.Driver{ID: "no-log"})

	got, err := f.avail.ActiveDrivers(context.Background())
	if err != nil {
		t.Fatalf("active drivers: %v", err)
	}
	if len(got) != 1 || got[0].ID != "fresh" {
		t.Fatalf("active drivers = %+v, want only fresh", got)
	}
}

func TestBusyDriverIDs(t *testing.T) {
	d1, d2, d3 := types.ID("d1"), types.ID("d2"), types.ID("d3")
	busy := matching.BusyDriverIDs([]ride.Ride{
		{ID: "a", Status: ride.StatusOngoing, DriverID: &d1},
		{ID: "b", Status: ride.StatusScheduled, DriverID: &d2},
		{ID: "c", Status: ride.StatusFinished, DriverID: &d3},
	})
	if len(busy) != 2 {
		t.Fatalf("busy = %v", busy)
	}
	if _, ok := busy[d3]; ok {
		t.Fatal("finished ride must not make a driver busy")
	}
}

func TestMatchPicksClosestFreeDriver(t *testing.T) {
	f := newFixture()
	f.activeDriver("d1", driver.VehicleStandard, 4, north(pickup, 3.0))
	f.activeDriver("d2", driver.VehicleStandard, 4, north(pickup, 1.0))
	f.activeDriver("d3", driver.VehicleStandard, 4, north(pickup, 2.0))

	sel, err := f.svc.Match(context.Background(), standard(1))
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if sel.Driver.ID != "d2" || sel.Stage != matching.StageFree {
		t.Fatalf("selected %s (%s), want d2 (free)", sel.Driver.ID, sel.Stage)
	}
	if math.Abs(sel.DistanceKm-1.0) > 1e-6 {
		t.Fatalf("distance = %v, want 1.0", sel.DistanceKm)
	}
}

func TestMatchTiesBreakOnLowestID(t *testing.T) {
	f := newFixture()
	at := north(pickup, 1.5)
	f.activeDriver("d9", driver.VehicleStandard, 4, at)
	f.activeDriver("d4", driver.VehicleStandard, 4, at)
	f.activeDriver("d7", driver.VehicleStandard, 4, at)

	for i := 0; i < 5; i++ {
		sel, err := f.svc.Match(context.Background(), standard(1))
		if err != nil {
			t.Fatalf("match: %v", err)
		}
		if sel.Driver.ID != "d4" {
			t.Fatalf("run %d selected %s, want d4", i, sel.Driver.ID)
		}
	}
}

func TestMatchEligibility(t *testing.T) {
	ctx := context.Background()

	f := newFixture()
	if _, err := f.svc.Match(ctx, standard(1)); !errors.Is(err, matching.ErrNoActiveDrivers) {
		t.Fatalf("no drivers: err = %v, want ErrNoActiveDrivers", err)
	}

	f.activeDriver("small", driver.VehicleStandard, 3, pickup)
	f.activeDriver("lux", driver.VehicleLuxury, 4, pickup)
	_, err := f.svc.Match(ctx, standard(4))
	if !errors.Is(err, matching.ErrNoSuitableDrivers) || errors.Is(err, matching.ErrNoActiveDrivers) {
		t.Fatalf("no match: err = %v, want plain ErrNoSuitableDrivers", err)
	}

	req := standard(2)
	req.Preferences.PetFriendly = true
	if _, err := f.svc.Match(ctx, req); !errors.Is(err, matching.ErrNoSuitableDrivers) {
		t.Fatalf("pet friendly: err = %v", err)
	}
}

func TestMatchVanPrefersFreeOverCloserBusy(t *testing.T) {
	f := newFixture()
	f.activeDriver("free", driver.VehicleVan, 6, north(pickup, 2.0))
	f.activeDriver("busy", driver.VehicleVan, 6, north(pickup, 5.0))
	// started 12 minutes ago, 15 minute estimate: ends in 3 minutes
	f.ride("r-busy", "busy", ride.StatusOngoing, now.Add(-12*time.Minute), 15*time.Minute, north(pickup, 0.5))

	req := ride.MatchRequest{Pickup: pickup, Preferences: driver.Preferences{VehicleType: driver.VehicleVan, RequiredSeats: 4}}
	sel, err := f.svc.Match(context.Background(), req)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if sel.Driver.ID != "free" {
		t.Fatalf("selected %s, want free", sel.Driver.ID)
	}
}

func TestMatchBusyFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.activeDriver("far-dest", driver.VehicleStandard, 4, pickup)
	f.activeDriver("near-dest", driver.VehicleStandard, 4, north(pickup, 9))
	f.activeDriver("slow", driver.VehicleStandard, 4, pickup)
	f.activeDriver("double", driver.VehicleStandard, 4, pickup)

	f.ride("r1", "far-dest", ride.StatusOngoing, now.Add(-20*time.Minute), 25*time.Minute, north(pickup, 4))
	f.ride("r2", "near-dest", ride.StatusOngoing, now.Add(-20*time.Minute), 25*time.Minute, north(pickup, 1))
	f.ride("r3", "slow", ride.StatusOngoing, now.Add(-5*time.Minute), time.Hour, pickup)
	f.ride("r4", "double", ride.StatusOngoing, now.Add(-20*time.Minute), 25*time.Minute, pickup)
	f.ride("r5", "double", ride.StatusScheduled, now.Add(3*time.Hour), 25*time.Minute, pickup)

	sel, err := f.svc.Match(ctx, standard(1))
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if sel.Driver.ID != "near-dest" || sel.Stage != matching.StageBusy {
		t.Fatalf("selected %s (%s), want near-dest (busy)", sel.Driver.ID, sel.Stage)
	}
	if math.Abs(sel.DistanceKm-1.0) > 1e-6 {
		t.Fatalf("distance = %v, want 1.0 from ride destination", sel.DistanceKm)
	}
}

func TestMatchNoDriverEndingSoon(t *testing.T) {
	f := newFixture()
	f.activeDriver("slow", driver.VehicleStandard, 4, pickup)
	// ends exactly at now+10m, which is not strictly before the window
	f.ride("r1", "slow", ride.StatusOngoing, now.Add(-5*time.Minute), 15*time.Minute, pickup)

	_, err := f.svc.Match(context.Background(), standard(1))
	if !errors.Is(err, matching.ErrNoDriverAvailable) || !errors.Is(err, matching.ErrNoSuitableDrivers) {
		t.Fatalf("err = %v, want ErrNoDriverAvailable", err)
	}
}

func TestMatchScheduledConflict(t *testing.T) {
	ctx := context.Background()
	at := now.Add(2 * time.Hour)

	cases := []struct {
		name      string
		rideStart time.Time
		conflict  bool
	}{
		{"inside ride", at.Add(-10 * time.Minute), true},
		{"within leading buffer", at.Add(3 * time.Minute), true},
		{"within trailing buffer", at.Add(-34 * time.Minute), true},
		{"before leading buffer", at.Add(6 * time.Minute), false},
		{"after trailing buffer", at.Add(-36 * time.Minute), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.activeDriver("d1", driver.VehicleStandard, 4, pickup)
			f.ride("r1", "d1", ride.StatusScheduled, tc.rideStart, 30*time.Minute, pickup)

			req := standard(1)
			req.ScheduledFor = &at
			_, err := f.svc.Match(ctx, req)
			if !errors.Is(err, matching.ErrNoSuitableDrivers) {
				t.Fatalf("err = %v, want ErrNoSuitableDrivers", err)
			}
			// a conflict fails at the schedule stage, otherwise the driver
			// survives and only the busy fallback rejects them
			if got := errors.Is(err, matching.ErrNoDriverAvailable); got == tc.conflict {
				t.Fatalf("conflict = %v, err = %v", tc.conflict, err)
			}
		})
	}
}

func TestMatchScheduledSkipsConflictingDriver(t *testing.T) {
	f := newFixture()
	at := now.Add(2 * time.Hour)
	f.activeDriver("d1", driver.VehicleStandard, 4, pickup)
	f.activeDriver("d2", driver.VehicleStandard, 4, north(pickup, 5))
	f.ride("r1", "d1", ride.StatusScheduled, at, 30*time.Minute, pickup)

	req := standard(1)
	req.ScheduledFor = &at
	sel, err := f.svc.Match(context.Background(), req)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if sel.Driver.ID != "d2" {
		t.Fatalf("selected %s, want d2", sel.Driver.ID)
	}
}

func TestMatchCarriesDriverVersion(t *testing.T) {
	f := newFixture()
	f.activeDriver("d1", driver.VehicleStandard, 4, pickup)
	d, _ := f.arena.Drivers().GetDriver(context.Background(), "d1", types.DayOf(now, time.UTC))
	d.Version = 7
	f.arena.PutDriver(*d)

	sel, err := f.svc.Match(context.Background(), standard(1))
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if sel.Version != 7 {
		t.Fatalf("version = %d, want 7", sel.Version)
	}
}
