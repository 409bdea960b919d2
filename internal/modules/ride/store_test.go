// README: Postgres ride store tests; skipped unless ARK_TEST_DSN points at a scratch database.
package ride_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/modules/ride"
	"ridedispatch/internal/modules/route"
	"ridedispatch/internal/types"
)

func pgPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("ARK_TEST_DSN")
	if dsn == "" {
		t.Skip("ARK_TEST_DSN not set; skipping postgres test")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile("../../../migrations/0001_init.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	return pool
}

func TestPgStoreOptimisticCommits(t *testing.T) {
	pool := pgPool(t)
	ctx := context.Background()
	driverID := "d-" + uuid.NewString()

	if _, err := pool.Exec(ctx, `INSERT INTO drivers (id, email, name) VALUES ($1, $1 || '@test.local', 'T')`, driverID); err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO vehicles (driver_id, type, seats) VALUES ($1, 'STANDARD', 4)`, driverID); err != nil {
		t.Fatal(err)
	}

	a, b := types.Point{Lat: 25.03, Lng: 121.56}, types.Point{Lat: 25.05, Lng: 121.52}
	rt, err := route.NewStore(pool).Save(ctx, &route.Route{
		ID:              types.ID(uuid.NewString()),
		Stops:           []route.Stop{{Address: "A", Location: &a}, {Address: "B", Location: &b}},
		DistanceKm:      10,
		DurationSeconds: 1200,
		PathEncoding:    "test-" + uuid.NewString(),
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("save route: %v", err)
	}

	store := ride.NewStore(pool)
	id := types.ID(driverID)
	newRide := func() *ride.Ride {
		return &ride.Ride{
			ID:             types.ID(uuid.NewString()),
			Status:         ride.StatusScheduled,
			DriverID:       &id,
			DriverEmail:    driverID + "@test.local",
			Passengers:     []ride.Passenger{{ID: "p1", Email: "p1@test.local"}, {Email: "p2@test.local"}},
			Route:          *rt,
			Vehicle:        driver.Preferences{VehicleType: driver.VehicleStandard, RequiredSeats: 1},
			CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
			EstimatedPrice: types.Money{Amount: 700, Currency: "TWD"},
		}
	}

	first := newRide()
	if err := store.CreateRide(ctx, first, 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.CreateRide(ctx, newRide(), 0); !errors.Is(err, ride.ErrConflict) {
		t.Fatalf("stale driver version: expected ErrConflict, got %v", err)
	}

	got, err := store.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Passengers) != 2 || got.Passengers[1].Email != "p2@test.local" || got.Route.ID != rt.ID {
		t.Fatalf("unexpected ride %+v", got)
	}

	now := time.Now().UTC()
	next := *got
	next.Status = ride.StatusOngoing
	next.StartTime = &now
	if err := store.UpdateRide(ctx, ride.Change{Ride: &next, From: ride.StatusScheduled}); err != nil {
		t.Fatalf("update: %v", err)
	}
	stale := *got
	stale.Status = ride.StatusCancelledByDriver
	if err := store.UpdateRide(ctx, ride.Change{Ride: &stale, From: ride.StatusScheduled}); !errors.Is(err, ride.ErrConflict) {
		t.Fatalf("stale update: expected ErrConflict, got %v", err)
	}

	ongoing, err := store.RidesByDriver(ctx, id, ride.StatusOngoing)
	if err != nil || len(ongoing) != 1 {
		t.Fatalf("rides by driver: %v %v", ongoing, err)
	}

	rv := &ride.Review{ID: types.ID(uuid.NewString()), RideID: first.ID, PassengerEmail: "P1@test.local", DriverRating: 5, VehicleRating: 5, CreatedAt: now}
	if err := store.SaveReview(ctx, rv); err != nil {
		t.Fatalf("review: %v", err)
	}
	rv.ID = types.ID(uuid.NewString())
	if err := store.SaveReview(ctx, rv); !errors.Is(err, ride.ErrNotReviewable) {
		t.Fatalf("second review: expected ErrNotReviewable, got %v", err)
	}
	if ok, err := store.HasReview(ctx, first.ID, "p1@test.local"); err != nil || !ok {
		t.Fatalf("has review: %v %v", ok, err)
	}
}
