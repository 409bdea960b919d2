// README: Ride store backed by PostgreSQL (rides, ride_passengers, panic_records, reviews).
package ride

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/modules/route"
	"ridedispatch/internal/types"
)

type PgStore struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

const rideSelect = `
	SELECT r.id, r.status, r.status_version, r.driver_id, r.driver_email,
	       r.vehicle_type, r.required_seats, r.pet_friendly, r.baby_friendly,
	       r.scheduled_for, r.created_at, r.start_time, r.end_time,
	       r.estimated_price, r.final_price, r.currency, r.measured_distance_km, r.cancellation_reason,
	       rt.id, rt.path_encoding, rt.distance_km, rt.duration_seconds, rt.stops, rt.geometry, rt.created_at,
	       (SELECT COALESCE(jsonb_agg(jsonb_build_object('id', p.passenger_id, 'email', p.email) ORDER BY p.position), '[]'::jsonb)
	          FROM ride_passengers p WHERE p.ride_id = r.id)
	FROM rides r
	JOIN routes rt ON rt.id = r.route_id`

func (s *PgStore) Get(ctx context.Context, id types.ID) (*Ride, error) {
	r, err := scanRide(s.db.QueryRow(ctx, rideSelect+` WHERE r.id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *PgStore) RidesByDriver(ctx context.Context, driverID types.ID, statuses ...Status) ([]Ride, error) {
	return s.query(ctx, rideSelect+` WHERE r.driver_id = $1 AND r.status = ANY($2) ORDER BY r.created_at`,
		string(driverID), statusStrings(statuses))
}

func (s *PgStore) RidesByStatus(ctx context.Context, statuses ...Status) ([]Ride, error) {
	return s.query(ctx, rideSelect+` WHERE r.status = ANY($1) ORDER BY r.created_at`, statusStrings(statuses))
}

// CreateRide claims the driver by bumping drivers.version from driverVersion
// and inserts the ride in the same transaction.
func (s *PgStore) CreateRide(ctx context.Context, r *Ride, driverVersion int) error {
	if r.DriverID == nil {
		return fmt.Errorf("%w: ride has no driver", ErrInvalidState)
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE drivers SET version = version + 1 WHERE id = $1 AND version = $2`,
		string(*r.DriverID), driverVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}

	var final *int64
	if r.FinalPrice != nil {
		final = &r.FinalPrice.Amount
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO rides (
			id, status, status_version, driver_id, driver_email, route_id,
			vehicle_type, required_seats, pet_friendly, baby_friendly,
			scheduled_for, created_at, start_time, end_time,
			estimated_price, final_price, currency, measured_distance_km, cancellation_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		string(r.ID), string(r.Status), r.StatusVersion, string(*r.DriverID), r.DriverEmail, string(r.Route.ID),
		string(r.Vehicle.VehicleType), r.Vehicle.RequiredSeats, r.Vehicle.PetFriendly, r.Vehicle.BabyFriendly,
		r.ScheduledFor, r.CreatedAt, r.StartTime, r.EndTime,
		r.EstimatedPrice.Amount, final, r.EstimatedPrice.Currency, r.MeasuredDistanceKm, r.CancellationReason,
	)
	if err != nil {
		return err
	}
	for i, p := range r.Passengers {
		if _, err := tx.Exec(ctx, `
			INSERT INTO ride_passengers (ride_id, position, passenger_id, email)
			VALUES ($1, $2, $3, $4)`,
			string(r.ID), i, string(p.ID), p.Email,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PgStore) UpdateRide(ctx context.Context, ch Change) error {
	r := ch.Ride
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var final *int64
	if r.FinalPrice != nil {
		final = &r.FinalPrice.Amount
	}
	tag, err := tx.Exec(ctx, `
		UPDATE rides
		SET status = $1,
		    status_version = status_version + 1,
		    start_time = $2,
		    end_time = $3,
		    final_price = $4,
		    measured_distance_km = $5,
		    cancellation_reason = $6
		WHERE id = $7 AND status = $8 AND status_version = $9`,
		string(r.Status), r.StartTime, r.EndTime, final, r.MeasuredDistanceKm, r.CancellationReason,
		string(r.ID), string(ch.From), r.StatusVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrConflict
	}
	if r.DriverID != nil {
		if _, err := tx.Exec(ctx, `UPDATE drivers SET version = version + 1 WHERE id = $1`, string(*r.DriverID)); err != nil {
			return err
		}
	}
	if p := ch.Panic; p != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO panic_records (id, ride_id, reporter_email, lat, lng, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			string(p.ID), string(p.RideID), p.ReporterEmail, p.VehicleLocation.Lat, p.VehicleLocation.Lng, p.CreatedAt,
		); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	r.StatusVersion++
	return nil
}

func (s *PgStore) HasReview(ctx context.Context, rideID types.ID, passengerEmail string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM reviews WHERE ride_id = $1 AND lower(passenger_email) = lower($2))`,
		string(rideID), passengerEmail,
	).Scan(&exists)
	return exists, err
}

func (s *PgStore) SaveReview(ctx context.Context, rv *Review) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO reviews (id, ride_id, passenger_email, driver_rating, vehicle_rating, comment, created_at)
		VALUES ($1, $2, lower($3), $4, $5, $6, $7)`,
		string(rv.ID), string(rv.RideID), rv.PassengerEmail, rv.DriverRating, rv.VehicleRating, rv.Comment, rv.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrNotReviewable
	}
	return err
}

func (s *PgStore) query(ctx context.Context, sql string, args ...any) ([]Ride, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	var status, vehicleType, currency string
	var driverID *string
	var finalPrice *int64
	var stops, passengers []byte
	var scheduledFor, startTime, endTime *time.Time

	err := row.Scan(
		&r.ID, &status, &r.StatusVersion, &driverID, &r.DriverEmail,
		&vehicleType, &r.Vehicle.RequiredSeats, &r.Vehicle.PetFriendly, &r.Vehicle.BabyFriendly,
		&scheduledFor, &r.CreatedAt, &startTime, &endTime,
		&r.EstimatedPrice.Amount, &finalPrice, &currency, &r.MeasuredDistanceKm, &r.CancellationReason,
		&r.Route.ID, &r.Route.PathEncoding, &r.Route.DistanceKm, &r.Route.DurationSeconds, &stops, &r.Route.Geometry, &r.Route.CreatedAt,
		&passengers,
	)
	if err != nil {
		return nil, err
	}
	r.Status = Status(status)
	r.Vehicle.VehicleType = driver.VehicleType(vehicleType)
	r.ScheduledFor, r.StartTime, r.EndTime = scheduledFor, startTime, endTime
	r.EstimatedPrice.Currency = currency
	if driverID != nil {
		id := types.ID(*driverID)
		r.DriverID = &id
	}
	if finalPrice != nil {
		r.FinalPrice = &types.Money{Amount: *finalPrice, Currency: currency}
	}
	if r.Route.Stops, err = route.DecodeStops(stops); err != nil {
		return nil, err
	}
	var ps []struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(passengers, &ps); err != nil {
		return nil, err
	}
	for _, p := range ps {
		r.Passengers = append(r.Passengers, Passenger{ID: types.ID(p.ID), Email: p.Email})
	}
	return &r, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
