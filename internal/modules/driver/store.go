// README: Driver store backed by PostgreSQL (drivers, vehicles, driver_daily_logs).
package driver

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridedispatch/internal/types"
)

type PgStore struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

const driverColumns = `
	d.id, d.email, d.name, d.version,
	v.type, v.plate, v.seats, v.pet_friendly, v.baby_friendly, v.lat, v.lng,
	l.is_active, l.active_seconds, l.last_activated_at`

func (s *PgStore) GetDriver(ctx context.Context, id types.ID, day time.Time) (*Driver, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+driverColumns+`
		FROM drivers d
		JOIN vehicles v ON v.driver_id = d.id
		LEFT JOIN driver_daily_logs l ON l.driver_id = d.id AND l.log_date = $2
		WHERE d.id = $1`, string(id), day,
	)
	d, err := scanDriver(row, day)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// ActiveDriversOn returns drivers whose log for day is active. The daily
// limit is applied by the caller since it depends on the current time.
func (s *PgStore) ActiveDriversOn(ctx context.Context, day time.Time) ([]Driver, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+driverColumns+`
		FROM drivers d
		JOIN vehicles v ON v.driver_id = d.id
		JOIN driver_daily_logs l ON l.driver_id = d.id AND l.log_date = $1
		WHERE l.is_active
		ORDER BY d.id`, day,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Driver
	for rows.Next() {
		d, err := scanDriver(rows, day)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *PgStore) SaveDailyLog(ctx context.Context, log DailyLog) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO driver_daily_logs (driver_id, log_date, is_active, active_seconds, last_activated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (driver_id, log_date) DO UPDATE
		SET is_active = EXCLUDED.is_active,
		    active_seconds = EXCLUDED.active_seconds,
		    last_activated_at = EXCLUDED.last_activated_at`,
		string(log.DriverID), log.Date, log.IsActive, log.ActiveSeconds, log.LastActivatedAt,
	)
	return err
}

func (s *PgStore) UpdateVehicleLocation(ctx context.Context, id types.ID, p types.Point) error {
	tag, err := s.db.Exec(ctx, `UPDATE vehicles SET lat = $1, lng = $2 WHERE driver_id = $3`, p.Lat, p.Lng, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDriver(row pgx.Row, day time.Time) (*Driver, error) {
	var d Driver
	var vehicleType string
	var isActive *bool
	var activeSeconds *int64
	var lastActivated *time.Time
	err := row.Scan(
		&d.ID, &d.Email, &d.Name, &d.Version,
		&vehicleType, &d.Vehicle.Plate, &d.Vehicle.Seats, &d.Vehicle.PetFriendly, &d.Vehicle.BabyFriendly,
		&d.Vehicle.Location.Lat, &d.Vehicle.Location.Lng,
		&isActive, &activeSeconds, &lastActivated,
	)
	if err != nil {
		return nil, err
	}
	d.Vehicle.Type = VehicleType(vehicleType)
	if isActive != nil {
		d.Today = &DailyLog{
			DriverID:        d.ID,
			Date:            day,
			IsActive:        *isActive,
			LastActivatedAt: lastActivated,
		}
		if activeSeconds != nil {
			d.Today.ActiveSeconds = *activeSeconds
		}
	}
	return &d, nil
}
