// README: Route store backed by PostgreSQL, unique on path encoding.
package route

import (
	"context"
	"encoding/json"
	"errors"

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

type stopRecord struct {
	Address string   `json:"address"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

func (s *PgStore) FindByPath(ctx context.Context, path string) (*Route, error) {
	return s.queryOne(ctx, `WHERE path_encoding = $1`, path)
}

func (s *PgStore) Save(ctx context.Context, r *Route) (*Route, error) {
	stops, err := EncodeStops(r.Stops)
	if err != nil {
		return nil, err
	}
	// The no-op update makes RETURNING yield the existing row on conflict.
	row := s.db.QueryRow(ctx, `
		INSERT INTO routes (id, path_encoding, distance_km, duration_seconds, stops, geometry, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (path_encoding) DO UPDATE SET path_encoding = EXCLUDED.path_encoding
		RETURNING id, path_encoding, distance_km, duration_seconds, stops, geometry, created_at`,
		string(r.ID), r.PathEncoding, r.DistanceKm, r.DurationSeconds, stops, r.Geometry, r.CreatedAt,
	)
	return scanRoute(row)
}

func (s *PgStore) queryOne(ctx context.Context, where string, arg any) (*Route, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, path_encoding, distance_km, duration_seconds, stops, geometry, created_at
		FROM routes `+where, arg)
	r, err := scanRoute(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func scanRoute(row pgx.Row) (*Route, error) {
	var r Route
	var stops []byte
	if err := row.Scan(&r.ID, &r.PathEncoding, &r.DistanceKm, &r.DurationSeconds, &stops, &r.Geometry, &r.CreatedAt); err != nil {
		return nil, err
	}
	decoded, err := DecodeStops(stops)
	if err != nil {
		return nil, err
	}
	r.Stops = decoded
	return &r, nil
}

// EncodeStops is the jsonb form of stops shared with tables that embed a route.
func EncodeStops(stops []Stop) ([]byte, error) {
	recs := make([]stopRecord, len(stops))
	for i, s := range stops {
		recs[i].Address = s.Address
		if s.Location != nil {
			lat, lng := s.Location.Lat, s.Location.Lng
			recs[i].Lat, recs[i].Lng = &lat, &lng
		}
	}
	return json.Marshal(recs)
}

func DecodeStops(raw []byte) ([]Stop, error) {
	var recs []stopRecord
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, err
	}
	out := make([]Stop, len(recs))
	for i, rec := range recs {
		out[i].Address = rec.Address
		if rec.Lat != nil && rec.Lng != nil {
			out[i].Location = &types.Point{Lat: *rec.Lat, Lng: *rec.Lng}
		}
	}
	return out, nil
}
