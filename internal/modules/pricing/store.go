// README: Price list store backed by PostgreSQL.
package pricing

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridedispatch/internal/modules/driver"
)

type PgStore struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) Current(ctx context.Context) (PriceList, error) {
	var pl PriceList
	var base []byte
	err := s.db.QueryRow(ctx, `
		SELECT id, base_prices, per_km, currency, created_at
		FROM price_lists
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
	).Scan(&pl.ID, &base, &pl.PerKm, &pl.Currency, &pl.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PriceList{}, ErrNoPriceList
	}
	if err != nil {
		return PriceList{}, err
	}
	pl.BasePrice = map[driver.VehicleType]int64{}
	if err := json.Unmarshal(base, &pl.BasePrice); err != nil {
		return PriceList{}, err
	}
	return pl, nil
}

func (s *PgStore) Save(ctx context.Context, pl PriceList) (PriceList, error) {
	base, err := json.Marshal(pl.BasePrice)
	if err != nil {
		return PriceList{}, err
	}
	err = s.db.QueryRow(ctx, `
		INSERT INTO price_lists (base_prices, per_km, currency, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		base, pl.PerKm, pl.Currency, pl.CreatedAt,
	).Scan(&pl.ID)
	return pl, err
}
