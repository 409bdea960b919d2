// README: Pricing service computes fares from the current price list.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"

	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/types"
)

var (
	ErrNoPriceList = errors.New("no price list configured")
	// ErrNoBasePrice is a misconfigured list rather than a missing one.
	ErrNoBasePrice   = fmt.Errorf("%w for vehicle type", ErrNoPriceList)
	ErrInvalidAmount = errors.New("distance must not be negative")
)

// Source supplies the latest price list or ErrNoPriceList.
type Source interface {
	Current(ctx context.Context) (PriceList, error)
}

type Service struct {
	store Source
}

func NewService(store Source) *Service {
	return &Service{store: store}
}

func (s *Service) Current(ctx context.Context) (PriceList, error) {
	return s.store.Current(ctx)
}

// Price is base(vehicleType) + distanceKm * perKm, rounded to the nearest
// minor unit.
func (s *Service) Price(ctx context.Context, vehicleType driver.VehicleType, distanceKm float64) (types.Money, error) {
	if distanceKm < 0 {
		return types.Money{}, ErrInvalidAmount
	}
	pl, err := s.store.Current(ctx)
	if err != nil {
		return types.Money{}, err
	}
	return Fare(pl, vehicleType, distanceKm)
}

func Fare(pl PriceList, vehicleType driver.VehicleType, distanceKm float64) (types.Money, error) {
	base, ok := pl.BasePrice[vehicleType]
	if !ok {
		return types.Money{}, fmt.Errorf("%w %s", ErrNoBasePrice, vehicleType)
	}
	amount := float64(base) + distanceKm*float64(pl.PerKm)
	return types.Money{Amount: int64(math.Round(amount)), Currency: pl.Currency}, nil
}
