// README: Location service records vehicle positions and answers nearby queries.
package location

import (
	"context"
	"errors"
	"math"

	"ridedispatch/internal/types"
)

var ErrInvalidPosition = errors.New("invalid position")

// VehicleStore persists the authoritative vehicle position used for matching.
type VehicleStore interface {
	UpdateVehicleLocation(ctx context.Context, driverID types.ID, p types.Point) error
}

type Service struct {
	vehicles VehicleStore
	index    GeoIndex
}

func NewService(vehicles VehicleStore, index GeoIndex) *Service {
	return &Service{vehicles: vehicles, index: index}
}

type Update struct {
	DriverID types.ID
	Position types.Point
}

func (s *Service) UpdateVehicle(ctx context.Context, u Update) error {
	if !validPoint(u.Position) {
		return ErrInvalidPosition
	}
	if err := s.vehicles.UpdateVehicleLocation(ctx, u.DriverID, u.Position); err != nil {
		return err
	}
	return s.index.Add(ctx, u.DriverID, u.Position)
}

// Withdraw drops the driver from nearby results until the next position update.
func (s *Service) Withdraw(ctx context.Context, driverID types.ID) error {
	return s.index.Remove(ctx, driverID)
}

// Nearby lists vehicles within radiusKm of origin, closest first.
func (s *Service) Nearby(ctx context.Context, origin types.Point, radiusKm float64, limit int) ([]DriverLocation, error) {
	if !validPoint(origin) || radiusKm <= 0 {
		return nil, ErrInvalidPosition
	}
	return s.index.Search(ctx, origin, radiusKm, limit)
}

func validPoint(p types.Point) bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
