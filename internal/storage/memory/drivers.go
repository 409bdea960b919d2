package memory

import (
	"context"
	"time"

	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/types"
)

type Drivers struct {
	a *Arena
}

func (s *Drivers) GetDriver(_ context.Context, id types.ID, day time.Time) (*driver.Driver, error) {
	s.a.mu.RLock()
	defer s.a.mu.RUnlock()
	d, ok := s.a.driverAt(id, day)
	if !ok {
		return nil, driver.ErrNotFound
	}
	return &d, nil
}

func (s *Drivers) ActiveDriversOn(_ context.Context, day time.Time) ([]driver.Driver, error) {
	s.a.mu.RLock()
	defer s.a.mu.RUnlock()
	var out []driver.Driver
	for _, id := range s.a.sortedDriverIDs() {
		d, _ := s.a.driverAt(id, day)
		if d.Today != nil && d.Today.IsActive {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Drivers) SaveDailyLog(_ context.Context, l driver.DailyLog) error {
	s.a.mu.Lock()
	defer s.a.mu.Unlock()
	if _, ok := s.a.drivers[l.DriverID]; !ok {
		return driver.ErrNotFound
	}
	s.a.logs[logKey{l.DriverID, dayKey(l.Date)}] = l
	return nil
}

func (s *Drivers) UpdateVehicleLocation(_ context.Context, id types.ID, p types.Point) error {
	s.a.mu.Lock()
	defer s.a.mu.Unlock()
	d, ok := s.a.drivers[id]
	if !ok {
		return driver.ErrNotFound
	}
	d.Vehicle.Location = p
	s.a.drivers[id] = d
	return nil
}
