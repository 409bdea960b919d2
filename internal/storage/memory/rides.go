package memory

import (
	"context"
	"fmt"
	"sort"

	"ridedispatch/internal/modules/ride"
	"ridedispatch/internal/types"
)

type Rides struct {
	a *Arena
}

func (s *Rides) Get(_ context.Context, id types.ID) (*ride.Ride, error) {
	s.a.mu.RLock()
	defer s.a.mu.RUnlock()
	r, ok := s.a.rides[id]
	if !ok {
		return nil, ride.ErrNotFound
	}
	r = copyRide(r)
	return &r, nil
}

func (s *Rides) CreateRide(_ context.Context, r *ride.Ride, driverVersion int) error {
	if r.DriverID == nil {
		return fmt.Errorf("%w: ride has no driver", ride.ErrInvalidState)
	}
	s.a.mu.Lock()
	defer s.a.mu.Unlock()
	d, ok := s.a.drivers[*r.DriverID]
	if !ok || d.Version != driverVersion {
		return ride.ErrConflict
	}
	if _, exists := s.a.rides[r.ID]; exists {
		return ride.ErrConflict
	}
	d.Version++
	s.a.drivers[d.ID] = d
	s.a.rides[r.ID] = copyRide(*r)
	if _, ok := s.a.routes[r.Route.ID]; !ok && r.Route.ID != "" {
		s.a.routes[r.Route.ID] = r.Route
	}
	return nil
}

func (s *Rides) UpdateRide(_ context.Context, ch ride.Change) error {
	s.a.mu.Lock()
	defer s.a.mu.Unlock()
	cur, ok := s.a.rides[ch.Ride.ID]
	if !ok {
		return ride.ErrNotFound
	}
	if cur.Status != ch.From || cur.StatusVersion != ch.Ride.StatusVersion {
		return ride.ErrConflict
	}
	next := copyRide(*ch.Ride)
	next.StatusVersion++
	s.a.rides[next.ID] = next
	if next.DriverID != nil {
		if d, ok := s.a.drivers[*next.DriverID]; ok {
			d.Version++
			s.a.drivers[d.ID] = d
		}
	}
	if ch.Panic != nil {
		s.a.panics = append(s.a.panics, *ch.Panic)
	}
	ch.Ride.StatusVersion = next.StatusVersion
	return nil
}

func (s *Rides) RidesByDriver(_ context.Context, driverID types.ID, statuses ...ride.Status) ([]ride.Ride, error) {
	return s.filter(func(r ride.Ride) bool {
		return r.AssignedTo(driverID) && hasStatus(r.Status, statuses)
	}), nil
}

func (s *Rides) RidesByStatus(_ context.Context, statuses ...ride.Status) ([]ride.Ride, error) {
	return s.filter(func(r ride.Ride) bool { return hasStatus(r.Status, statuses) }), nil
}

func (s *Rides) HasReview(_ context.Context, rideID types.ID, passengerEmail string) (bool, error) {
	s.a.mu.RLock()
	defer s.a.mu.RUnlock()
	_, ok := s.a.reviews[reviewKey{rideID, emailKey(passengerEmail)}]
	return ok, nil
}

func (s *Rides) SaveReview(_ context.Context, rv *ride.Review) error {
	s.a.mu.Lock()
	defer s.a.mu.Unlock()
	k := reviewKey{rv.RideID, emailKey(rv.PassengerEmail)}
	if _, ok := s.a.reviews[k]; ok {
		return ride.ErrNotReviewable
	}
	s.a.reviews[k] = *rv
	return nil
}

func (s *Rides) filter(keep func(ride.Ride) bool) []ride.Ride {
	s.a.mu.RLock()
	defer s.a.mu.RUnlock()
	var out []ride.Ride
	for _, r := range s.a.rides {
		if keep(r) {
			out = append(out, copyRide(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func hasStatus(s ride.Status, in []ride.Status) bool {
	for _, x := range in {
		if s == x {
			return true
		}
	}
	return false
}
