package memory

import (
	"context"

	"ridedispatch/internal/modules/pricing"
	"ridedispatch/internal/modules/route"
)

type Routes struct {
	a *Arena
}

func (s *Routes) FindByPath(_ context.Context, path string) (*route.Route, error) {
	s.a.mu.RLock()
	defer s.a.mu.RUnlock()
	id, ok := s.a.routesByPath[path]
	if !ok {
		return nil, route.ErrNotFound
	}
	r := s.a.routes[id]
	return &r, nil
}

func (s *Routes) Save(_ context.Context, r *route.Route) (*route.Route, error) {
	s.a.mu.Lock()
	defer s.a.mu.Unlock()
	if id, ok := s.a.routesByPath[r.PathEncoding]; ok {
		existing := s.a.routes[id]
		return &existing, nil
	}
	s.a.routes[r.ID] = *r
	s.a.routesByPath[r.PathEncoding] = r.ID
	saved := *r
	return &saved, nil
}

type Prices struct {
	a *Arena
}

func (s *Prices) Current(context.Context) (pricing.PriceList, error) {
	s.a.mu.RLock()
	defer s.a.mu.RUnlock()
	if len(s.a.prices) == 0 {
		return pricing.PriceList{}, pricing.ErrNoPriceList
	}
	return s.a.prices[len(s.a.prices)-1], nil
}

func (s *Prices) Save(_ context.Context, pl pricing.PriceList) (pricing.PriceList, error) {
	s.a.mu.Lock()
	defer s.a.mu.Unlock()
	pl.ID = int64(len(s.a.prices) + 1)
	s.a.prices = append(s.a.prices, pl)
	return pl, nil
}
