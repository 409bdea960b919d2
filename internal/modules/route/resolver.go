// README: Route resolver geocodes stops, asks the routing engine for a path and reuses stored routes.
package route

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"googlemaps.github.io/maps"

	"ridedispatch/internal/types"
)

var (
	ErrNotFound     = errors.New("route not found")
	ErrNoRouteFound = errors.New("no route found")
	ErrInvalidStops = errors.New("a route needs a pickup and a destination")
	// ErrUnavailable marks geocoding/routing failures the caller may retry.
	ErrUnavailable = errors.New("routing service unavailable")
)

// MapsClient is the subset of *maps.Client the resolver needs.
type MapsClient interface {
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

type Store interface {
	FindByPath(ctx context.Context, path string) (*Route, error)
	// Save stores r unless a route with the same path exists, and returns the
	// stored route either way.
	Save(ctx context.Context, r *Route) (*Route, error)
}

type Cache interface {
	Get(ctx context.Context, key string) (*Route, bool, error)
	Set(ctx context.Context, key string, r *Route) error
}

type Options struct {
	Language string
	Region   string
}

type Resolver struct {
	maps  MapsClient
	store Store
	cache Cache
	clock types.Clock
	opts  Options
	log   logrus.FieldLogger
}

func NewResolver(client MapsClient, store Store, cache Cache, clock types.Clock, opts Options, log logrus.FieldLogger) *Resolver {
	return &Resolver{maps: client, store: store, cache: cache, clock: clock, opts: opts, log: log}
}

// NewMapsClient creates the Google Maps client used in production.
func NewMapsClient(apiKey string) (*maps.Client, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return client, nil
}

// Resolve returns the route through stops in order. Identical stop sequences
// are answered from the cache; identical paths reuse the stored route.
func (r *Resolver) Resolve(ctx context.Context, stops []Stop) (*Route, error) {
	if len(stops) < 2 {
		return nil, ErrInvalidStops
	}
	key := stopsKey(stops)
	if r.cache != nil {
		cached, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			r.log.WithError(err).Warn("route cache read failed")
		} else if ok {
			return cached, nil
		}
	}

	resolved := make([]Stop, len(stops))
	for i, s := range stops {
		if s.Location == nil {
			p, err := r.geocode(ctx, s.Address)
			if err != nil {
				return nil, err
			}
			s.Location = &p
		}
		resolved[i] = s
	}

	req := &maps.DirectionsRequest{
		Origin:      latLng(*resolved[0].Location),
		Destination: latLng(*resolved[len(resolved)-1].Location),
		Mode:        maps.TravelModeDriving,
		Language:    r.opts.Language,
		Region:      r.opts.Region,
	}
	for _, s := range resolved[1 : len(resolved)-1] {
		req.Waypoints = append(req.Waypoints, latLng(*s.Location))
	}
	routes, _, err := r.maps.Directions(ctx, req)
	if err != nil {
		if strings.Contains(err.Error(), "ZERO_RESULTS") {
			return nil, ErrNoRouteFound
		}
		return nil, fmt.Errorf("%w: directions: %v", ErrUnavailable, err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return nil, ErrNoRouteFound
	}

	best := routes[0]
	rt := &Route{
		ID:           types.ID(uuid.NewString()),
		Stops:        resolved,
		PathEncoding: best.OverviewPolyline.Points,
		CreatedAt:    r.clock.Now(),
	}
	var meters int
	var dur time.Duration
	for _, leg := range best.Legs {
		meters += leg.Distance.Meters
		dur += leg.Duration
	}
	rt.DistanceKm = float64(meters) / 1000.0
	rt.DurationSeconds = int64(dur / time.Second)
	if rt.PathEncoding == "" {
		rt.PathEncoding = key
	} else if geometry, err := geometryFromPolyline(rt.PathEncoding); err != nil {
		r.log.WithError(err).Warn("route geometry not decoded")
	} else {
		rt.Geometry = geometry
	}

	stored, err := r.store.FindByPath(ctx, rt.PathEncoding)
	if errors.Is(err, ErrNotFound) {
		stored, err = r.store.Save(ctx, rt)
	}
	if err != nil {
		return nil, fmt.Errorf("save route: %w", err)
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, key, stored); err != nil {
			r.log.WithError(err).Warn("route cache write failed")
		}
	}
	return stored, nil
}

func (r *Resolver) geocode(ctx context.Context, address string) (types.Point, error) {
	if strings.TrimSpace(address) == "" {
		return types.Point{}, ErrInvalidStops
	}
	res, err := r.maps.Geocode(ctx, &maps.GeocodingRequest{
		Address:  address,
		Language: r.opts.Language,
		Region:   r.opts.Region,
	})
	if err != nil {
		return types.Point{}, fmt.Errorf("%w: geocode %q: %v", ErrUnavailable, address, err)
	}
	if len(res) == 0 {
		return types.Point{}, fmt.Errorf("%w: address %q not found", ErrNoRouteFound, address)
	}
	loc := res[0].Geometry.Location
	return types.Point{Lat: loc.Lat, Lng: loc.Lng}, nil
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

// stopsKey identifies a stop sequence for caching.
func stopsKey(stops []Stop) string {
	h := sha1.New()
	for _, s := range stops {
		if s.Location != nil {
			fmt.Fprintf(h, "%.6f,%.6f|", s.Location.Lat, s.Location.Lng)
			continue
		}
		fmt.Fprintf(h, "%s|", strings.ToLower(strings.TrimSpace(s.Address)))
	}
	return hex.EncodeToString(h.Sum(nil))
}
