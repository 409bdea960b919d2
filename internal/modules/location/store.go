// README: Vehicle position index backed by Redis GEO, with an in-process fallback.
package location

import (
	"context"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"

	"ridedispatch/internal/types"
)

const vehicleGeoKey = "location:vehicles"

// DriverLocation represents a driver's position with computed distance.
type DriverLocation struct {
	DriverID types.ID
	Position types.Point
	Distance float64 // km from the queried origin
}

// GeoIndex answers "which vehicles are near this point".
type GeoIndex interface {
	Add(ctx context.Context, id types.ID, p types.Point) error
	Remove(ctx context.Context, id types.ID) error
	Search(ctx context.Context, origin types.Point, radiusKm float64, limit int) ([]DriverLocation, error)
}

type RedisIndex struct {
	redis *redis.Client
}

func NewRedisIndex(redis *redis.Client) *RedisIndex {
	return &RedisIndex{redis: redis}
}

func (s *RedisIndex) Add(ctx context.Context, id types.ID, p types.Point) error {
	return s.redis.GeoAdd(ctx, vehicleGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

func (s *RedisIndex) Remove(ctx context.Context, id types.ID) error {
	return s.redis.ZRem(ctx, vehicleGeoKey, string(id)).Err()
}

func (s *RedisIndex) Search(ctx context.Context, origin types.Point, radiusKm float64, limit int) ([]DriverLocation, error) {
	res, err := s.redis.GeoSearchLocation(ctx, vehicleGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  origin.Lng,
			Latitude:   origin.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]DriverLocation, 0, len(res))
	for _, r := range res {
		out = append(out, DriverLocation{
			DriverID: types.ID(r.Name),
			Position: types.Point{Lat: r.Latitude, Lng: r.Longitude},
			Distance: r.Dist,
		})
	}
	return out, nil
}

// MemoryIndex is a naive scan used when Redis is not configured.
type MemoryIndex struct {
	mu     sync.RWMutex
	points map[types.ID]types.Point
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{points: make(map[types.ID]types.Point)}
}

func (m *MemoryIndex) Add(_ context.Context, id types.ID, p types.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[id] = p
	return nil
}

func (m *MemoryIndex) Remove(_ context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.points, id)
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, origin types.Point, radiusKm float64, limit int) ([]DriverLocation, error) {
	m.mu.RLock()
	var result []DriverLocation
	for id, p := range m.points {
		if d := DistanceKm(origin, p); d <= radiusKm {
			result = append(result, DriverLocation{DriverID: id, Position: p, Distance: d})
		}
	}
	m.mu.RUnlock()

	// map order is random; equal distances come back lowest id first
	sort.Slice(result, func(i, j int) bool { return result[i].DriverID < result[j].DriverID })
	sortByDistance(result, func(d DriverLocation) float64 { return d.Distance })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
