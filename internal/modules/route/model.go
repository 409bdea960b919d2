// README: Route value object; content-addressed by its encoded path.
package route

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/twpayne/go-geom"
	gjson "github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"
	"googlemaps.github.io/maps"

	"ridedispatch/internal/types"
)

type Stop struct {
	Address  string
	Location *types.Point
}

// Route is immutable once resolved and may be shared by many rides.
type Route struct {
	ID              types.ID
	Stops           []Stop
	DistanceKm      float64
	DurationSeconds int64
	// PathEncoding is the Google encoded polyline of the routed path.
	PathEncoding string
	// Geometry is the path as a WKB line string (SRID 4326).
	Geometry  []byte
	CreatedAt time.Time
}

func (r Route) EstimatedDuration() time.Duration {
	return time.Duration(r.DurationSeconds) * time.Second
}

func (r Route) Pickup() Stop {
	if len(r.Stops) == 0 {
		return Stop{}
	}
	return r.Stops[0]
}

func (r Route) Destination() Stop {
	if len(r.Stops) == 0 {
		return Stop{}
	}
	return r.Stops[len(r.Stops)-1]
}

// DestinationPoint returns the last stop's coordinates, or the zero point.
func (r Route) DestinationPoint() types.Point {
	if loc := r.Destination().Location; loc != nil {
		return *loc
	}
	return types.Point{}
}

// GeoJSON renders the stored geometry for API consumers.
func (r Route) GeoJSON() ([]byte, error) {
	if len(r.Geometry) == 0 {
		return nil, nil
	}
	g, err := wkb.Unmarshal(r.Geometry)
	if err != nil {
		return nil, fmt.Errorf("decode route geometry: %w", err)
	}
	return gjson.Marshal(g)
}

// geometryFromPolyline converts an encoded polyline to WKB.
func geometryFromPolyline(path string) ([]byte, error) {
	points, err := maps.DecodePolyline(path)
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	if len(points) < 2 {
		return nil, nil
	}
	coords := make([]geom.Coord, len(points))
	for i, p := range points {
		coords[i] = geom.Coord{p.Lng, p.Lat}
	}
	ls, err := geom.NewLineString(geom.XY).SetCoords(coords)
	if err != nil {
		return nil, err
	}
	ls.SetSRID(4326)
	return wkb.Marshal(ls, binary.LittleEndian)
}
