// README: Place search used by clients to pick stops before requesting a ride.
package route

import (
	"context"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	"ridedispatch/internal/types"
)

// ErrEmptyQuery is a bad stop selection, reported like any invalid stop.
var ErrEmptyQuery = fmt.Errorf("%w: empty place query", ErrInvalidStops)

const (
	defaultPlaceLimit = 5
	placeBiasMeters   = 5000
)

// Place is a suggested stop.
type Place struct {
	Name     string
	Address  string
	PlaceID  string
	Location types.Point
}

func (p Place) Stop() Stop {
	loc := p.Location
	return Stop{Address: p.Address, Location: &loc}
}

type PlacesClient interface {
	TextSearch(ctx context.Context, r *maps.TextSearchRequest) (maps.PlacesSearchResponse, error)
}

type Places struct {
	client PlacesClient
	opts   Options
}

func NewPlaces(client PlacesClient, opts Options) *Places {
	return &Places{client: client, opts: opts}
}

// Search returns up to limit places matching query, biased toward near when
// it is given. Results with the same place id are reported once.
func (p *Places) Search(ctx context.Context, query string, near *types.Point, limit int) ([]Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = defaultPlaceLimit
	}

	req := &maps.TextSearchRequest{
		Query:    query,
		Language: p.opts.Language,
		Region:   p.opts.Region,
	}
	if near != nil {
		req.Location = &maps.LatLng{Lat: near.Lat, Lng: near.Lng}
		req.Radius = placeBiasMeters
	}
	resp, err := p.client.TextSearch(ctx, req)
	if err != nil {
		if strings.Contains(err.Error(), "ZERO_RESULTS") {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: places: %v", ErrUnavailable, err)
	}

	seen := make(map[string]bool, len(resp.Results))
	out := make([]Place, 0, limit)
	for _, res := range resp.Results {
		if res.PlaceID != "" && seen[res.PlaceID] {
			continue
		}
		seen[res.PlaceID] = true
		out = append(out, Place{
			Name:     res.Name,
			Address:  res.FormattedAddress,
			PlaceID:  res.PlaceID,
			Location: types.Point{Lat: res.Geometry.Location.Lat, Lng: res.Geometry.Location.Lng},
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
