// README: Place search tests against a fake Places client.
package route

import (
	"context"
	"errors"
	"testing"

	"googlemaps.github.io/maps"

	"ridedispatch/internal/types"
)

type fakePlaces struct {
	last *maps.TextSearchRequest
	resp maps.PlacesSearchResponse
	err  error
}

func (f *fakePlaces) TextSearch(_ context.Context, r *maps.TextSearchRequest) (maps.PlacesSearchResponse, error) {
	f.last = r
	return f.resp, f.err
}

func result(id, name string, lat, lng float64) maps.PlacesSearchResult {
	return maps.PlacesSearchResult{
		PlaceID:          id,
		Name:             name,
		FormattedAddress: name + " address",
		Geometry:         maps.AddressGeometry{Location: maps.LatLng{Lat: lat, Lng: lng}},
	}
}

func TestPlacesSearch(t *testing.T) {
	client := &fakePlaces{resp: maps.PlacesSearchResponse{Results: []maps.PlacesSearchResult{
		result("a", "Station", 25.04, 121.51),
		result("a", "Station", 25.04, 121.51),
		result("b", "Museum", 25.10, 121.54),
		result("c", "Park", 25.03, 121.53),
	}}}
	p := NewPlaces(client, Options{Language: "en"})
	near := types.Point{Lat: 25.03, Lng: 121.56}

	got, err := p.Search(context.Background(), "  station ", &near, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].PlaceID != "a" || got[1].PlaceID != "b" {
		t.Fatalf("unexpected places %+v", got)
	}
	if client.last.Query != "station" || client.last.Location == nil || client.last.Radius != placeBiasMeters {
		t.Errorf("request not biased: %+v", client.last)
	}
	if s := got[0].Stop(); s.Location == nil || s.Location.Lat != 25.04 || s.Address != "Station address" {
		t.Errorf("unexpected stop %+v", s)
	}
}

func TestPlacesSearchErrors(t *testing.T) {
	p := NewPlaces(&fakePlaces{}, Options{})
	if _, err := p.Search(context.Background(), " ", nil, 0); !errors.Is(err, ErrInvalidStops) {
		t.Errorf("empty query: got %v", err)
	}

	p = NewPlaces(&fakePlaces{err: errors.New("maps: ZERO_RESULTS - ")}, Options{})
	if got, err := p.Search(context.Background(), "nowhere", nil, 0); err != nil || len(got) != 0 {
		t.Errorf("zero results: got %v, %v", got, err)
	}

	p = NewPlaces(&fakePlaces{err: errors.New("OVER_QUERY_LIMIT")}, Options{})
	if _, err := p.Search(context.Background(), "x", nil, 0); !errors.Is(err, ErrUnavailable) {
		t.Errorf("outage: got %v", err)
	}
}
