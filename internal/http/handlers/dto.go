// README: Request and response bodies shared by the HTTP handlers.
package handlers

import (
	"encoding/json"
	"time"

	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/modules/ride"
	"ridedispatch/internal/modules/route"
	"ridedispatch/internal/types"
)

type pointDTO struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p pointDTO) point() types.Point { return types.Point{Lat: p.Lat, Lng: p.Lng} }

type stopDTO struct {
	Address  string    `json:"address"`
	Location *pointDTO `json:"location,omitempty"`
}

func toStops(in []stopDTO) []route.Stop {
	out := make([]route.Stop, len(in))
	for i, s := range in {
		out[i] = route.Stop{Address: s.Address}
		if s.Location != nil {
			p := s.Location.point()
			out[i].Location = &p
		}
	}
	return out
}

func fromStops(in []route.Stop) []stopDTO {
	out := make([]stopDTO, len(in))
	for i, s := range in {
		out[i] = stopDTO{Address: s.Address}
		if s.Location != nil {
			out[i].Location = &pointDTO{Lat: s.Location.Lat, Lng: s.Location.Lng}
		}
	}
	return out
}

type moneyDTO struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func fromMoney(m types.Money) moneyDTO { return moneyDTO{Amount: m.Amount, Currency: m.Currency} }

type routeDTO struct {
	ID              types.ID        `json:"id,omitempty"`
	Stops           []stopDTO       `json:"stops"`
	DistanceKm      float64         `json:"distance_km"`
	DurationSeconds int64           `json:"duration_seconds"`
	Polyline        string          `json:"polyline,omitempty"`
	Geometry        json.RawMessage `json:"geometry,omitempty"`
}

func fromRoute(r route.Route) routeDTO {
	out := routeDTO{
		ID:              r.ID,
		Stops:           fromStops(r.Stops),
		DistanceKm:      r.DistanceKm,
		DurationSeconds: r.DurationSeconds,
		Polyline:        r.PathEncoding,
	}
	// A route with undecodable geometry is still useful without it.
	if g, err := r.GeoJSON(); err == nil && len(g) > 0 {
		out.Geometry = g
	}
	return out
}

type rideResponse struct {
	ID                 types.ID    `json:"id"`
	Status             ride.Status `json:"status"`
	DriverID           *types.ID   `json:"driver_id,omitempty"`
	DriverEmail        string      `json:"driver_email,omitempty"`
	Passengers         []string    `json:"passengers"`
	Route              routeDTO    `json:"route"`
	VehicleType        string      `json:"vehicle_type"`
	PetFriendly        bool        `json:"pet_friendly"`
	BabyFriendly       bool        `json:"baby_friendly"`
	RequiredSeats      int         `json:"required_seats"`
	ScheduledFor       *time.Time  `json:"scheduled_for,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	StartTime          *time.Time  `json:"start_time,omitempty"`
	EndTime            *time.Time  `json:"end_time,omitempty"`
	EstimatedPrice     moneyDTO    `json:"estimated_price"`
	FinalPrice         *moneyDTO   `json:"final_price,omitempty"`
	MeasuredDistanceKm *float64    `json:"measured_distance_km,omitempty"`
	CancellationReason string      `json:"cancellation_reason,omitempty"`
}

func fromRide(r *ride.Ride) rideResponse {
	out := rideResponse{
		ID:                 r.ID,
		Status:             r.Status,
		DriverID:           r.DriverID,
		DriverEmail:        r.DriverEmail,
		Passengers:         make([]string, 0, len(r.Passengers)),
		Route:              fromRoute(r.Route),
		VehicleType:        string(r.Vehicle.VehicleType),
		PetFriendly:        r.Vehicle.PetFriendly,
		BabyFriendly:       r.Vehicle.BabyFriendly,
		RequiredSeats:      r.Vehicle.RequiredSeats,
		ScheduledFor:       r.ScheduledFor,
		CreatedAt:          r.CreatedAt,
		StartTime:          r.StartTime,
		EndTime:            r.EndTime,
		EstimatedPrice:     fromMoney(r.EstimatedPrice),
		MeasuredDistanceKm: r.MeasuredDistanceKm,
		CancellationReason: r.CancellationReason,
	}
	for _, p := range r.Passengers {
		out.Passengers = append(out.Passengers, p.Email)
	}
	if r.FinalPrice != nil {
		m := fromMoney(*r.FinalPrice)
		out.FinalPrice = &m
	}
	return out
}

type dailyLogResponse struct {
	DriverID      types.ID   `json:"driver_id"`
	Date          string     `json:"date"`
	IsActive      bool       `json:"is_active"`
	ActiveSeconds int64      `json:"active_seconds"`
	ActiveSince   *time.Time `json:"active_since,omitempty"`
}

func fromDailyLog(l *driver.DailyLog) dailyLogResponse {
	return dailyLogResponse{
		DriverID:      l.DriverID,
		Date:          l.Date.Format(time.DateOnly),
		IsActive:      l.IsActive,
		ActiveSeconds: l.ActiveSeconds,
		ActiveSince:   l.LastActivatedAt,
	}
}
