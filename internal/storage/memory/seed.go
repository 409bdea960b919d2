package memory

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/modules/pricing"
	"ridedispatch/internal/types"
)

// Seed is the JSON document accepted by LoadSeed.
type Seed struct {
	Drivers []struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Vehicle struct {
			Type         string  `json:"type"`
			Plate        string  `json:"plate"`
			Seats        int     `json:"seats"`
			PetFriendly  bool    `json:"pet_friendly"`
			BabyFriendly bool    `json:"baby_friendly"`
			Lat          float64 `json:"lat"`
			Lng          float64 `json:"lng"`
		} `json:"vehicle"`
	} `json:"drivers"`
	PriceList *struct {
		BasePrice map[string]int64 `json:"base_price"`
		PerKm     int64            `json:"per_km"`
		Currency  string           `json:"currency"`
	} `json:"price_list"`
}

// LoadSeed populates drivers and the price list for local runs.
func (a *Arena) LoadSeed(r io.Reader, now time.Time) error {
	var seed Seed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}
	for _, sd := range seed.Drivers {
		vt := driver.VehicleType(sd.Vehicle.Type)
		if sd.ID == "" || !vt.Valid() {
			return fmt.Errorf("seed driver %q: invalid id or vehicle type", sd.ID)
		}
		a.PutDriver(driver.Driver{
			ID:    types.ID(sd.ID),
			Email: sd.Email,
			Name:  sd.Name,
			Vehicle: driver.Vehicle{
				Type:         vt,
				Plate:        sd.Vehicle.Plate,
				Seats:        sd.Vehicle.Seats,
				PetFriendly:  sd.Vehicle.PetFriendly,
				BabyFriendly: sd.Vehicle.BabyFriendly,
				Location:     types.Point{Lat: sd.Vehicle.Lat, Lng: sd.Vehicle.Lng},
			},
		})
	}
	if pl := seed.PriceList; pl != nil {
		list := pricing.PriceList{
			BasePrice: map[driver.VehicleType]int64{},
			PerKm:     pl.PerKm,
			Currency:  pl.Currency,
			CreatedAt: now,
		}
		for k, v := range pl.BasePrice {
			list.BasePrice[driver.VehicleType(k)] = v
		}
		a.mu.Lock()
		list.ID = int64(len(a.prices) + 1)
		a.prices = append(a.prices, list)
		a.mu.Unlock()
	}
	return nil
}
