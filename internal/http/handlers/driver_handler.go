// README: Driver handlers for activity, vehicle position and assigned rides.
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/http/middleware"
	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/modules/location"
	"ridedispatch/internal/modules/ride"
	"ridedispatch/internal/types"
)

type DriverHandler struct {
	drivers  *driver.Service
	location *location.Service
	rides    *ride.Service
}

func NewDriverHandler(drivers *driver.Service, loc *location.Service, rides *ride.Service) *DriverHandler {
	return &DriverHandler{drivers: drivers, location: loc, rides: rides}
}

func (h *DriverHandler) Me(c *gin.Context) {
	d, err := h.drivers.Get(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := gin.H{
		"id":    d.ID,
		"email": d.Email,
		"name":  d.Name,
		"vehicle": gin.H{
			"type":          d.Vehicle.Type,
			"plate":         d.Vehicle.Plate,
			"seats":         d.Vehicle.Seats,
			"pet_friendly":  d.Vehicle.PetFriendly,
			"baby_friendly": d.Vehicle.BabyFriendly,
			"location":      pointDTO{Lat: d.Vehicle.Location.Lat, Lng: d.Vehicle.Location.Lng},
		},
	}
	if d.Today != nil {
		out["today"] = fromDailyLog(d.Today)
	}
	writeJSON(c, http.StatusOK, out)
}

type activityReq struct {
	Active *bool `json:"active" binding:"required"`
}

func (h *DriverHandler) SetActivity(c *gin.Context) {
	var req activityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	id := types.ID(middleware.CallerUID(c))
	log, err := h.drivers.SetActive(c.Request.Context(), id, *req.Active)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if !log.IsActive {
		if err := h.location.Withdraw(c.Request.Context(), id); err != nil {
			writeServiceError(c, err)
			return
		}
	}
	writeJSON(c, http.StatusOK, fromDailyLog(log))
}

func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	var req pointDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.location.UpdateVehicle(c.Request.Context(), location.Update{
		DriverID: types.ID(middleware.CallerUID(c)),
		Position: req.point(),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Rides lists the caller's rides, by default the ones still holding them.
// ?status=FINISHED,PANIC selects others.
func (h *DriverHandler) Rides(c *gin.Context) {
	var statuses []ride.Status
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, ride.Status(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	rides, err := h.rides.DriverRides(c.Request.Context(), types.ID(middleware.CallerUID(c)), statuses...)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]rideResponse, 0, len(rides))
	for i := range rides {
		out = append(out, fromRide(&rides[i]))
	}
	writeJSON(c, http.StatusOK, gin.H{"rides": out})
}

// Nearby serves the map view of vehicles around a point.
func (h *DriverHandler) Nearby(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	radius := 5.0
	if raw := c.Query("radius_km"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid radius_km")
			return
		}
		radius = v
	}
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = v
	}

	found, err := h.location.Nearby(c.Request.Context(), types.Point{Lat: lat, Lng: lng}, radius, limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]gin.H, 0, len(found))
	for _, f := range found {
		out = append(out, gin.H{
			"driver_id":   f.DriverID,
			"location":    pointDTO{Lat: f.Position.Lat, Lng: f.Position.Lng},
			"distance_km": f.Distance,
		})
	}
	writeJSON(c, http.StatusOK, gin.H{"vehicles": out})
}
