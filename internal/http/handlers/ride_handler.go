// README: Ride handlers for estimate/create/get and the lifecycle actions.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/http/middleware"
	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/modules/ride"
	"ridedispatch/internal/types"
)

type RideHandler struct {
	rides *ride.Service
}

func NewRideHandler(svc *ride.Service) *RideHandler {
	return &RideHandler{rides: svc}
}

type estimateReq struct {
	Stops       []stopDTO `json:"stops" binding:"required,min=2"`
	VehicleType string    `json:"vehicle_type" binding:"required"`
}

func (h *RideHandler) Estimate(c *gin.Context) {
	var req estimateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	est, err := h.rides.Estimate(c.Request.Context(), ride.EstimateCommand{
		Stops:       toStops(req.Stops),
		VehicleType: driver.VehicleType(strings.ToUpper(req.VehicleType)),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"route": fromRoute(*est.Route), "price": fromMoney(est.Price)})
}

type createRideReq struct {
	Stops         []stopDTO  `json:"stops" binding:"required,min=2"`
	VehicleType   string     `json:"vehicle_type" binding:"required"`
	PetFriendly   bool       `json:"pet_friendly"`
	BabyFriendly  bool       `json:"baby_friendly"`
	RequiredSeats int        `json:"required_seats"`
	ScheduledFor  *time.Time `json:"scheduled_for"`
	// Passengers lists co-riders by email; the caller is always included.
	Passengers []string `json:"passengers"`
}

func (h *RideHandler) Create(c *gin.Context) {
	var req createRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	me := caller(c)
	if me.Email == "" {
		writeError(c, http.StatusBadRequest, "caller has no email")
		return
	}
	passengers := []ride.Passenger{{ID: me.ID, Email: me.Email}}
	seen := map[string]bool{strings.ToLower(me.Email): true}
	for _, email := range req.Passengers {
		email = strings.TrimSpace(email)
		if email == "" || seen[strings.ToLower(email)] {
			continue
		}
		seen[strings.ToLower(email)] = true
		passengers = append(passengers, ride.Passenger{Email: email})
	}

	r, err := h.rides.Create(c.Request.Context(), ride.CreateCommand{
		Passengers: passengers,
		Stops:      toStops(req.Stops),
		Preferences: driver.Preferences{
			VehicleType:   driver.VehicleType(strings.ToUpper(req.VehicleType)),
			PetFriendly:   req.PetFriendly,
			BabyFriendly:  req.BabyFriendly,
			RequiredSeats: req.RequiredSeats,
		},
		ScheduledFor: req.ScheduledFor,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, fromRide(r))
}

// Get is visible to the ride's driver and passengers only.
func (h *RideHandler) Get(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	r, err := h.rides.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if ride.ParticipantRole(r, caller(c)) == ride.RoleNone {
		writeServiceError(c, ride.ErrAccessDenied)
		return
	}
	writeJSON(c, http.StatusOK, fromRide(r))
}

func (h *RideHandler) Start(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	r, err := h.rides.Start(c.Request.Context(), ride.StartCommand{
		RideID:   id,
		DriverID: types.ID(middleware.CallerUID(c)),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, fromRide(r))
}

type completeReq struct {
	DistanceKm *float64 `json:"distance_km"`
}

func (h *RideHandler) Complete(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	var req completeReq
	// An empty body means "price on the route distance".
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	r, err := h.rides.Complete(c.Request.Context(), ride.CompleteCommand{
		RideID:             id,
		DriverID:           types.ID(middleware.CallerUID(c)),
		MeasuredDistanceKm: req.DistanceKm,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, fromRide(r))
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *RideHandler) Cancel(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	var req cancelReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	r, err := h.rides.Cancel(c.Request.Context(), ride.CancelCommand{RideID: id, Actor: caller(c), Reason: req.Reason})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, fromRide(r))
}

type panicReq struct {
	VehicleLocation pointDTO `json:"vehicle_location"`
}

func (h *RideHandler) Panic(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	var req panicReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	r, err := h.rides.Panic(c.Request.Context(), ride.PanicCommand{
		RideID:          id,
		Actor:           caller(c),
		VehicleLocation: req.VehicleLocation.point(),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, fromRide(r))
}

func (h *RideHandler) Reviewable(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	can, err := h.rides.Reviewable(c.Request.Context(), id, caller(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ride_id": id, "reviewable": can})
}

type reviewReq struct {
	DriverRating  int    `json:"driver_rating" binding:"required"`
	VehicleRating int    `json:"vehicle_rating" binding:"required"`
	Comment       string `json:"comment"`
}

func (h *RideHandler) Review(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	var req reviewReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	rv, err := h.rides.Review(c.Request.Context(), ride.ReviewCommand{
		RideID:        id,
		Actor:         caller(c),
		DriverRating:  req.DriverRating,
		VehicleRating: req.VehicleRating,
		Comment:       req.Comment,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{
		"id":             rv.ID,
		"ride_id":        rv.RideID,
		"driver_rating":  rv.DriverRating,
		"vehicle_rating": rv.VehicleRating,
		"comment":        rv.Comment,
		"created_at":     rv.CreatedAt,
	})
}
