// README: Ride service implements the ride lifecycle and driver assignment.
package ride

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/modules/route"
	"ridedispatch/internal/observability"
	"ridedispatch/internal/types"
)

var (
	ErrNotFound     = errors.New("ride not found")
	ErrInvalidState = errors.New("invalid state transition")
	ErrConflict     = errors.New("ride state conflict")
	ErrAccessDenied = errors.New("access denied")
	ErrBadRequest   = errors.New("bad request")

	ErrForeignRide        = fmt.Errorf("%w: ride is assigned to another driver", ErrAccessDenied)
	ErrRideAlreadyStarted = fmt.Errorf("%w: ride already started", ErrInvalidState)
	ErrCancelRideExpired  = fmt.Errorf("%w: cancellation window has passed", ErrInvalidState)
	ErrNotReviewable      = fmt.Errorf("%w: ride cannot be reviewed", ErrInvalidState)
	ErrReasonRequired     = fmt.Errorf("%w: cancellation reason required", ErrBadRequest)

	// ErrNoSuitableDrivers is returned by matchers and by Create once every
	// assignment attempt lost to a concurrent commit.
	ErrNoSuitableDrivers = errors.New("no suitable drivers")
)

// Store persists rides. Mutations are compare-and-set: CreateRide checks the
// driver's version and UpdateRide checks the ride's StatusVersion, and both
// bump the driver's version on success.
type Store interface {
	Get(ctx context.Context, id types.ID) (*Ride, error)
	CreateRide(ctx context.Context, r *Ride, driverVersion int) error
	UpdateRide(ctx context.Context, ch Change) error
	RidesByDriver(ctx context.Context, driverID types.ID, statuses ...Status) ([]Ride, error)
	RidesByStatus(ctx context.Context, statuses ...Status) ([]Ride, error)
	HasReview(ctx context.Context, rideID types.ID, passengerEmail string) (bool, error)
	SaveReview(ctx context.Context, rv *Review) error
}

// Change moves Ride from status From to Ride.Status. Ride.StatusVersion is
// the version read before the change and is incremented on commit.
type Change struct {
	Ride  *Ride
	From  Status
	Panic *PanicRecord
}

type MatchRequest struct {
	Pickup       types.Point
	Preferences  driver.Preferences
	ScheduledFor *time.Time
}

// Selection is a matched driver and the driver version observed while
// matching, which the commit must still see.
type Selection struct {
	Driver     driver.Driver
	Version    int
	Stage      string
	DistanceKm float64
}

type Matcher interface {
	Match(ctx context.Context, req MatchRequest) (Selection, error)
}

type Routes interface {
	Resolve(ctx context.Context, stops []route.Stop) (*route.Route, error)
}

type Pricing interface {
	Price(ctx context.Context, vehicleType driver.VehicleType, distanceKm float64) (types.Money, error)
}

type Notifier interface {
	Emit(ctx context.Context, e Event) error
}

type Policy struct {
	CancelWindow      time.Duration
	ReviewWindow      time.Duration
	MaxAssignAttempts int
}

func DefaultPolicy() Policy {
	return Policy{CancelWindow: 10 * time.Minute, ReviewWindow: 72 * time.Hour, MaxAssignAttempts: 3}
}

type Service struct {
	store    Store
	matcher  Matcher
	routes   Routes
	pricing  Pricing
	notifier Notifier
	clock    types.Clock
	policy   Policy
	log      logrus.FieldLogger
}

func NewService(store Store, matcher Matcher, routes Routes, pricing Pricing, notifier Notifier, clock types.Clock, policy Policy, log logrus.FieldLogger) *Service {
	if policy.MaxAssignAttempts <= 0 {
		policy.MaxAssignAttempts = 1
	}
	return &Service{
		store:    store,
		matcher:  matcher,
		routes:   routes,
		pricing:  pricing,
		notifier: notifier,
		clock:    clock,
		policy:   policy,
		log:      log,
	}
}

type CreateCommand struct {
	Passengers   []Passenger
	Stops        []route.Stop
	Preferences  driver.Preferences
	ScheduledFor *time.Time
}

type StartCommand struct {
	RideID   types.ID
	DriverID types.ID
}

type CompleteCommand struct {
	RideID   types.ID
	DriverID types.ID
	// MeasuredDistanceKm defaults to the route distance when nil.
	MeasuredDistanceKm *float64
}

type CancelCommand struct {
	RideID types.ID
	Actor  Actor
	Reason string
}

type PanicCommand struct {
	RideID          types.ID
	Actor           Actor
	VehicleLocation types.Point
}

type ReviewCommand struct {
	RideID        types.ID
	Actor         Actor
	DriverRating  int
	VehicleRating int
	Comment       string
}

type EstimateCommand struct {
	Stops       []route.Stop
	VehicleType driver.VehicleType
}

type Estimate struct {
	Route *route.Route
	Price types.Money
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Ride, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) DriverRides(ctx context.Context, driverID types.ID, statuses ...Status) ([]Ride, error) {
	if len(statuses) == 0 {
		statuses = ActiveStatuses
	}
	return s.store.RidesByDriver(ctx, driverID, statuses...)
}

// Estimate prices a trip without creating a ride.
func (s *Service) Estimate(ctx context.Context, cmd EstimateCommand) (*Estimate, error) {
	if !cmd.VehicleType.Valid() {
		return nil, ErrBadRequest
	}
	rt, err := s.routes.Resolve(ctx, cmd.Stops)
	if err != nil {
		return nil, err
	}
	price, err := s.pricing.Price(ctx, cmd.VehicleType, rt.DistanceKm)
	if err != nil {
		return nil, err
	}
	return &Estimate{Route: rt, Price: price}, nil
}

// Create resolves the route and price, then matches and commits a driver.
// A commit that loses the driver to a concurrent Create re-matches, up to
// MaxAssignAttempts times.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Ride, error) {
	if len(cmd.Passengers) == 0 || !cmd.Preferences.VehicleType.Valid() || cmd.Preferences.RequiredSeats < 0 {
		return nil, ErrBadRequest
	}
	if cmd.Preferences.RequiredSeats == 0 {
		cmd.Preferences.RequiredSeats = 1
	}
	if cmd.ScheduledFor != nil && cmd.ScheduledFor.Before(s.clock.Now()) {
		return nil, fmt.Errorf("%w: scheduled time is in the past", ErrBadRequest)
	}

	rt, err := s.routes.Resolve(ctx, cmd.Stops)
	if err != nil {
		return nil, err
	}
	price, err := s.pricing.Price(ctx, cmd.Preferences.VehicleType, rt.DistanceKm)
	if err != nil {
		return nil, err
	}
	pickup := rt.Pickup().Location
	if pickup == nil {
		return nil, fmt.Errorf("%w: pickup has no coordinates", route.ErrNoRouteFound)
	}

	req := MatchRequest{Pickup: *pickup, Preferences: cmd.Preferences, ScheduledFor: cmd.ScheduledFor}
	for attempt := 1; attempt <= s.policy.MaxAssignAttempts; attempt++ {
		sel, err := s.matcher.Match(ctx, req)
		if err != nil {
			return nil, err
		}

		r := &Ride{
			ID:             types.ID(uuid.NewString()),
			Status:         StatusCreated,
			Passengers:     append([]Passenger(nil), cmd.Passengers...),
			Route:          *rt,
			Vehicle:        cmd.Preferences,
			ScheduledFor:   cmd.ScheduledFor,
			CreatedAt:      s.clock.Now(),
			EstimatedPrice: price,
		}
		driverID := sel.Driver.ID
		r.DriverID = &driverID
		r.DriverEmail = sel.Driver.Email
		r.Status = StatusScheduled

		err = s.store.CreateRide(ctx, r, sel.Version)
		if errors.Is(err, ErrConflict) {
			observability.AssignConflicts.Inc()
			s.log.WithFields(logrus.Fields{"driver_id": driverID, "attempt": attempt}).Info("driver taken concurrently, re-matching")
			continue
		}
		if err != nil {
			return nil, err
		}

		s.committed(ctx, r, EventRideScheduled, map[string]string{
			"estimated_price": strconv.FormatInt(price.Amount, 10),
			"currency":        price.Currency,
			"stage":           sel.Stage,
		})
		return r, nil
	}
	return nil, ErrNoSuitableDrivers
}

// Start is only allowed for the assigned driver and only once.
func (s *Service) Start(ctx context.Context, cmd StartCommand) (*Ride, error) {
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if ParticipantRole(r, Actor{ID: cmd.DriverID}) != RoleDriver {
		return nil, ErrForeignRide
	}
	if r.StartTime != nil {
		return nil, ErrRideAlreadyStarted
	}
	if !CanTransition(r.Status, StatusOngoing) {
		return nil, ErrInvalidState
	}

	now := s.clock.Now()
	end := now.Add(r.Route.EstimatedDuration())
	next := *r
	next.Status = StatusOngoing
	next.StartTime = &now
	next.EndTime = &end
	if err := s.store.UpdateRide(ctx, Change{Ride: &next, From: r.Status}); err != nil {
		return nil, err
	}
	s.committed(ctx, &next, EventRideStarted, nil)
	return &next, nil
}

// Complete finishes an ongoing ride and prices it on the measured distance.
func (s *Service) Complete(ctx context.Context, cmd CompleteCommand) (*Ride, error) {
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if ParticipantRole(r, Actor{ID: cmd.DriverID}) != RoleDriver {
		return nil, ErrAccessDenied
	}
	if r.Status != StatusOngoing {
		return nil, ErrInvalidState
	}

	distance := r.Route.DistanceKm
	if cmd.MeasuredDistanceKm != nil {
		if *cmd.MeasuredDistanceKm < 0 {
			return nil, ErrBadRequest
		}
		distance = *cmd.MeasuredDistanceKm
	}
	price, err := s.pricing.Price(ctx, r.Vehicle.VehicleType, distance)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	next := *r
	next.Status = StatusFinished
	next.EndTime = &now
	next.FinalPrice = &price
	next.MeasuredDistanceKm = &distance
	if err := s.store.UpdateRide(ctx, Change{Ride: &next, From: r.Status}); err != nil {
		return nil, err
	}
	s.committed(ctx, &next, EventRideFinished, map[string]string{
		"final_price": strconv.FormatInt(price.Amount, 10),
		"currency":    price.Currency,
	})
	return &next, nil
}

// Cancel is open to the assigned driver with a reason, and to passengers
// until CancelWindow before the planned start.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Ride, error) {
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	next := *r
	switch ParticipantRole(r, cmd.Actor) {
	case RoleDriver:
		if strings.TrimSpace(cmd.Reason) == "" {
			return nil, ErrReasonRequired
		}
		next.Status = StatusCancelledByDriver
	case RolePassenger:
		next.Status = StatusCancelledByPassenger
	default:
		return nil, ErrAccessDenied
	}
	if !CanTransition(r.Status, next.Status) {
		return nil, ErrInvalidState
	}
	if next.Status == StatusCancelledByPassenger && !now.Before(r.PlannedStart().Add(-s.policy.CancelWindow)) {
		return nil, ErrCancelRideExpired
	}

	next.CancellationReason = strings.TrimSpace(cmd.Reason)
	next.EndTime = &now
	if err := s.store.UpdateRide(ctx, Change{Ride: &next, From: r.Status}); err != nil {
		return nil, err
	}
	s.committed(ctx, &next, EventRideCancelled, map[string]string{"reason": next.CancellationReason})
	return &next, nil
}

// Panic ends an ongoing ride for good and records who raised it and where
// the vehicle was.
func (s *Service) Panic(ctx context.Context, cmd PanicCommand) (*Ride, error) {
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if ParticipantRole(r, cmd.Actor) == RoleNone {
		return nil, ErrAccessDenied
	}
	if !CanTransition(r.Status, StatusPanic) {
		return nil, ErrInvalidState
	}

	now := s.clock.Now()
	next := *r
	next.Status = StatusPanic
	next.EndTime = &now
	rec := &PanicRecord{
		ID:              types.ID(uuid.NewString()),
		RideID:          r.ID,
		ReporterEmail:   cmd.Actor.Email,
		VehicleLocation: cmd.VehicleLocation,
		CreatedAt:       now,
	}
	if err := s.store.UpdateRide(ctx, Change{Ride: &next, From: r.Status, Panic: rec}); err != nil {
		return nil, err
	}
	s.committed(ctx, &next, EventRidePanic, map[string]string{
		"reporter": rec.ReporterEmail,
		"lat":      strconv.FormatFloat(rec.VehicleLocation.Lat, 'f', 6, 64),
		"lng":      strconv.FormatFloat(rec.VehicleLocation.Lng, 'f', 6, 64),
	})
	return &next, nil
}

// Reviewable reports whether the passenger may still review the ride.
func (s *Service) Reviewable(ctx context.Context, rideID types.ID, passenger Actor) (bool, error) {
	r, err := s.store.Get(ctx, rideID)
	if err != nil {
		return false, err
	}
	if ParticipantRole(r, passenger) != RolePassenger {
		return false, ErrAccessDenied
	}
	return s.reviewable(ctx, r, passenger.Email)
}

func (s *Service) reviewable(ctx context.Context, r *Ride, email string) (bool, error) {
	if r.Status != StatusFinished || r.EndTime == nil {
		return false, nil
	}
	if s.clock.Now().After(r.EndTime.Add(s.policy.ReviewWindow)) {
		return false, nil
	}
	done, err := s.store.HasReview(ctx, r.ID, email)
	if err != nil {
		return false, err
	}
	return !done, nil
}

func (s *Service) Review(ctx context.Context, cmd ReviewCommand) (*Review, error) {
	if !validRating(cmd.DriverRating) || !validRating(cmd.VehicleRating) {
		return nil, fmt.Errorf("%w: ratings must be between 1 and 5", ErrBadRequest)
	}
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if ParticipantRole(r, cmd.Actor) != RolePassenger {
		return nil, ErrAccessDenied
	}
	ok, err := s.reviewable(ctx, r, cmd.Actor.Email)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotReviewable
	}

	rv := &Review{
		ID:             types.ID(uuid.NewString()),
		RideID:         r.ID,
		PassengerEmail: cmd.Actor.Email,
		DriverRating:   cmd.DriverRating,
		VehicleRating:  cmd.VehicleRating,
		Comment:        strings.TrimSpace(cmd.Comment),
		CreatedAt:      s.clock.Now(),
	}
	if err := s.store.SaveReview(ctx, rv); err != nil {
		return nil, err
	}
	s.emit(ctx, r, EventDriverRated, map[string]string{
		"driver_rating":  strconv.Itoa(rv.DriverRating),
		"vehicle_rating": strconv.Itoa(rv.VehicleRating),
	})
	return rv, nil
}

func validRating(n int) bool {
	return n >= 1 && n <= 5
}

func (s *Service) committed(ctx context.Context, r *Ride, typ EventType, payload map[string]string) {
	observability.RideTransitions.WithLabelValues(string(r.Status)).Inc()
	s.log.WithFields(logrus.Fields{
		"ride_id":   r.ID,
		"driver_id": driverIDOf(r),
		"status":    r.Status,
	}).Info("ride updated")
	s.emit(ctx, r, typ, payload)
}

// emit never fails the caller; a committed transition stands regardless of
// delivery.
func (s *Service) emit(ctx context.Context, r *Ride, typ EventType, payload map[string]string) {
	if s.notifier == nil {
		return
	}
	e := Event{
		Type:     typ,
		RideID:   r.ID,
		DriverID: driverIDOf(r),
		Status:   r.Status,
		Payload:  payload,
		At:       s.clock.Now(),
	}
	if r.DriverEmail != "" {
		e.Recipients = append(e.Recipients, r.DriverEmail)
	}
	for _, p := range r.Passengers {
		if p.Email != "" {
			e.Recipients = append(e.Recipients, p.Email)
		}
	}
	if err := s.notifier.Emit(ctx, e); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"ride_id": r.ID, "event": typ}).Warn("ride event not delivered")
	}
}

func driverIDOf(r *Ride) types.ID {
	if r.DriverID == nil {
		return ""
	}
	return *r.DriverID
}
