// README: Matching service selects one driver for a ride request in four stages.
package matching

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/modules/location"
	"ridedispatch/internal/modules/ride"
	"ridedispatch/internal/observability"
	"ridedispatch/internal/types"
)

var (
	ErrNoSuitableDrivers = ride.ErrNoSuitableDrivers
	ErrNoActiveDrivers   = fmt.Errorf("%w: no active drivers", ErrNoSuitableDrivers)
	ErrNoDriverAvailable = fmt.Errorf("%w: no driver currently available", ErrNoSuitableDrivers)
)

const (
	StageFree = "free"
	StageBusy = "busy"
)

type Config struct {
	DailyLimitSeconds int64
	// EndingSoonWindow is how close to its estimated end an ongoing ride
	// must be for its driver to be offered the next one.
	EndingSoonWindow time.Duration
	// ConflictBuffer pads existing rides when checking a scheduled request.
	ConflictBuffer time.Duration
}

func DefaultConfig() Config {
	return Config{
		DailyLimitSeconds: 8 * 60 * 60,
		EndingSoonWindow:  10 * time.Minute,
		ConflictBuffer:    5 * time.Minute,
	}
}

type Service struct {
	avail *Availability
	clock types.Clock
	cfg   Config
	log   logrus.FieldLogger
}

func NewService(avail *Availability, clock types.Clock, cfg Config, log logrus.FieldLogger) *Service {
	return &Service{avail: avail, clock: clock, cfg: cfg, log: log}
}

type candidate struct {
	driver   driver.Driver
	distance float64
}

// Match never mutates anything; the caller commits the selection.
func (s *Service) Match(ctx context.Context, req ride.MatchRequest) (ride.Selection, error) {
	started := time.Now()
	defer func() { observability.MatchLatency.Observe(time.Since(started).Seconds()) }()

	active, err := s.avail.ActiveDrivers(ctx)
	if err != nil {
		return ride.Selection{}, err
	}
	if len(active) == 0 {
		return s.fail("eligibility", ErrNoActiveDrivers)
	}
	var eligible []driver.Driver
	for _, d := range active {
		if d.Vehicle.Satisfies(req.Preferences) {
			eligible = append(eligible, d)
		}
	}
	if len(eligible) == 0 {
		return s.fail("eligibility", ErrNoSuitableDrivers)
	}

	rides, err := s.avail.ActiveRides(ctx)
	if err != nil {
		return ride.Selection{}, err
	}
	held := ridesByDriver(rides)

	if req.ScheduledFor != nil {
		eligible = s.withoutConflicts(eligible, held, *req.ScheduledFor)
		if len(eligible) == 0 {
			return s.fail("schedule", ErrNoSuitableDrivers)
		}
	}

	busy := BusyDriverIDs(rides)
	var free []candidate
	for _, d := range eligible {
		if _, ok := busy[d.ID]; !ok {
			free = append(free, candidate{driver: d, distance: location.DistanceKm(d.Vehicle.Location, req.Pickup)})
		}
	}
	if len(free) > 0 {
		return s.pick(StageFree, free), nil
	}

	now := s.clock.Now()
	var soon []candidate
	for _, d := range eligible {
		ongoing, ok := s.endingSoon(held[d.ID], now)
		if !ok {
			continue
		}
		soon = append(soon, candidate{driver: d, distance: location.DistanceKm(ongoing.Route.DestinationPoint(), req.Pickup)})
	}
	if len(soon) == 0 {
		return s.fail(StageBusy, ErrNoDriverAvailable)
	}
	return s.pick(StageBusy, soon), nil
}

// withoutConflicts drops drivers with a ride whose padded window contains at.
func (s *Service) withoutConflicts(drivers []driver.Driver, held map[types.ID][]ride.Ride, at time.Time) []driver.Driver {
	var out []driver.Driver
	for _, d := range drivers {
		conflict := false
		for _, r := range held[d.ID] {
			from := r.PlannedStart().Add(-s.cfg.ConflictBuffer)
			to := r.EstimatedEnd().Add(s.cfg.ConflictBuffer)
			if !at.Before(from) && !at.After(to) {
				conflict = true
				break
			}
		}
		if !conflict {
			out = append(out, d)
		}
	}
	return out
}

// endingSoon returns the driver's ongoing ride if it is the only ride they
// hold and is estimated to end within EndingSoonWindow.
func (s *Service) endingSoon(rides []ride.Ride, now time.Time) (ride.Ride, bool) {
	var ongoing *ride.Ride
	for i := range rides {
		switch rides[i].Status {
		case ride.StatusScheduled:
			return ride.Ride{}, false
		case ride.StatusOngoing:
			ongoing = &rides[i]
		}
	}
	if ongoing == nil || ongoing.StartTime == nil {
		return ride.Ride{}, false
	}
	if !ongoing.EstimatedEnd().Before(now.Add(s.cfg.EndingSoonWindow)) {
		return ride.Ride{}, false
	}
	return *ongoing, true
}

// pick returns the closest candidate, lowest driver id first on ties.
func (s *Service) pick(stage string, cs []candidate) ride.Selection {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].distance != cs[j].distance {
			return cs[i].distance < cs[j].distance
		}
		return cs[i].driver.ID < cs[j].driver.ID
	})
	best := cs[0]
	observability.MatchOutcomes.WithLabelValues(stage, "ok").Inc()
	s.log.WithFields(logrus.Fields{
		"driver_id":   best.driver.ID,
		"stage":       stage,
		"distance_km": best.distance,
		"candidates":  len(cs),
	}).Debug("driver matched")
	return ride.Selection{Driver: best.driver, Version: best.driver.Version, Stage: stage, DistanceKm: best.distance}
}

func (s *Service) fail(stage string, err error) (ride.Selection, error) {
	observability.MatchOutcomes.WithLabelValues(stage, "none").Inc()
	s.log.WithField("stage", stage).Debug(err.Error())
	return ride.Selection{}, err
}
