// README: Driver service toggles daily activity and exposes driver lookups.
package driver

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"ridedispatch/internal/types"
)

var (
	ErrNotFound          = errors.New("driver not found")
	ErrDailyLimitReached = errors.New("daily active time limit reached")
)

// Store persists drivers and their daily logs.
type Store interface {
	GetDriver(ctx context.Context, id types.ID, day time.Time) (*Driver, error)
	// SaveDailyLog inserts or replaces the log for (DriverID, Date).
	SaveDailyLog(ctx context.Context, log DailyLog) error
}

type Service struct {
	store      Store
	clock      types.Clock
	loc        *time.Location
	dailyLimit int64
	log        logrus.FieldLogger
}

func NewService(store Store, clock types.Clock, loc *time.Location, dailyLimitSeconds int64, log logrus.FieldLogger) *Service {
	return &Service{store: store, clock: clock, loc: loc, dailyLimit: dailyLimitSeconds, log: log}
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Driver, error) {
	return s.store.GetDriver(ctx, id, types.DayOf(s.clock.Now(), s.loc))
}

// SetActive turns the driver on or off for today. The first toggle of the
// day creates the log; going inactive folds the running session into
// ActiveSeconds.
func (s *Service) SetActive(ctx context.Context, id types.ID, active bool) (*DailyLog, error) {
	now := s.clock.Now()
	day := types.DayOf(now, s.loc)
	d, err := s.store.GetDriver(ctx, id, day)
	if err != nil {
		return nil, err
	}

	log := DailyLog{DriverID: id, Date: day}
	if d.Today != nil {
		log = *d.Today
	}

	switch {
	case active && !log.IsActive:
		if log.ActiveSeconds >= s.dailyLimit {
			return nil, ErrDailyLimitReached
		}
		log.IsActive = true
		log.LastActivatedAt = &now
	case !active && log.IsActive:
		log.ActiveSeconds = log.ActiveSecondsAt(now)
		log.IsActive = false
		log.LastActivatedAt = nil
	}

	if err := s.store.SaveDailyLog(ctx, log); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"driver_id":      id,
		"active":         log.IsActive,
		"active_seconds": log.ActiveSeconds,
	}).Info("driver activity updated")
	return &log, nil
}
