// README: Ride event sinks; Multi fans an event out to every configured sink.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"ridedispatch/internal/modules/ride"
	"ridedispatch/internal/observability"
)

// Sink delivers one ride event somewhere.
type Sink interface {
	Emit(ctx context.Context, e ride.Event) error
}

type named struct {
	name string
	sink Sink
}

// Multi tries every sink even when one fails and joins the errors.
type Multi struct {
	sinks []named
}

func NewMulti() *Multi {
	return &Multi{}
}

func (m *Multi) Add(name string, s Sink) *Multi {
	m.sinks = append(m.sinks, named{name: name, sink: s})
	return m
}

func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) Emit(ctx context.Context, e ride.Event) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.sink.Emit(ctx, e); err != nil {
			observability.NotifyFailures.WithLabelValues(s.name).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// LogEmitter writes events to the logger; it is the sink of last resort.
type LogEmitter struct {
	log logrus.FieldLogger
}

func NewLogEmitter(log logrus.FieldLogger) *LogEmitter {
	return &LogEmitter{log: log}
}

func (l *LogEmitter) Emit(_ context.Context, e ride.Event) error {
	l.log.WithFields(logrus.Fields{
		"event":      e.Type,
		"ride_id":    e.RideID,
		"driver_id":  e.DriverID,
		"status":     e.Status,
		"recipients": len(e.Recipients),
	}).Info("ride event")
	return nil
}
