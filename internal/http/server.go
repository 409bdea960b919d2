// README: API server; owns the gin engine and the net/http server lifecycle.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"ridedispatch/internal/infra"
	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/modules/location"
	"ridedispatch/internal/modules/pricing"
	"ridedispatch/internal/modules/ride"
	"ridedispatch/internal/modules/route"
)

type ServerDeps struct {
	Rides    *ride.Service
	Drivers  *driver.Service
	Location *location.Service
	Pricing  *pricing.Service
	Places   *route.Places
	Verifier infra.TokenVerifier
	Log      logrus.FieldLogger
}

type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	rides    *ride.Service
	drivers  *driver.Service
	location *location.Service
	pricing  *pricing.Service
	places   *route.Places
	verifier infra.TokenVerifier
	log      logrus.FieldLogger
	opts     Options
}

func NewServer(deps ServerDeps, opts Options) *Server {
	return &Server{
		rides:    deps.Rides,
		drivers:  deps.Drivers,
		location: deps.Location,
		pricing:  deps.Pricing,
		places:   deps.Places,
		verifier: deps.Verifier,
		log:      deps.Log,
		opts:     opts,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests for up
// to ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.opts.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
