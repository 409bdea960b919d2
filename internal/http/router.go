// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ridedispatch/internal/http/handlers"
	"ridedispatch/internal/http/middleware"
)

func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(s.log), middleware.Metrics(), middleware.Logging(s.log))

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "OK") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", middleware.Auth(s.verifier))

	rideHandler := handlers.NewRideHandler(s.rides)
	api.POST("/rides/estimate", rideHandler.Estimate)
	api.POST("/rides", rideHandler.Create)
	api.GET("/rides/:id", rideHandler.Get)
	api.POST("/rides/:id/cancel", rideHandler.Cancel)
	api.POST("/rides/:id/panic", rideHandler.Panic)
	api.GET("/rides/:id/reviewable", rideHandler.Reviewable)
	api.POST("/rides/:id/review", rideHandler.Review)

	pricingHandler := handlers.NewPricingHandler(s.pricing)
	api.GET("/prices/current", pricingHandler.Current)

	if s.places != nil {
		api.GET("/places", handlers.NewPlacesHandler(s.places).Search)
	}

	driverHandler := handlers.NewDriverHandler(s.drivers, s.location, s.rides)
	api.GET("/drivers/nearby", driverHandler.Nearby)

	drivers := api.Group("/drivers/me", middleware.RequireRole(middleware.RoleDriver))
	drivers.GET("", driverHandler.Me)
	drivers.PUT("/activity", driverHandler.SetActivity)
	drivers.PUT("/location", driverHandler.UpdateLocation)
	drivers.GET("/rides", driverHandler.Rides)
	drivers.POST("/rides/:id/start", rideHandler.Start)
	drivers.POST("/rides/:id/complete", rideHandler.Complete)

	return r
}
