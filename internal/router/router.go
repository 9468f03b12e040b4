package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-ticketing-crm/internal/handler"
)

// RegisterRoutes registers the unauthenticated endpoints: health, trip
// browsing and booking. mw (rate limiting) applies to the whole /v1
// group, cache only to the trip listing.
func RegisterRoutes(e *echo.Echo, health *handler.HealthHandler, pub *handler.PublicHandler, cache echo.MiddlewareFunc, mw ...echo.MiddlewareFunc) {
	e.GET("/healthz", health.Health)

	g := e.Group("/v1", mw...)
	g.GET("/trips", pub.ListTrips, cache)
	g.GET("/trips/:id/seats", pub.Seats)
	g.POST("/bookings", pub.CreateBooking)
}
