package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-ticketing-crm/internal/handler"
	"github.com/iliyamo/bus-ticketing-crm/internal/middleware"
	"github.com/iliyamo/bus-ticketing-crm/internal/model"
)

// RegisterAdmin registers staff endpoints under /v1/admin. All routes
// require a valid JWT with the admin or manager role.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin, model.RoleManager),
	)

	// ---- Bookings ----
	g.POST("/bookings/:id/confirm", h.Confirm)
	g.POST("/bookings/:id/cancel", h.Cancel)

	// ---- Trips ----
	g.GET("/trips/:id/bookings", h.TripBookings)
	g.POST("/trips/generate", h.GenerateTrips)

	// ---- Broadcasts ----
	g.POST("/broadcasts", h.SendBroadcast)
}
