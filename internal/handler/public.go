// Package handler exposes the HTTP API: public trip browsing and
// booking, and the staff endpoints behind JWT.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-ticketing-crm/internal/booking"
)

// PublicHandler serves unauthenticated browsing and booking.
type PublicHandler struct {
	Engine   *booking.Engine
	Location *time.Location
}

// SeatsResponse is the body of GET /v1/trips/:id/seats.
type SeatsResponse struct {
	TripID   uint64 `json:"trip_id"`
	Total    int    `json:"total"`
	Free     []int  `json:"free"`
	Occupied []int  `json:"occupied"`
}

func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// ListTrips returns the active trips of ?date=YYYY-MM-DD, today by
// default.
func (h *PublicHandler) ListTrips(c echo.Context) error {
	date := c.QueryParam("date")
	if date == "" {
		loc := h.Location
		if loc == nil {
			loc = time.Local
		}
		date = time.Now().In(loc).Format(time.DateOnly)
	} else if _, err := time.Parse(time.DateOnly, date); err != nil {
		return badRequest(c, "date must be YYYY-MM-DD")
	}
	trips, err := h.Engine.ListTrips(c.Request().Context(), date)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"date": date, "items": trips})
}

// Seats returns the seat map of a trip.
func (h *PublicHandler) Seats(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid trip id")
	}
	m, err := h.Engine.FreeSeats(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, SeatsResponse{TripID: id, Total: m.Total, Free: m.Free, Occupied: m.OccupiedSeats()})
}

// CreateBooking reserves a seat. seat_number 0 or absent picks the lowest
// free seat.
func (h *PublicHandler) CreateBooking(c echo.Context) error {
	var req booking.ReserveRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json body")
	}
	if req.TripID == 0 {
		return badRequest(c, "trip_id is required")
	}
	b, err := h.Engine.ReserveSeat(c.Request().Context(), req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}
