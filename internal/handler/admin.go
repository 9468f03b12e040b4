package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-ticketing-crm/internal/booking"
	"github.com/iliyamo/bus-ticketing-crm/internal/broadcast"
	"github.com/iliyamo/bus-ticketing-crm/internal/inventory"
	"github.com/iliyamo/bus-ticketing-crm/internal/middleware"
)

// AdminHandler serves the staff API.
type AdminHandler struct {
	Engine    *booking.Engine
	Schedule  inventory.Admin
	Broadcast *broadcast.Service
}

// BroadcastRequest is the body of POST /v1/admin/broadcasts.
type BroadcastRequest struct {
	Filter  inventory.RecipientFilter `json:"filter"`
	Message string                    `json:"message"`
}

// Confirm moves a new booking to confirmed.
func (h *AdminHandler) Confirm(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	b, err := h.Engine.Confirm(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Cancel releases the seat of a booking. Cancelling twice is a no-op.
func (h *AdminHandler) Cancel(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	b, err := h.Engine.Cancel(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *AdminHandler) TripBookings(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid trip id")
	}
	list, err := h.Engine.ListBookings(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"trip_id": id, "items": list})
}

// GenerateTrips creates a daily schedule and returns the new trips.
func (h *AdminHandler) GenerateTrips(c echo.Context) error {
	var req inventory.GenerateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json body")
	}
	trips, err := h.Schedule.GenerateTrips(c.Request().Context(), req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"created": len(trips), "items": trips})
}

// SendBroadcast messages every passenger matching the filter.
func (h *AdminHandler) SendBroadcast(c echo.Context) error {
	var req BroadcastRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json body")
	}
	res, err := h.Broadcast.Send(c.Request().Context(), req.Filter, req.Message)
	if err != nil {
		return fail(c, err)
	}
	by, _ := c.Get(middleware.CtxUserID).(string)
	return c.JSON(http.StatusOK, echo.Map{"result": res, "requested_by": by})
}
