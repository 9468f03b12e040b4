package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/bus-ticketing-crm/internal/booking"
	"github.com/iliyamo/bus-ticketing-crm/internal/broadcast"
	"github.com/iliyamo/bus-ticketing-crm/internal/inventory"
)

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, booking.ErrTripNotFound),
		errors.Is(err, booking.ErrBookingNotFound),
		errors.Is(err, inventory.ErrRouteNotFound),
		errors.Is(err, inventory.ErrBusNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrSeatTaken),
		errors.Is(err, booking.ErrNoSeatsAvailable),
		errors.Is(err, booking.ErrTripCancelled),
		errors.Is(err, booking.ErrInvalidTransition),
		errors.Is(err, booking.ErrConcurrentUpdate):
		return http.StatusConflict
	case errors.Is(err, booking.ErrInvalidSeat),
		errors.Is(err, booking.ErrMissingPassenger),
		errors.Is(err, booking.ErrBusNotFound),
		errors.Is(err, inventory.ErrInvalidSchedule),
		errors.Is(err, broadcast.ErrEmptyMessage):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// fail writes err as {"error": ...}. Unexpected errors are logged and
// hidden from the client.
func fail(c echo.Context, err error) error {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		zerolog.Ctx(c.Request().Context()).Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return c.JSON(status, echo.Map{"error": "internal error"})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}
