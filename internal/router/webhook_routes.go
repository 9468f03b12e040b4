package router

import "github.com/labstack/echo/v4"

// Webhooks holds the messenger callback handlers. A nil handler leaves
// its route unregistered.
type Webhooks struct {
	Telegram echo.HandlerFunc
	Viber    echo.HandlerFunc
}

// RegisterWebhooks mounts the messenger callbacks under /webhooks.
func RegisterWebhooks(e *echo.Echo, w Webhooks, mw ...echo.MiddlewareFunc) {
	g := e.Group("/webhooks", mw...)
	if w.Telegram != nil {
		g.POST("/telegram", w.Telegram)
	}
	if w.Viber != nil {
		g.POST("/viber", w.Viber)
	}
}
