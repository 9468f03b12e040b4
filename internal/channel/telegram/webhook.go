package telegram

import (
	"crypto/subtle"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"
)

// SecretHeader carries the secret_token given to setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookHandler accepts updates pushed by Telegram. When secret is set,
// requests without the matching header are rejected.
func (b *Bot) WebhookHandler(secret string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if secret != "" {
			got := c.Request().Header.Get(SecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid webhook secret"})
			}
		}
		var update tgbotapi.Update
		if err := c.Bind(&update); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid update"})
		}
		b.HandleUpdate(c.Request().Context(), update)
		// telegram retries on anything but 2xx
		return c.NoContent(http.StatusOK)
	}
}
