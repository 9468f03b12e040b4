package viber

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-ticketing-crm/internal/conversation"
	"github.com/iliyamo/bus-ticketing-crm/internal/model"
)

// SignatureHeader carries the hex HMAC-SHA256 of the body keyed by the
// bot token.
const SignatureHeader = "X-Viber-Content-Signature"

type callbackUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type callbackMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Contact *struct {
		PhoneNumber string `json:"phone_number"`
	} `json:"contact,omitempty"`
}

type callback struct {
	Event        string           `json:"event"`
	Timestamp    int64            `json:"timestamp"`
	MessageToken json.Number      `json:"message_token"`
	Sender       *callbackUser    `json:"sender,omitempty"`
	User         *callbackUser    `json:"user,omitempty"`
	UserID       string           `json:"user_id,omitempty"`
	Message      *callbackMessage `json:"message,omitempty"`
}

// Sign returns the signature Viber computes for body.
func Sign(token string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(token))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (b *Bot) verify(body []byte, signature string) bool {
	want := Sign(b.cfg.Token, body)
	return hmac.Equal([]byte(want), []byte(strings.ToLower(signature)))
}

// WebhookHandler receives Viber callbacks.
func (b *Bot) WebhookHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "read body"})
		}
		if !b.verify(body, c.Request().Header.Get(SignatureHeader)) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		}
		var cb callback
		if err := json.Unmarshal(body, &cb); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid callback"})
		}

		l := b.logger.With().Str("request_id", uuid.New().String()).Str("event", cb.Event).Logger()
		ctx := l.WithContext(c.Request().Context())

		switch cb.Event {
		case "webhook":
			l.Info().Msg("webhook confirmed")
		case "conversation_started":
			// the response body is delivered as the welcome message
			return c.JSON(http.StatusOK, b.render("", conversation.Reply{Text: b.msg.Welcome, MainMenu: true}))
		case "subscribed":
			if cb.User != nil {
				l.Info().Str("user_id", cb.User.ID).Msg("user subscribed")
			}
		case "unsubscribed":
			l.Info().Str("user_id", cb.UserID).Msg("user unsubscribed")
		case "message":
			if cb.Sender == nil || cb.Sender.ID == "" || cb.Message == nil {
				return c.NoContent(http.StatusOK)
			}
			b.HandleMessage(ctx, cb.Sender.ID, cb.Sender.Name, *cb.Message)
		}
		return c.NoContent(http.StatusOK)
	}
}

// HandleMessage feeds one user message through the dialogue and sends
// the replies back to the user.
func (b *Bot) HandleMessage(ctx context.Context, userID, name string, m callbackMessage) {
	ev := conversation.Event{DisplayName: name}
	text := strings.TrimSpace(m.Text)
	switch {
	case m.Contact != nil:
		ev.Contact = m.Contact.PhoneNumber
	case isCallbackData(text):
		// keyboard buttons come back as their ActionBody
		ev.Callback = text
	default:
		ev.Text = text
	}

	replies, err := b.conv.HandleEvent(ctx, model.PlatformViber, userID, ev)
	if err != nil {
		b.logger.Error().Err(err).Str("user_id", userID).Msg("conversation failed")
		replies = []conversation.Reply{{Text: b.msg.InternalError, MainMenu: true}}
	}
	for _, r := range replies {
		if err := b.post(ctx, "/pa/send_message", b.render(userID, r)); err != nil {
			b.logger.Warn().Err(err).Str("user_id", userID).Msg("send reply")
		}
	}
}

func isCallbackData(s string) bool {
	for _, p := range []string{conversation.PrefixDate, conversation.PrefixTrip, conversation.PrefixSeat} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
