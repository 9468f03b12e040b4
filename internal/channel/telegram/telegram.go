// Package telegram connects the conversation machine and the notification
// dispatcher to the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/iliyamo/bus-ticketing-crm/internal/conversation"
	"github.com/iliyamo/bus-ticketing-crm/internal/messages"
	"github.com/iliyamo/bus-ticketing-crm/internal/model"
	"github.com/iliyamo/bus-ticketing-crm/internal/notify"
)

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	SelfUser() tgbotapi.User
}

type realTelegramClient struct {
	api *tgbotapi.BotAPI
}

func (c *realTelegramClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

func (c *realTelegramClient) Request(msg tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return c.api.Request(msg)
}

func (c *realTelegramClient) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	return c.api.MakeRequest(endpoint, params)
}

func (c *realTelegramClient) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return c.api.GetUpdatesChan(cfg)
}

func (c *realTelegramClient) StopReceivingUpdates() { c.api.StopReceivingUpdates() }

func (c *realTelegramClient) SelfUser() tgbotapi.User { return c.api.Self }

// Conversation handles one inbound event and returns the replies.
type Conversation interface {
	HandleEvent(ctx context.Context, platform model.Platform, userID string, ev conversation.Event) ([]conversation.Reply, error)
}

// Bot is the Telegram channel: an outbound notify.Sender and the inbound
// update handler of the booking dialogue.
type Bot struct {
	tg      telegramClient
	conv    Conversation
	msg     *messages.Catalog
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// New authorizes token against the Bot API. sendRate bounds outbound
// messages per second; zero or less disables the limit.
func New(token string, conv Conversation, msg *messages.Catalog, sendRate float64, logger zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram authorize: %w", err)
	}
	return NewWithTelegramClient(&realTelegramClient{api: api}, conv, msg, sendRate, logger)
}

// NewWithTelegramClient allows injecting a mocked Telegram client for tests.
func NewWithTelegramClient(tg telegramClient, conv Conversation, msg *messages.Catalog, sendRate float64, logger zerolog.Logger) (*Bot, error) {
	if tg == nil {
		return nil, fmt.Errorf("telegram client is nil")
	}
	if msg == nil {
		msg = messages.Default()
	}
	limit := rate.Inf
	if sendRate > 0 {
		limit = rate.Limit(sendRate)
	}
	return &Bot{
		tg:      tg,
		conv:    conv,
		msg:     msg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With().Str("component", "telegram").Logger(),
	}, nil
}

// Send implements notify.Sender. externalUserID is the chat id.
func (b *Bot) Send(ctx context.Context, externalUserID, text string) error {
	chatID, err := strconv.ParseInt(externalUserID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad telegram chat id %q", notify.ErrUserUnreachable, externalUserID)
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", notify.ErrChannelUnavailable, err)
	}
	_, err = b.tg.Send(tgbotapi.NewMessage(chatID, text))
	return classify(err)
}

// classify maps Bot API failures onto the dispatcher errors. 403 means
// the user blocked the bot, 400 "chat not found" an unknown chat.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusForbidden, http.StatusBadRequest:
			return fmt.Errorf("%w: %s", notify.ErrUserUnreachable, apiErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", notify.ErrChannelUnavailable, err)
}

// SetWebhook registers url with Telegram. secret is echoed back in the
// X-Telegram-Bot-Api-Secret-Token header of every update.
func (b *Bot) SetWebhook(url, secret string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	if _, err := b.tg.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("telegram set webhook: %w", err)
	}
	b.logger.Info().Str("url", url).Msg("webhook registered")
	return nil
}

// Run long-polls updates until ctx is done and waits for the updates
// still being handled.
func (b *Bot) Run(ctx context.Context) error {
	if _, err := b.tg.MakeRequest("deleteWebhook", tgbotapi.Params{}); err != nil {
		b.logger.Warn().Err(err).Msg("delete webhook before polling")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.tg.GetUpdatesChan(u)
	b.logger.Info().Str("username", b.tg.SelfUser().UserName).Msg("telegram bot polling")

	// one goroutine per update; the conversation serialises per user
	var inflight sync.WaitGroup
	defer inflight.Wait()
	for {
		select {
		case <-ctx.Done():
			b.tg.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				b.HandleUpdate(ctx, update)
			}()
		}
	}
}

// HandleUpdate feeds one update through the dialogue and sends the
// replies to the originating chat.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	requestID := uuid.New().String()
	l := b.logger.With().Str("request_id", requestID).Logger()
	ctx = l.WithContext(ctx)

	var (
		chatID int64
		userID int64
		ev     conversation.Event
	)
	switch {
	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		if q.From == nil || q.Message == nil {
			return
		}
		chatID, userID = q.Message.Chat.ID, q.From.ID
		ev = conversation.Event{Callback: q.Data, DisplayName: displayName(q.From)}
		if _, err := b.tg.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
			l.Debug().Err(err).Msg("answer callback")
		}
		l.Debug().Int64("user_id", userID).Str("data", q.Data).Msg("handling callback query")
	case update.Message != nil:
		m := update.Message
		if m.From == nil || m.Chat == nil {
			return
		}
		chatID, userID = m.Chat.ID, m.From.ID
		ev = conversation.Event{Text: m.Text, DisplayName: displayName(m.From)}
		if m.Contact != nil && (m.Contact.UserID == 0 || m.Contact.UserID == m.From.ID) {
			ev.Contact = m.Contact.PhoneNumber
		}
		l.Debug().Int64("user_id", userID).Str("text", m.Text).Msg("handling message")
	default:
		return
	}

	replies, err := b.conv.HandleEvent(ctx, model.PlatformTelegram, strconv.FormatInt(userID, 10), ev)
	if err != nil {
		l.Error().Err(err).Int64("user_id", userID).Msg("conversation failed")
		replies = []conversation.Reply{{Text: b.msg.InternalError, MainMenu: true}}
	}
	for _, r := range replies {
		if _, err := b.tg.Send(b.render(chatID, r)); err != nil {
			l.Warn().Err(classify(err)).Int64("chat_id", chatID).Msg("send reply")
		}
	}
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	if u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	return u.FirstName
}

func (b *Bot) render(chatID int64, r conversation.Reply) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, r.Text)
	switch {
	case len(r.Options) > 0:
		msg.ReplyMarkup = inlineKeyboard(r.Options, r.Columns)
	case r.RequestPhone:
		kb := tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonContact(b.msg.SharePhone)))
		kb.OneTimeKeyboard = true
		msg.ReplyMarkup = kb
	case r.MainMenu:
		msg.ReplyMarkup = b.mainMenu()
	}
	return msg
}

func (b *Bot) mainMenu() tgbotapi.ReplyKeyboardMarkup {
	btn := b.msg.Buttons
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btn.Schedule),
			tgbotapi.NewKeyboardButton(btn.Book),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btn.MyBookings),
			tgbotapi.NewKeyboardButton(btn.Support),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func inlineKeyboard(opts []conversation.Option, columns int) tgbotapi.InlineKeyboardMarkup {
	if columns <= 0 {
		columns = 1
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for i := 0; i < len(opts); i += columns {
		end := min(i+columns, len(opts))
		row := make([]tgbotapi.InlineKeyboardButton, 0, end-i)
		for _, o := range opts[i:end] {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(o.Label, o.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
