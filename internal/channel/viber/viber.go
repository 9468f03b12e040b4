// Package viber connects the conversation machine and the notification
// dispatcher to the Viber REST bot API.
package viber

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/iliyamo/bus-ticketing-crm/internal/conversation"
	"github.com/iliyamo/bus-ticketing-crm/internal/messages"
	"github.com/iliyamo/bus-ticketing-crm/internal/model"
	"github.com/iliyamo/bus-ticketing-crm/internal/notify"
)

// AuthHeader carries the bot token on every API call.
const AuthHeader = "X-Viber-Auth-Token"

// API status codes, see the Viber REST API error table.
const (
	statusOK                    = 0
	statusReceiverNotRegistered = 5
	statusReceiverNotSubscribed = 6
)

// keyboard grid width
const gridColumns = 6

// Conversation handles one inbound event and returns the replies.
type Conversation interface {
	HandleEvent(ctx context.Context, platform model.Platform, userID string, ev conversation.Event) ([]conversation.Reply, error)
}

// Config is the bot identity shown to users.
type Config struct {
	Token   string
	Name    string
	Avatar  string
	BaseURL string
}

// Bot is the Viber channel.
type Bot struct {
	cfg    Config
	http   *resty.Client
	conv   Conversation
	msg    *messages.Catalog
	logger zerolog.Logger
}

func New(cfg Config, conv Conversation, msg *messages.Catalog, logger zerolog.Logger) *Bot {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://chatapi.viber.com"
	}
	if msg == nil {
		msg = messages.Default()
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader(AuthHeader, cfg.Token).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(300 * time.Millisecond)
	return &Bot{
		cfg:    cfg,
		http:   client,
		conv:   conv,
		msg:    msg,
		logger: logger.With().Str("component", "viber").Logger(),
	}
}

type sender struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type button struct {
	Columns    int    `json:"Columns"`
	Rows       int    `json:"Rows"`
	ActionType string `json:"ActionType"`
	ActionBody string `json:"ActionBody"`
	Text       string `json:"Text"`
}

type keyboard struct {
	Type          string   `json:"Type"`
	DefaultHeight bool     `json:"DefaultHeight"`
	Buttons       []button `json:"Buttons"`
}

type outMessage struct {
	Receiver      string    `json:"receiver,omitempty"`
	MinAPIVersion int       `json:"min_api_version,omitempty"`
	Sender        sender    `json:"sender"`
	Type          string    `json:"type"`
	Text          string    `json:"text"`
	Keyboard      *keyboard `json:"keyboard,omitempty"`
}

type apiResponse struct {
	Status        int    `json:"status"`
	StatusMessage string `json:"status_message"`
}

func (b *Bot) sender() sender { return sender{Name: b.cfg.Name, Avatar: b.cfg.Avatar} }

// Send implements notify.Sender.
func (b *Bot) Send(ctx context.Context, externalUserID, text string) error {
	return b.post(ctx, "/pa/send_message", outMessage{
		Receiver: externalUserID,
		Sender:   b.sender(),
		Type:     "text",
		Text:     text,
	})
}

func (b *Bot) post(ctx context.Context, path string, body any) error {
	var out apiResponse
	resp, err := b.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post(path)
	if err != nil {
		return fmt.Errorf("%w: viber %s: %v", notify.ErrChannelUnavailable, path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: viber %s: http %d", notify.ErrChannelUnavailable, path, resp.StatusCode())
	}
	switch out.Status {
	case statusOK:
		return nil
	case statusReceiverNotRegistered, statusReceiverNotSubscribed:
		return fmt.Errorf("%w: %s", notify.ErrUserUnreachable, out.StatusMessage)
	}
	return fmt.Errorf("%w: viber status %d %s", notify.ErrChannelUnavailable, out.Status, out.StatusMessage)
}

// SetWebhook registers url for message and subscription callbacks.
func (b *Bot) SetWebhook(ctx context.Context, url string) error {
	err := b.post(ctx, "/pa/set_webhook", map[string]any{
		"url":         url,
		"event_types": []string{"delivered", "failed", "subscribed", "unsubscribed", "conversation_started"},
		"send_name":   true,
	})
	if err != nil {
		return fmt.Errorf("viber set webhook: %w", err)
	}
	b.logger.Info().Str("url", url).Msg("webhook registered")
	return nil
}

func (b *Bot) render(receiver string, r conversation.Reply) outMessage {
	m := outMessage{Receiver: receiver, Sender: b.sender(), Type: "text", Text: r.Text}
	switch {
	case len(r.Options) > 0:
		m.Keyboard = optionsKeyboard(r.Options, r.Columns)
	case r.RequestPhone:
		m.MinAPIVersion = 3
		m.Keyboard = &keyboard{Type: "keyboard", DefaultHeight: true, Buttons: []button{{
			Columns: gridColumns, Rows: 1, ActionType: "share-phone", ActionBody: "phone", Text: b.msg.SharePhone,
		}}}
	case r.MainMenu:
		m.Keyboard = b.mainMenu()
	}
	return m
}

func (b *Bot) mainMenu() *keyboard {
	btn := b.msg.Buttons
	kb := &keyboard{Type: "keyboard", DefaultHeight: true}
	for _, label := range []string{btn.Schedule, btn.Book, btn.MyBookings, btn.Support} {
		kb.Buttons = append(kb.Buttons, button{Columns: gridColumns / 2, Rows: 1, ActionType: "reply", ActionBody: label, Text: label})
	}
	return kb
}

func optionsKeyboard(opts []conversation.Option, columns int) *keyboard {
	if columns <= 0 || columns > gridColumns {
		columns = 1
	}
	width := gridColumns / columns
	kb := &keyboard{Type: "keyboard", DefaultHeight: true}
	for _, o := range opts {
		kb.Buttons = append(kb.Buttons, button{Columns: width, Rows: 1, ActionType: "reply", ActionBody: o.Data, Text: o.Label})
	}
	return kb
}
