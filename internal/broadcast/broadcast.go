// Package broadcast sends one operator message to every passenger that
// matches a booking filter.
package broadcast

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/iliyamo/bus-ticketing-crm/internal/inventory"
	"github.com/iliyamo/bus-ticketing-crm/internal/model"
	"github.com/iliyamo/bus-ticketing-crm/internal/notify"
)

var ErrEmptyMessage = errors.New("message required")

// Audience lists the distinct phones of bookings matching a filter.
type Audience interface {
	RecipientPhones(ctx context.Context, f inventory.RecipientFilter) ([]string, error)
}

// Recipients resolves a phone to messenger identities.
type Recipients interface {
	ListBotUsersByPhone(ctx context.Context, phone string) ([]model.BotUser, error)
}

// Notifier delivers text on every channel of a bot user.
type Notifier interface {
	SendToUser(ctx context.Context, u model.BotUser, text string) (int, error)
}

// Result counts phones by outcome. Unreachable covers phones without a
// messenger identity and users that blocked the bot.
type Result struct {
	Phones      int `json:"phones"`
	Sent        int `json:"sent"`
	Failed      int `json:"failed"`
	Unreachable int `json:"unreachable"`
}

type Service struct {
	audience Audience
	users    Recipients
	notifier Notifier
	limiter  *rate.Limiter
	log      zerolog.Logger
}

// New returns a Service sending to at most perSecond phones per second.
func New(audience Audience, users Recipients, notifier Notifier, perSecond float64, log zerolog.Logger) *Service {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Service{
		audience: audience,
		users:    users,
		notifier: notifier,
		limiter:  rate.NewLimiter(limit, 1),
		log:      log.With().Str("component", "broadcast").Logger(),
	}
}

// Send delivers text to every matching passenger. It returns early only
// when the recipient query fails or ctx is cancelled.
func (s *Service) Send(ctx context.Context, f inventory.RecipientFilter, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, ErrEmptyMessage
	}
	phones, err := s.audience.RecipientPhones(ctx, f)
	if err != nil {
		return Result{}, err
	}
	res := Result{Phones: len(phones)}
	for _, phone := range phones {
		if err := s.limiter.Wait(ctx); err != nil {
			return res, err
		}
		users, err := s.users.ListBotUsersByPhone(ctx, phone)
		if err != nil {
			s.log.Warn().Err(err).Str("phone", phone).Msg("lookup bot users")
			res.Failed++
			continue
		}
		sent := 0
		var errs []error
		for _, u := range users {
			n, err := s.notifier.SendToUser(ctx, u, text)
			sent += n
			if err != nil {
				errs = append(errs, err)
			}
		}
		joined := errors.Join(errs...)
		switch {
		case sent > 0:
			res.Sent++
		case errors.Is(joined, notify.ErrChannelUnavailable):
			res.Failed++
		default:
			res.Unreachable++
		}
	}
	s.log.Info().Int("phones", res.Phones).Int("sent", res.Sent).Int("failed", res.Failed).
		Int("unreachable", res.Unreachable).Msg("broadcast finished")
	return res, nil
}
