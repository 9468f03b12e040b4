// Package notify routes outbound text messages to messenger channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/iliyamo/bus-ticketing-crm/internal/model"
)

// Delivery failures. Neither is fatal to the caller.
var (
	// ErrChannelUnavailable means the platform is not configured or its
	// API could not be reached.
	ErrChannelUnavailable = errors.New("channel unavailable")
	// ErrUserUnreachable means the platform refused delivery to this
	// user (blocked the bot, unsubscribed, unknown id).
	ErrUserUnreachable = errors.New("user unreachable")
)

// Sender delivers text to one user of one platform.
type Sender interface {
	Send(ctx context.Context, externalUserID, text string) error
}

// Dispatcher sends messages through the registered platform senders.
type Dispatcher struct {
	mu      sync.RWMutex
	senders map[model.Platform]Sender
	log     zerolog.Logger
}

func NewDispatcher(log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		senders: map[model.Platform]Sender{},
		log:     log.With().Str("component", "notify").Logger(),
	}
}

// Register installs the sender for platform, replacing any previous one.
func (d *Dispatcher) Register(platform model.Platform, s Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders[platform] = s
}

// Has reports whether platform has a sender.
func (d *Dispatcher) Has(platform model.Platform) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.senders[platform]
	return ok
}

// Send delivers text to externalUserID on platform. Errors always wrap
// ErrChannelUnavailable or ErrUserUnreachable.
func (d *Dispatcher) Send(ctx context.Context, platform model.Platform, externalUserID, text string) error {
	d.mu.RLock()
	s, ok := d.senders[platform]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s not configured", ErrChannelUnavailable, platform)
	}
	if externalUserID == "" {
		return fmt.Errorf("%w: empty %s id", ErrUserUnreachable, platform)
	}
	err := s.Send(ctx, externalUserID, text)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrUserUnreachable) && !errors.Is(err, ErrChannelUnavailable) {
		err = fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}
	d.log.Debug().Err(err).Str("platform", string(platform)).Str("user_id", externalUserID).Msg("send failed")
	return err
}

// SendToUser delivers text on every platform u has an identity on, in
// telegram-then-viber order, and reports how many deliveries succeeded.
func (d *Dispatcher) SendToUser(ctx context.Context, u model.BotUser, text string) (int, error) {
	var errs []error
	sent := 0
	for _, p := range []model.Platform{model.PlatformTelegram, model.PlatformViber} {
		id := u.ExternalID(p)
		if id == "" {
			continue
		}
		if err := d.Send(ctx, p, id, text); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}
