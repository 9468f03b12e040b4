// Package identity links messenger users to CRM users by the phone
// number they booked with. Linking happens right after a booking under a
// short timeout; failures go to a retry queue drained by Worker.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iliyamo/bus-ticketing-crm/internal/inventory"
	"github.com/iliyamo/bus-ticketing-crm/internal/model"
)

var (
	// ErrEmptyPhone is returned when there is nothing to link by.
	ErrEmptyPhone = errors.New("phone is empty")
	// ErrNothingLinked means no bot user carries the phone yet.
	ErrNothingLinked = errors.New("no bot user with this phone")
)

// LinkResult reports the outcome of a link.
type LinkResult struct {
	UserID uint64
	Linked int64
}

// PhoneLinker links every bot user with a phone to the owning CRM user.
type PhoneLinker interface {
	LinkPhoneToUser(ctx context.Context, phone, name string) (LinkResult, error)
}

// Linker implements PhoneLinker on an inventory.Directory.
type Linker struct {
	dir inventory.Directory
}

func NewLinker(dir inventory.Directory) *Linker { return &Linker{dir: dir} }

func (l *Linker) LinkPhoneToUser(ctx context.Context, phone, name string) (LinkResult, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return LinkResult{}, ErrEmptyPhone
	}
	u, err := l.dir.FindOrCreatePassenger(ctx, phone, name)
	if err != nil {
		return LinkResult{}, fmt.Errorf("find user by phone: %w", err)
	}
	n, err := l.dir.LinkBotUsers(ctx, phone, u.ID)
	if err != nil {
		return LinkResult{}, fmt.Errorf("link bot users: %w", err)
	}
	return LinkResult{UserID: u.ID, Linked: n}, nil
}

// BotUsers records messenger identities.
type BotUsers interface {
	UpsertBotUser(ctx context.Context, platform model.Platform, externalID, name, phone string) (model.BotUser, error)
}

// Syncer runs the post-booking identity step.
type Syncer struct {
	users   BotUsers
	linker  PhoneLinker
	queue   Queue
	timeout time.Duration
	log     zerolog.Logger
	now     func() time.Time
}

// NewSyncer returns a Syncer. timeout bounds the inline link attempt.
func NewSyncer(users BotUsers, linker PhoneLinker, queue Queue, timeout time.Duration, log zerolog.Logger) *Syncer {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Syncer{
		users:   users,
		linker:  linker,
		queue:   queue,
		timeout: timeout,
		log:     log.With().Str("component", "bot_sync").Logger(),
		now:     time.Now,
	}
}

// AfterBooking stores the messenger identity with the booking phone and
// links it to the CRM user. A failed store, a failed or slow link, or a
// link that reaches no bot user is queued for retry; the returned error
// is non-nil only when queueing also failed.
func (s *Syncer) AfterBooking(ctx context.Context, platform model.Platform, externalID, name, phone string) error {
	if strings.TrimSpace(phone) == "" {
		return nil
	}
	job := Job{
		ID:         uuid.NewString(),
		Platform:   platform,
		ExternalID: externalID,
		Phone:      phone,
		Name:       name,
	}

	linkCtx, cancel := context.WithTimeout(ctx, s.timeout)
	res, err := syncJob(linkCtx, s.users, s.linker, job)
	cancel()
	if err == nil {
		s.log.Info().Str("phone", phone).Uint64("crm_user_id", res.UserID).Int64("linked", res.Linked).Msg("bot_sync_linked")
		return nil
	}

	job.NextAttemptAt = s.now()
	job.LastError = err.Error()
	if qerr := s.queue.Enqueue(ctx, job); qerr != nil {
		s.log.Error().Err(qerr).Str("phone", phone).Msg("bot_sync_enqueue_failed")
		return fmt.Errorf("enqueue link job: %w", qerr)
	}
	s.log.Warn().Err(err).Str("phone", phone).Str("job_id", job.ID).Msg("bot_sync_queued")
	return nil
}

// syncJob stores the job's messenger identity, when it has one, and
// links the phone. Linking nothing counts as a failure.
func syncJob(ctx context.Context, users BotUsers, linker PhoneLinker, job Job) (LinkResult, error) {
	if job.ExternalID != "" && users != nil {
		if _, err := users.UpsertBotUser(ctx, job.Platform, job.ExternalID, job.Name, job.Phone); err != nil {
			return LinkResult{}, fmt.Errorf("store bot user: %w", err)
		}
	}
	res, err := linker.LinkPhoneToUser(ctx, job.Phone, job.Name)
	if err != nil {
		return res, err
	}
	if res.Linked == 0 {
		return res, ErrNothingLinked
	}
	return res, nil
}
