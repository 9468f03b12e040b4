package model

import "time"

// Roles stored in users.role. Passengers are created implicitly from
// bookings, staff roles gate the admin API.
const (
	RolePassenger = "passenger"
	RoleManager   = "manager"
	RoleAdmin     = "admin"
)

// User represents a CRM user record as stored in the `users` table.
// Phone is unique and is the key bot users are linked by.
type User struct {
	ID        uint64
	Name      string
	Phone     string
	Role      string
	CreatedAt time.Time
}

// Platform identifies a messaging channel.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformViber    Platform = "viber"
)

// BotUser mirrors the `bot_users` table: a messenger identity with the
// phone it last booked with and, once linked, the CRM user it belongs
// to. Empty TelegramID/ViberID means no identity on that platform.
type BotUser struct {
	ID         uint64
	TelegramID string
	ViberID    string
	Name       string
	Phone      string
	UserID     *uint64
	UpdatedAt  time.Time
}

// ExternalID returns the identity of u on platform p.
func (u BotUser) ExternalID(p Platform) string {
	switch p {
	case PlatformTelegram:
		return u.TelegramID
	case PlatformViber:
		return u.ViberID
	}
	return ""
}
