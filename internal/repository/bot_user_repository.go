package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/bus-ticketing-crm/internal/model"
)

// BotUserRepo stores messenger identities. telegram_id and viber_id are
// each unique and nullable.
type BotUserRepo struct {
	db *sql.DB
}

func NewBotUserRepo(db *sql.DB) *BotUserRepo { return &BotUserRepo{db: db} }

const botUserColumns = `id, telegram_id, viber_id, name, phone, user_id, updated_at`

func platformColumn(p model.Platform) (string, error) {
	switch p {
	case model.PlatformTelegram:
		return "telegram_id", nil
	case model.PlatformViber:
		return "viber_id", nil
	}
	return "", fmt.Errorf("unknown platform %q", p)
}

func scanBotUser(row rowScanner) (model.BotUser, error) {
	var u model.BotUser
	var tg, vb sql.NullString
	var uid sql.NullInt64
	if err := row.Scan(&u.ID, &tg, &vb, &u.Name, &u.Phone, &uid, &u.UpdatedAt); err != nil {
		return model.BotUser{}, err
	}
	u.TelegramID, u.ViberID = tg.String, vb.String
	if uid.Valid {
		id := uint64(uid.Int64)
		u.UserID = &id
	}
	return u, nil
}

// UpsertBotUser creates or refreshes the identity. Empty name or phone
// keep the stored value.
func (r *BotUserRepo) UpsertBotUser(ctx context.Context, platform model.Platform, externalID, name, phone string) (model.BotUser, error) {
	col, err := platformColumn(platform)
	if err != nil {
		return model.BotUser{}, err
	}
	q := `INSERT INTO bot_users (` + col + `, name, phone) VALUES (?, ?, ?)
       ON DUPLICATE KEY UPDATE
         name = IF(VALUES(name) = '', name, VALUES(name)),
         phone = IF(VALUES(phone) = '', phone, VALUES(phone))`
	if _, err := r.db.ExecContext(ctx, q, externalID, name, phone); err != nil {
		return model.BotUser{}, err
	}
	u, ok, err := r.GetBotUser(ctx, platform, externalID)
	if err != nil {
		return model.BotUser{}, err
	}
	if !ok {
		return model.BotUser{}, fmt.Errorf("bot user %s/%s vanished after upsert", platform, externalID)
	}
	return u, nil
}

// GetBotUser looks up an identity by its platform id.
func (r *BotUserRepo) GetBotUser(ctx context.Context, platform model.Platform, externalID string) (model.BotUser, bool, error) {
	col, err := platformColumn(platform)
	if err != nil {
		return model.BotUser{}, false, err
	}
	u, err := scanBotUser(r.db.QueryRowContext(ctx,
		`SELECT `+botUserColumns+` FROM bot_users WHERE `+col+` = ?`, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.BotUser{}, false, nil
	}
	if err != nil {
		return model.BotUser{}, false, err
	}
	return u, true, nil
}

// ListBotUsersByPhone returns every identity that booked with phone.
func (r *BotUserRepo) ListBotUsersByPhone(ctx context.Context, phone string) ([]model.BotUser, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+botUserColumns+` FROM bot_users WHERE phone = ? ORDER BY id`, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.BotUser
	for rows.Next() {
		u, err := scanBotUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// LinkBotUsers attaches all identities with phone to the CRM user.
func (r *BotUserRepo) LinkBotUsers(ctx context.Context, phone string, userID uint64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE bot_users SET user_id = ? WHERE phone = ?`, userID, phone)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil || n > 0 {
		return n, err
	}
	// MySQL reports changed rows, so rows already linked to userID count 0
	err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bot_users WHERE phone = ? AND user_id = ?`, phone, userID).Scan(&n)
	return n, err
}
