package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/bus-ticketing-crm/internal/model"
)

// UserRepo manages CRM users. users.phone is unique.
type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// FindOrCreatePassenger returns the user owning phone, creating a
// passenger account on first sight.
func (r *UserRepo) FindOrCreatePassenger(ctx context.Context, phone, name string) (model.User, error) {
	phone = strings.TrimSpace(phone)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (name, phone, role) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE id = id`,
		name, phone, model.RolePassenger)
	if err != nil {
		return model.User{}, err
	}
	var u model.User
	err = r.db.QueryRowContext(ctx,
		`SELECT id, name, phone, role, created_at FROM users WHERE phone = ? LIMIT 1`, phone).
		Scan(&u.ID, &u.Name, &u.Phone, &u.Role, &u.CreatedAt)
	return u, err
}
