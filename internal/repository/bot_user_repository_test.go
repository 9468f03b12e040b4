package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/iliyamo/bus-ticketing-crm/internal/model"
)

func TestUpsertBotUserUsesPlatformColumn(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()
	repo := NewBotUserRepo(db)
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO bot_users \(viber_id, name, phone\)`).WithArgs("v-1", "Ann", "380501").
		WillReturnResult(sqlmock.NewResult(4, 1))
	mock.ExpectQuery(`FROM bot_users WHERE viber_id = \?`).WithArgs("v-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "telegram_id", "viber_id", "name", "phone", "user_id", "updated_at"}).
			AddRow(4, nil, "v-1", "Ann", "380501", nil, now))

	u, err := repo.UpsertBotUser(context.Background(), model.PlatformViber, "v-1", "Ann", "380501")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if u.ID != 4 || u.ViberID != "v-1" || u.TelegramID != "" || u.UserID != nil {
		t.Fatalf("bot user = %+v", u)
	}
	if _, err := repo.UpsertBotUser(context.Background(), model.Platform("sms"), "x", "", ""); err == nil {
		t.Fatal("expected error for unknown platform")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLinkBotUsers(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`UPDATE bot_users SET user_id = \? WHERE phone = \?`).WithArgs(12, "380501").
		WillReturnResult(sqlmock.NewResult(0, 2))
	n, err := NewBotUserRepo(db).LinkBotUsers(context.Background(), "380501", 12)
	if err != nil || n != 2 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestLinkBotUsersCountsAlreadyLinked(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`UPDATE bot_users SET user_id = \? WHERE phone = \?`).WithArgs(12, "380501").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM bot_users WHERE phone = \? AND user_id = \?`).WithArgs("380501", 12).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	n, err := NewBotUserRepo(db).LinkBotUsers(context.Background(), "380501", 12)
	if err != nil || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
