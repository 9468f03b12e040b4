package messages

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iliyamo/bus-ticketing-crm/internal/model"
)

func TestDefaultCatalogComplete(t *testing.T) {
	c := Default()
	for name, v := range map[string]string{
		"welcome":         c.Welcome,
		"buttons.book":    c.Buttons.Book,
		"choose_date":     c.ChooseDate,
		"trip_row":        c.TripRowFmt,
		"seat_taken":      c.SeatTaken,
		"ask_phone":       c.AskPhone,
		"booking_success": c.BookingOK,
		"booking_line":    c.BookingLineFmt,
		"reminder":        c.ReminderFmt,
	} {
		if v == "" {
			t.Errorf("%s is empty", name)
		}
	}
}

func TestHelpers(t *testing.T) {
	c := Default()
	trip := model.Trip{ID: 7, FromCity: "Київ", ToCity: "Львів", Date: "2026-03-01", Time: "08:30", Price: 450}
	if got, want := c.TripRow(trip), "#7 Київ → Львів 2026-03-01 08:30 — 450 UAH"; got != want {
		t.Fatalf("TripRow = %q, want %q", got, want)
	}
	if got := c.SeatLabel(3, false); got != "❌3" {
		t.Fatalf("SeatLabel = %q", got)
	}

	d := model.BookingDetail{
		Booking:  model.Booking{ID: 12, PassengerName: "Олена", SeatNumber: 4},
		TripDate: "2026-03-01", TripTime: "08:30", FromCity: "Київ", ToCity: "Львів",
	}
	want := "Нагадування: через 3 годин рейс Київ → Львів 2026-03-01 08:30. Пасажир: Олена, місце 4. Номер броні: 12"
	if got := c.Reminder(3, d); got != want {
		t.Fatalf("Reminder = %q", got)
	}
	if got := c.BookingSuccess(d.Booking); !strings.Contains(got, "12") || !strings.Contains(got, "4") {
		t.Fatalf("BookingSuccess = %q", got)
	}
}

func TestLoadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.yaml")
	if err := os.WriteFile(path, []byte("welcome: \"Hello\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Welcome != "Hello" {
		t.Fatalf("welcome = %q", c.Welcome)
	}
	if c.ChooseDate != Default().ChooseDate {
		t.Fatalf("non-overridden key lost: %q", c.ChooseDate)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
