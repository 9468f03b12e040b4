package conversation

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/bus-ticketing-crm/internal/model"
)

func TestRedisStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	s := NewRedisStore(rdb, time.Minute)
	k := Key{Platform: model.PlatformTelegram, UserID: "test-" + time.Now().Format("150405.000")}
	t.Cleanup(func() { _ = s.Delete(context.Background(), k) })

	want := Session{Platform: k.Platform, UserID: k.UserID, State: StateBookingFillPhone, Draft: Draft{TripID: 4, Seat: 2, Name: "Олена"}}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := s.Get(ctx, k)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.State != want.State || got.Draft != want.Draft {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if ttl := rdb.TTL(ctx, redisKey(k)).Val(); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("ttl = %v", ttl)
	}

	if err := rdb.Set(ctx, redisKey(k), "{broken", time.Minute).Err(); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := s.Get(ctx, k); ok || err != nil {
		t.Fatalf("corrupt value: ok=%v err=%v", ok, err)
	}

	if err := s.Delete(ctx, k); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, k); ok {
		t.Fatal("session still present after delete")
	}
}

func TestMemoryStoreSweeperStops(t *testing.T) {
	s := NewMemoryStore(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Save(ctx, Session{Platform: model.PlatformViber, UserID: "u", UpdatedAt: time.Now().Add(-time.Hour)}); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- s.RunSweeper(ctx, 5*time.Millisecond, zerolog.Nop()) }()

	deadline := time.After(2 * time.Second)
	for s.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("sweeper did not remove the expired session")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("RunSweeper: %v", err)
	}
}
