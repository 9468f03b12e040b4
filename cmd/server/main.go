package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/bus-ticketing-crm/internal/booking"
	"github.com/iliyamo/bus-ticketing-crm/internal/broadcast"
	"github.com/iliyamo/bus-ticketing-crm/internal/channel/telegram"
	"github.com/iliyamo/bus-ticketing-crm/internal/channel/viber"
	"github.com/iliyamo/bus-ticketing-crm/internal/config"
	"github.com/iliyamo/bus-ticketing-crm/internal/conversation"
	"github.com/iliyamo/bus-ticketing-crm/internal/database"
	"github.com/iliyamo/bus-ticketing-crm/internal/handler"
	"github.com/iliyamo/bus-ticketing-crm/internal/identity"
	"github.com/iliyamo/bus-ticketing-crm/internal/inventory"
	"github.com/iliyamo/bus-ticketing-crm/internal/logging"
	"github.com/iliyamo/bus-ticketing-crm/internal/messages"
	"github.com/iliyamo/bus-ticketing-crm/internal/middleware"
	"github.com/iliyamo/bus-ticketing-crm/internal/model"
	"github.com/iliyamo/bus-ticketing-crm/internal/notify"
	"github.com/iliyamo/bus-ticketing-crm/internal/queue"
	"github.com/iliyamo/bus-ticketing-crm/internal/reminder"
	"github.com/iliyamo/bus-ticketing-crm/internal/repository"
	"github.com/iliyamo/bus-ticketing-crm/internal/router"
)

const shutdownTimeout = 10 * time.Second

// backend is what both storage drivers provide.
type backend interface {
	inventory.Store
	inventory.Directory
	inventory.Admin
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.Env)
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	msgs, err := messages.Load(cfg.MessagesFile)
	if err != nil {
		return err
	}

	store, pinger, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.Warn().Str("addr", cfg.Redis.Address()).Msg("redis unavailable; rate limit, cache and redis sessions disabled")
	} else {
		defer rdb.Close()
	}

	broker := queue.NewBroker(cfg.AMQP.BrokerURL(), log)
	defer broker.Close()

	engine := booking.NewEngine(store, queue.NewPublisher(broker), log)

	var syncQueue identity.Queue = identity.NewMemoryQueue()
	if cfg.Sync.Queue == "amqp" {
		syncQueue = queue.NewSyncQueue(broker)
	}
	linker := identity.NewLinker(store)
	syncer := identity.NewSyncer(store, linker, syncQueue, cfg.Sync.Timeout, log)
	worker := identity.NewWorker(identity.WorkerConfig{
		Interval:    cfg.Sync.Interval,
		Batch:       cfg.Sync.Batch,
		MaxAttempts: cfg.Sync.MaxAttempts,
		Timeout:     cfg.Sync.Timeout,
	}, syncQueue, store, linker, log)

	sessions, memSessions := sessionStore(cfg.Session, rdb, log)
	machine := conversation.NewMachine(conversation.Deps{
		Store:    sessions,
		Booker:   engine,
		Profiles: store,
		Identity: syncer,
		Messages: msgs,
		Location: loc,
		Log:      log,
	})

	dispatcher := notify.NewDispatcher(log)
	var (
		hooks router.Webhooks
		tgBot *telegram.Bot
		vbBot *viber.Bot
		bots  = cfg.Bots
	)
	if bots.TelegramToken != "" {
		tgBot, err = telegram.New(bots.TelegramToken, machine, msgs, bots.TelegramRate, log)
		if err != nil {
			return err
		}
		dispatcher.Register(model.PlatformTelegram, tgBot)
		if bots.TelegramMode == "webhook" {
			hooks.Telegram = tgBot.WebhookHandler(bots.TelegramSecret)
			if bots.TelegramHook != "" {
				if err := tgBot.SetWebhook(bots.TelegramHook, bots.TelegramSecret); err != nil {
					return err
				}
			}
		}
	}
	if bots.ViberToken != "" {
		vbBot = viber.New(viber.Config{
			Token:   bots.ViberToken,
			Name:    bots.ViberName,
			Avatar:  bots.ViberAvatar,
			BaseURL: bots.ViberAPIURL,
		}, machine, msgs, log)
		dispatcher.Register(model.PlatformViber, vbBot)
		hooks.Viber = vbBot.WebhookHandler()
	}

	scheduler := reminder.New(reminder.Config{
		Offsets:         cfg.Reminder.Offsets,
		Interval:        cfg.Reminder.Interval,
		RecordOnFailure: cfg.Reminder.RecordOnFailure,
		Location:        loc,
	}, store, store, dispatcher, msgs, log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit("1M"))
	e.Use(middleware.RequestLogger(log))

	limiter := middleware.NewTokenBucket(cfg.RateLimit, rdb, log)
	router.RegisterRoutes(e,
		&handler.HealthHandler{DB: pinger},
		&handler.PublicHandler{Engine: engine, Location: loc},
		middleware.NewRedisCache(cfg.Cache, rdb, log),
		limiter,
	)
	router.RegisterAdmin(e, &handler.AdminHandler{
		Engine:    engine,
		Schedule:  store,
		Broadcast: broadcast.New(store, store, dispatcher, bots.BroadcastRate, log),
	}, cfg.JWT.Secret)
	router.RegisterWebhooks(e, hooks)

	g, gctx := errgroup.WithContext(ctx)
	addr := ":" + cfg.Port
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Str("store", cfg.StoreDriver).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(sctx)
	})
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return queue.NewAuditConsumer(cfg.AMQP.BrokerURL(), cfg.AMQP.AuditLog, log).Run(gctx) })
	if cfg.Reminder.Enabled {
		g.Go(func() error { return scheduler.Run(gctx) })
	}
	if memSessions != nil {
		g.Go(func() error { return memSessions.RunSweeper(gctx, time.Minute, log) })
	}
	if tgBot != nil && bots.TelegramMode != "webhook" {
		g.Go(func() error { return tgBot.Run(gctx) })
	}
	if vbBot != nil && bots.ViberHook != "" {
		// Viber calls the URL back during registration, so the listener
		// has to be up first.
		g.Go(func() error {
			registerViber(gctx, vbBot, bots.ViberHook, log)
			return nil
		})
	}

	err = g.Wait()
	machine.Wait()
	log.Info().Msg("shutdown complete")
	return err
}

func openStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (backend, handler.Pinger, func(), error) {
	if cfg.StoreDriver == "memory" {
		m := inventory.NewMemoryStore()
		seedDemo(m)
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return m, nil, func() {}, nil
	}
	db, err := database.Open(cfg.DB)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.DB.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
	}
	return repository.NewStore(db), db, func() { _ = db.Close() }, nil
}

func sessionStore(cfg config.SessionConfig, rdb *redis.Client, log zerolog.Logger) (conversation.SessionStore, *conversation.MemoryStore) {
	if cfg.Store == "redis" && rdb != nil {
		return conversation.NewRedisStore(rdb, cfg.TTL), nil
	}
	if cfg.Store == "redis" {
		log.Warn().Msg("redis session store requested but redis is down; sessions kept in memory")
	}
	m := conversation.NewMemoryStore(cfg.TTL)
	return m, m
}

func registerViber(ctx context.Context, bot *viber.Bot, url string, log zerolog.Logger) {
	wait := time.Second
	for attempt := 1; attempt <= 5; attempt++ {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		err := bot.SetWebhook(ctx, url)
		if err == nil {
			return
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("viber webhook registration failed")
		wait *= 2
	}
}

// seedDemo gives the in-memory store one route and bus so that trips can
// be generated through the admin API.
func seedDemo(m *inventory.MemoryStore) {
	m.AddRoute(1, "Київ", "Львів")
	m.AddBus(1, "AA0001AA", 50)
}
