// Package app wires the bot's components together and runs them until the
// context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fleetops/fleetbot/internal/api"
	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/core/ports"
	"github.com/fleetops/fleetbot/internal/core/service"
	"github.com/fleetops/fleetbot/internal/infrastructure/crypto"
	"github.com/fleetops/fleetbot/internal/infrastructure/db/memory"
	"github.com/fleetops/fleetbot/internal/infrastructure/db/mongo"
	"github.com/fleetops/fleetbot/internal/infrastructure/db/postgres"
	"github.com/fleetops/fleetbot/internal/infrastructure/db/redis"
	"github.com/fleetops/fleetbot/internal/infrastructure/hetzner"
	fhttp "github.com/fleetops/fleetbot/internal/infrastructure/http"
	"github.com/fleetops/fleetbot/internal/infrastructure/http/handlers"
	"github.com/fleetops/fleetbot/internal/infrastructure/queue"
	"github.com/fleetops/fleetbot/internal/infrastructure/telegram"
	"github.com/fleetops/fleetbot/internal/pkg/config"
	"github.com/fleetops/fleetbot/pkg/logger"
)

const (
	janitorInterval = time.Minute
	shutdownTimeout = 10 * time.Second
)

// Run connects every backing service, applies migrations and serves until
// ctx is cancelled or a moderator confirms /stop_bot. Boot failures are
// returned before anything is served.
func Run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sealer, err := crypto.NewSealer(cfg.Security.SecretKey)
	if err != nil {
		return err
	}
	if !sealer.Enabled() {
		log.Warn().Msg("SECRET_KEY not set, 2FA secrets are stored unsealed")
	}

	// --- PostgreSQL ---
	db, err := postgres.Connect(ctx, postgres.Config{DSN: cfg.Postgres.DSN, Timeout: cfg.Postgres.Timeout})
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}
	store := postgres.NewStore(db, sealer, cfg.Postgres.Timeout)
	codes := postgres.NewCodeRegistry(db, cfg.Postgres.Timeout)

	// --- MongoDB ---
	mongoClient, mdb, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database, Timeout: cfg.Mongo.Timeout})
	if err != nil {
		return err
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()
	audit := mongo.NewAuditRepository(mdb, cfg.Mongo.Timeout)
	if err := audit.EnsureIndexes(ctx); err != nil {
		return err
	}

	// --- Redis (optional) ---
	var rdb *goredis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = redis.Connect(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	if id := cfg.Security.BootstrapModeratorID; id != "" {
		nominated, err := store.BootstrapModerator(ctx, id)
		if err != nil {
			return err
		}
		if nominated {
			log.Info().Str("principal", id).Msg("bootstrap moderator nominated, awaiting /register_admin")
		}
	}

	// --- Core ---
	gate := service.NewAccessGate(store, logger.Component(log, "gate"))
	if err := gate.Reload(ctx); err != nil {
		log.Warn().Err(err).Msg("initial access snapshot failed, falling back to per-id reads")
	}
	counter := attemptCounter(cfg, rdb)
	lockout := service.NewLockoutTracker(counter, store, gate, cfg.Security.LockoutMaxAttempts, logger.Component(log, "lockout"))
	sessions := service.NewSessions(cfg.Security.DialogIdleTimeout)
	conv := service.NewConversations(service.ConversationDeps{
		Store:      store,
		Provider:   hetzner.NewClient(cfg.Provider.BaseURL, &http.Client{Timeout: cfg.Provider.Timeout}),
		Audit:      audit,
		Gate:       gate,
		Enrollment: service.NewEnrollmentService(codes, lockout, logger.Component(log, "enrollment")),
		Lockout:    lockout,
		TOTP:       service.NewTOTPEngine(cfg.Security.UserIssuer, cfg.Security.ModeratorIssuer),
		Sessions:   sessions,
		Policy: domain.RetryPolicy{
			EnrollmentReprompt:   cfg.Security.EnrollmentReprompt,
			ConfirmationReprompt: cfg.Security.ConfirmationReprompt,
		},
		Log: logger.Component(log, "conversations"),
	})

	// --- Chat transport ---
	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	router := api.NewRouter(api.Deps{
		Conversations: conv,
		Subscriptions: service.NewSubscriptions(store, logger.Component(log, "subscriptions")),
		Gate:          gate,
		Sessions:      sessions,
		Messenger:     telegram.NewMessenger(bot),
		Log:           logger.Component(log, "router"),
		Shutdown:      cancel,
	})

	var opts []queue.Option
	if rdb != nil {
		opts = append(opts, queue.WithDeduper(redis.NewDedupChecker(rdb)))
	}
	dispatcher := queue.NewDispatcher(cfg.Workers, router, logger.Component(log, "dispatcher"), opts...)
	dispatcher.Start(ctx)
	go router.RunJanitor(ctx, janitorInterval)
	pruners := []pruner{dispatcher}
	if p, ok := counter.(pruner); ok {
		pruners = append(pruners, p)
	}
	go runPruners(ctx, janitorInterval, log, pruners...)

	// --- Ops HTTP ---
	checks := []handlers.Check{
		{Name: "postgres", Ping: db.PingContext},
		{Name: "mongodb", Ping: func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) }},
	}
	if rdb != nil {
		checks = append(checks, handlers.Check{Name: "redis", Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }})
	}
	deps := fhttp.Deps{Checks: checks, Audit: audit, OpsJWTSecret: cfg.OpsJWTSecret}
	if cfg.Telegram.Mode == config.ModeWebhook {
		deps.Webhook = handlers.NewWebhookHandler(dispatcher, cfg.Telegram.WebhookSecret)
	}
	e := fhttp.NewRouter(deps)

	errc := make(chan error, 2)
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http: %w", err)
		}
	}()

	switch cfg.Telegram.Mode {
	case config.ModeWebhook:
		if err := telegram.RegisterWebhook(bot, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			cancel()
			return err
		}
		log.Info().Str("url", cfg.Telegram.WebhookURL).Msg("webhook registered")
	default:
		go func() {
			if err := telegram.Poll(ctx, bot, dispatcher.Enqueue, logger.Component(log, "telegram")); err != nil {
				errc <- err
			}
		}()
	}
	log.Info().Str("port", cfg.Port).Str("mode", cfg.Telegram.Mode).Int("workers", cfg.Workers).Msg("fleetbot started")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
		log.Error().Err(runErr).Msg("component failed, shutting down")
		cancel()
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	dispatcher.Wait()
	log.Info().Msg("fleetbot stopped")
	return runErr
}

func attemptCounter(cfg *config.Config, rdb *goredis.Client) ports.AttemptCounter {
	if cfg.Security.LockoutBackend == config.BackendRedis && rdb != nil {
		return redis.NewAttemptCounter(rdb, cfg.Security.LockoutWindow)
	}
	return memory.NewAttemptCounter(cfg.Security.LockoutWindow)
}

// pruner is per-principal process state that is trimmed on the janitor tick.
type pruner interface {
	Prune() int
}

func runPruners(ctx context.Context, interval time.Duration, log zerolog.Logger, ps ...pruner) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n := 0
			for _, p := range ps {
				n += p.Prune()
			}
			if n > 0 {
				log.Debug().Int("entries", n).Msg("pruned idle per-principal state")
			}
		}
	}
}
