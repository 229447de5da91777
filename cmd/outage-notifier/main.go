// Command outage-notifier tells outage subscribers that the bot is down. It
// is meant to be run by the supervisor once the main process has exited.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/fleetops/fleetbot/internal/app"
	"github.com/fleetops/fleetbot/internal/infrastructure/crypto"
	"github.com/fleetops/fleetbot/internal/infrastructure/db/postgres"
	"github.com/fleetops/fleetbot/internal/infrastructure/telegram"
	"github.com/fleetops/fleetbot/internal/pkg/config"
	"github.com/fleetops/fleetbot/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "outage-notifier",
		Env:     cfg.Env,
	})

	sealer, err := crypto.NewSealer(cfg.Security.SecretKey)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid SECRET_KEY")
	}
	db, err := postgres.Connect(ctx, postgres.Config{DSN: cfg.Postgres.DSN, Timeout: cfg.Postgres.Timeout})
	if err != nil {
		log.Fatal().Err(err).Msg("database unavailable")
	}
	defer db.Close()

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram unavailable")
	}

	store := postgres.NewStore(db, sealer, cfg.Postgres.Timeout)
	sent, err := app.NotifyOutage(ctx, store, telegram.NewMessenger(bot), log)
	if err != nil {
		log.Fatal().Err(err).Msg("outage notification failed")
	}
	log.Info().Int("sent", sent).Msg("outage notices delivered")
}
