package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetops/fleetbot/internal/app"
	"github.com/fleetops/fleetbot/internal/infrastructure/http/middleware"
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

	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := mintToken(cfg, os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "fleetbot",
		Env:     cfg.Env,
		Caller:  cfg.IsDevelopment(),
	})

	if err := app.Run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("fleetbot exited")
	}
}

// mintToken prints an operator JWT for the ops endpoints.
func mintToken(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "ops", "token subject")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	token, err := middleware.NewOpsToken(cfg.OpsJWTSecret, *subject, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
