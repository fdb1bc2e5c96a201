// Package main contains the entrypoint for the aggregator: the process that
// watches channels, filters posts, and runs author dialogs.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/edgard/ownerscout/internal/bot"
	"github.com/edgard/ownerscout/internal/bot/tasks"
	"github.com/edgard/ownerscout/internal/config"
	"github.com/edgard/ownerscout/internal/database"
	"github.com/edgard/ownerscout/internal/filter"
	"github.com/edgard/ownerscout/internal/logger"
	"github.com/edgard/ownerscout/internal/notify"
	"github.com/edgard/ownerscout/internal/pipeline"
	"github.com/edgard/ownerscout/internal/ratelimit"
	"github.com/edgard/ownerscout/internal/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop() // Ensure context cancellation is signaled before exit
	os.Exit(exitCode)
}

// run initializes and starts all aggregator components (config, logger, db,
// pipelines, bot, scheduler), handles graceful shutdown, and returns an exit
// code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.New(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	postFilter := filter.New(cfg.Filter.PostKeywords, cfg.Filter.OwnerKeywords, cfg.Filter.AgentKeywords)
	limiter := ratelimit.New(cfg.Limits.DMIntervalMin, cfg.Limits.DMIntervalMax, cfg.Limits.DailyDMLimit, log)
	notifier := notify.NewHTTPNotifier(cfg.Notifier.BaseURL, cfg.Notifier.Timeout, log)
	locks := pipeline.NewUserLocks()

	// The sender needs the bot instance, which needs the router, which needs
	// the sender. Break the cycle by wiring the sender after bot creation.
	sender := &deferredSender{}

	intake := pipeline.NewIntake(store, postFilter, limiter, sender, locks, log, pipeline.IntakeConfig{
		QuestionText:     cfg.Dialog.QuestionText,
		FloodCooldownMin: cfg.Limits.FloodCooldownMin,
		FloodCooldownMax: cfg.Limits.FloodCooldownMax,
		FloodWaitMargin:  cfg.Limits.FloodWaitMargin,
	})
	replies := pipeline.NewReplies(store, postFilter, notifier, locks, log)

	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(telegram.NewRouter(intake, replies, log)),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}
	sender.Sender = telegram.NewBotSender(tg, log)

	tDeps := tasks.TaskDeps{
		Logger: log,
		Store:  store,
		Config: cfg,
	}
	sched := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	app := bot.NewBot(log, tg, sched, nil)

	log.Info("Starting aggregator...")
	runErr := app.Run(ctx)
	log.Info("Aggregator run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Aggregator stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Aggregator stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}

// deferredSender delegates to a Sender assigned after construction.
type deferredSender struct {
	pipeline.Sender
}
