package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/Executor/internal/config"
	"github.com/Alias1177/Executor/internal/executor"
	"github.com/Alias1177/Executor/internal/guardian"
	"github.com/Alias1177/Executor/internal/ipc"
	"github.com/Alias1177/Executor/internal/journal"
	"github.com/Alias1177/Executor/internal/ladder"
	"github.com/Alias1177/Executor/internal/notify"
	"github.com/Alias1177/Executor/internal/risk"
	"github.com/Alias1177/Executor/internal/scheduler"
	"github.com/Alias1177/Executor/internal/stealth"
	"github.com/Alias1177/Executor/internal/terminal"
	"github.com/Alias1177/Executor/internal/validate"
	"github.com/Alias1177/Executor/models"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	lvl, _ := zerolog.ParseLevel(cfg.LogLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, dir := range []string{
		cfg.SignalDir,
		cfg.CommandDir,
		cfg.ArchiveDir,
		filepath.Dir(cfg.StatusPath),
		filepath.Dir(cfg.HeartbeatPath),
		filepath.Dir(cfg.JournalPath),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("Failed to create transport directory")
		}
	}

	fileJournal, err := journal.NewFile(cfg.JournalPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open trade journal")
	}
	sinks := []models.Journal{fileJournal}
	if cfg.DB.Host != "" {
		pg, err := journal.NewPostgres(cfg.DB)
		if err != nil {
			log.Warn().Err(err).Msg("Postgres journal unavailable, continuing with file journal only")
		} else {
			sinks = append(sinks, pg)
		}
	}
	trades := journal.NewMulti(sinks...)
	defer trades.Close()

	var notifier models.Notifier
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram notifier unavailable, alerts disabled")
		} else {
			notifier = tg
		}
	}

	term := terminal.NewClient(cfg.TerminalURL, cfg.RequestTimeout)

	// The guardian anchors its daily limits to the balance at startup, so a
	// terminal that cannot answer now is a fatal condition.
	snap, err := term.Account(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.TerminalURL).Msg("Terminal unreachable")
	}
	log.Info().Str("account", snap.Account).Float64("balance", snap.Balance).Msg("Terminal connected")

	ctrl := executor.New(executor.Deps{
		Terminal:     term,
		Normalizer:   validate.New(nil),
		Risk:         risk.NewEngine(nil),
		Ladder:       ladder.NewManager(cfg.Ladder, nil),
		Stealth:      stealth.New(cfg.Stealth, nil),
		Guardian:     guardian.New(cfg.Guardian, snap.Balance, nil),
		Journal:      trades,
		Notifier:     notifier,
		RiskConfig:   cfg.Risk,
		Magic:        cfg.Magic,
		PlaceTimeout: cfg.PlaceTimeout,
	})
	if err := ctrl.RefreshInstruments(ctx); err != nil {
		log.Warn().Err(err).Msg("Instrument list unavailable, symbol validation degraded")
	}

	handler := ipc.New(ipc.Config{
		SignalDir:     cfg.SignalDir,
		CommandDir:    cfg.CommandDir,
		ArchiveDir:    cfg.ArchiveDir,
		StatusPath:    cfg.StatusPath,
		HeartbeatPath: cfg.HeartbeatPath,
	}, ctrl, ctrl)

	publishStatus := func() {
		rec := ctrl.Status()
		rec.Terminal = cfg.TerminalName
		rec.Account = snap.Account
		if err := handler.WriteStatus(rec); err != nil {
			log.Error().Err(err).Msg("Status publish failed")
		}
	}
	publishStatus()

	sched := scheduler.New(nil)
	sched.Every("signals", cfg.SignalPoll, func(ctx context.Context) {
		handler.Poll(ctx)
		publishStatus()
	})
	sched.Every("commands", cfg.CommandPoll, handler.PollCommands)
	sched.Every("trailing", cfg.TrailingPoll, ctrl.TrailingCycle)
	sched.Every("guardian", cfg.GuardianPoll, func(ctx context.Context) {
		ctrl.GuardianCycle(ctx)
		publishStatus()
	})
	sched.Every("heartbeat", cfg.HeartbeatPoll, func(ctx context.Context) {
		if err := handler.WriteHeartbeat(ctrl.Heartbeat(ctx)); err != nil {
			log.Error().Err(err).Msg("Heartbeat publish failed")
		}
	})

	log.Info().
		Str("signals", cfg.SignalDir).
		Str("terminal", cfg.TerminalURL).
		Str("policy", string(cfg.Risk.Policy)).
		Msg("Execution engine started")

	sched.Run(ctx)
	log.Info().Msg("Execution engine stopped")
}
