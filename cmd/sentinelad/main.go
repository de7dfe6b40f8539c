// Package main is the entry point for sentinelad, the monitoring core's
// daemon: it wires the monitors loader, controller, executor and
// reactions bus together against a single SQLite-backed store, starts
// the operator admin HTTP surface, and blocks until told to shut down.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/clock"
	"github.com/aristath/sentinel/internal/config"
	"github.com/aristath/sentinel/internal/controller"
	"github.com/aristath/sentinel/internal/database"
	"github.com/aristath/sentinel/internal/events"
	"github.com/aristath/sentinel/internal/executor"
	"github.com/aristath/sentinel/internal/loader"
	"github.com/aristath/sentinel/internal/monitor"
	"github.com/aristath/sentinel/internal/monitors"
	"github.com/aristath/sentinel/internal/monitors/examples"
	"github.com/aristath/sentinel/internal/notify/slack"
	"github.com/aristath/sentinel/internal/queue"
	"github.com/aristath/sentinel/internal/registry"
	"github.com/aristath/sentinel/internal/reliability"
	"github.com/aristath/sentinel/internal/routine"
	"github.com/aristath/sentinel/internal/server"
	"github.com/aristath/sentinel/internal/store"
	"github.com/aristath/sentinel/pkg/logger"
)

func main() {
	var dataDirFlag string
	flag.StringVar(&dataDirFlag, "data-dir", "", "data directory (overrides CORE_DATA_DIR)")
	flag.Parse()

	cfg, err := config.Load(dataDirFlag)
	if err != nil {
		logger.New(logger.Config{Level: "info", Pretty: true}).Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  getenv("CORE_LOG_LEVEL", "info"),
		Pretty: getenvBool("CORE_LOG_PRETTY", true),
	})
	log.Info().Str("data_dir", cfg.DataDir).Msg("starting sentinelad")

	db, err := store.New(store.Config{Path: filepath.Join(cfg.DataDir, "sentinel.db"), Profile: store.ProfileLedger, Name: "sentinel"})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open main database")
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate main database")
	}

	queueDB, err := store.New(store.Config{Path: filepath.Join(cfg.DataDir, "queue.db"), Profile: store.ProfileCache, Name: "queue"})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open queue database")
	}
	defer queueDB.Close()
	if err := queueDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate queue database")
	}

	q := queue.NewDurableQueue(queueDB.Conn(), cfg.QueueVisibilityTime)
	reg := registry.New()
	clk := clock.NewReal(cfg.TimeZone)
	bus := events.NewBus(reg, q, cfg.LogAllEvents, log)

	var slackNotifier monitor.Notifier
	var slackNotification *slack.Notification
	if cfg.SlackEnabled() {
		client := slack.NewClient(cfg.SlackToken)
		slackNotification = slack.New(client, db, cfg.SlackMainChannel, "Sentinel Alert", nil)
		slackNotifier = slackNotification
		log.Info().Str("channel", cfg.SlackMainChannel).Msg("slack notifications enabled")
	}

	ld := loader.New(db, reg, bus, clk, cfg.MonitorsLoadSchedule, cfg.EarlyLoadTime, cfg.CoolDownTime, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := monitors.RegisterBuiltins(ctx, ld, db, slackNotifier, cfg.ExecutorMonitorTimeout, cfg.DataDir, log); err != nil {
		log.Fatal().Err(err).Msg("failed to register builtin monitors")
	}

	if cfg.LoadSampleMonitors {
		var queryDB *database.DB
		if err := examples.RegisterAll(ctx, ld, db, queryDB, log); err != nil {
			log.Fatal().Err(err).Msg("failed to register sample monitors")
		}
	}

	engine := routine.New(db, bus, time.Now, cfg.MaxIssuesCreation, log)

	plugins := executor.NewPluginRegistry()
	if slackNotification != nil {
		monitors.RegisterSlackPlugin(plugins, slackNotification)
	}
	exec := executor.New(db, q, reg, engine, bus, plugins, cfg, log)

	procedures := controller.NewProcedures(db, cfg.ControllerProcedures, clk, bus, log)
	ctrl := controller.New(db, q, reg, clk, procedures, cfg.ControllerProcessSchedule, cfg.ControllerConcurrency, log)

	r2Handlers, closeBackupDBs := setupBackups(cfg, log)
	if closeBackupDBs != nil {
		defer closeBackupDBs()
	}

	srv := server.New(server.Config{
		Port:     cfg.Port,
		DB:       db,
		Queue:    q,
		Registry: reg,
		Bus:      bus,
		R2Backup: r2Handlers,
		Log:      log,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("admin http server failed")
		}
	}()
	go ld.Run(ctx)
	go ctrl.Run(ctx)
	go exec.Run(ctx)

	log.Info().Int("port", cfg.Port).Msg("sentinelad started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("admin http server forced to shutdown")
	}

	log.Info().Msg("sentinelad stopped")
}

// setupBackups wires R2 backups when cfg.BackupEnabled(), applying any
// pending staged restore first. It returns nil handlers (and a nil
// closer) when backups are disabled or any setup step fails - a broken
// backup path logs and degrades rather than stopping the daemon. The one
// exception is a pending staged restore that fails to apply, which stops
// the daemon via log.Fatal.
func setupBackups(cfg *config.Config, log zerolog.Logger) (*server.R2BackupHandlers, func()) {
	if !cfg.BackupEnabled() {
		return nil, nil
	}

	r2Client, err := reliability.NewR2Client(cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2SecretAccessKey, cfg.R2Bucket, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to build r2 client, backups disabled")
		return nil, nil
	}

	restoreSvc := reliability.NewRestoreService(r2Client, cfg.DataDir, log)
	if pending, err := restoreSvc.CheckPendingRestore(); err != nil {
		log.Error().Err(err).Msg("failed to check for pending restore")
	} else if pending {
		log.Warn().Msg("pending restore detected, applying before startup continues")
		if err := restoreSvc.ExecuteStagedRestore(); err != nil {
			log.Fatal().Err(err).Msg("failed to execute staged restore")
		}
	}

	// BackupService copies files by path, so it opens its own
	// database.DB handles onto the same two SQLite files sentinelad
	// already has open via internal/store - WAL mode allows multiple
	// connections against one file, and a checkpoint issued on either
	// connection is visible to both.
	entityBackupDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "sentinel.db"),
		Profile: database.ProfileStandard,
		Name:    "sentinel",
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to open entity database for backups, backups disabled")
		return nil, nil
	}

	queueBackupDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "queue.db"),
		Profile: database.ProfileStandard,
		Name:    "queue",
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to open queue database for backups, backups disabled")
		_ = entityBackupDB.Close()
		return nil, nil
	}

	backupSvc := reliability.NewBackupService(
		map[string]*database.DB{
			"sentinel": entityBackupDB,
			"queue":    queueBackupDB,
		},
		cfg.DataDir,
		filepath.Join(cfg.DataDir, "backups"),
		log,
	)
	r2BackupSvc := reliability.NewR2BackupService(r2Client, backupSvc, cfg.DataDir, log)
	log.Info().Msg("r2 backups enabled")

	closer := func() {
		_ = entityBackupDB.Close()
		_ = queueBackupDB.Close()
	}
	return server.NewR2BackupHandlers(r2BackupSvc, restoreSvc, log), closer
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "1" || v == "true"
}
