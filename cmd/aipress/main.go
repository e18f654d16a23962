// Основной пакет сервиса AIPress. Отвечает за запуск: конфигурацию, подключение к базе данных, миграцию
// медиатеки, хранилище файлов, задачи по расписанию и HTTP сервер.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/aisa-it/aipress/internal/aipress"
	"github.com/aisa-it/aipress/internal/aipress/config"
	"github.com/aisa-it/aipress/internal/aipress/cronmanager"
	"github.com/aisa-it/aipress/internal/aipress/dao"
	filestorage "github.com/aisa-it/aipress/internal/aipress/file-storage"
	"github.com/aisa-it/aipress/internal/aipress/gormlogger"
	"github.com/aisa-it/aipress/internal/aipress/maintenance"
	"github.com/aisa-it/aipress/internal/aipress/media"
)

var version string = "DEV"

// Пример запуска: go run main.go --trace --noMigration
func main() {
	paramQueries := flag.Bool("paramQueries", true, "Mask queries params in log")
	noMigration := flag.Bool("noMigration", false, "Turn off DB migration")
	trace := flag.Bool("trace", false, "Verbose logs and sql trace")
	flag.Parse()

	PrintBanner()

	if *trace {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	// Set prod log format
	if version != "DEV" {
		level := slog.LevelInfo
		if *trace {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
	}

	cfg := config.ReadConfig()

	slog.Info("AIPress start.")

	db, err := gorm.Open(dialector(cfg.DatabaseDSN), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.NewGormLogger(slog.Default(), time.Second*4, *paramQueries),
	})
	if err != nil {
		slog.Error("Fail init DB connection", "err", err)
		os.Exit(1)
	}

	sqlDB, err := db.DB()
	if err != nil {
		slog.Error("Fail set settings to conn pool", "err", err)
		os.Exit(1)
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(time.Minute * 15)

	if !*noMigration {
		slog.Info("Migrate media models")
		if err := dao.Migrate(db); err != nil {
			slog.Error("Migration failed", "err", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, err := filestorage.New(ctx, cfg)
	if err != nil {
		slog.Error("Fail init file storage", "err", err)
		os.Exit(1)
	}

	cronManager := cronmanager.NewCronManager(cronmanager.JobRegistry{
		"assets_clean": cronmanager.Job{
			Func:     maintenance.NewAssetCleaner(db, storage).Run,
			Schedule: cfg.AssetsCleanSchedule,
		},
	})
	if err := cronManager.LoadJobs(); err != nil {
		slog.Error("Failed to load cron jobs", "err", err)
		os.Exit(1)
	}
	cronManager.Start()

	server, err := aipress.NewServer(cfg, media.NewService(db, storage, cfg), version, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	if err != nil {
		slog.Error("Fail init server", "err", err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		slog.Info("Shutting down gracefully, press Ctrl+C again to force")
		stop()
		cronManager.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown", "err", err)
		}
	}()

	if err := server.Start(); err != nil {
		slog.Error("Server fail", "err", err)
		os.Exit(1)
	}
}

// dialector выбирает драйвер по DSN: Postgres для URL и строк "key=value", иначе файл SQLite.
func dialector(dsn string) gorm.Dialector {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		return postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: false,
		})
	case dsn == "":
		dsn = "aipress-media.db"
	}
	slog.Info("Use SQLite database", "path", dsn)
	return sqlite.Open(dsn)
}

// PrintBanner выводит заголовок приложения с версией.
func PrintBanner() {
	banner := `
    _    ___ ____
   / \  |_ _|  _ \ _ __ ___  ___ ___
  / _ \  | || |_) | '__/ _ \/ __/ __|
 / ___ \ | ||  __/| | |  __/\__ \__ \
/_/   \_\___|_|   |_|  \___||___/___/ %s
Newsletter editor and media service
----------------------------------------------------
`
	colorReset := "\033[0m"
	colorYellow := "\033[33m"

	formattedVersion := version
	if version == "DEV" {
		formattedVersion = colorYellow + version + colorReset
	}

	fmt.Printf(banner, formattedVersion)
}
