// Package main - точка входа HTTP API движка прогрессии кампуса.
//
// API отвечает за:
// - Начисление XP, уровни, навыки и серии
// - Достижения и лидерборд
// - Присутствие в локациях кампуса
//
// Команда migrate применяет миграции PostgreSQL (или откатывает последнюю с --down) и завершается.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/alem-hub/campus-progression/config"
	"github.com/alem-hub/campus-progression/internal/application/command"
	"github.com/alem-hub/campus-progression/internal/application/query"
	"github.com/alem-hub/campus-progression/internal/bootstrap"
	httpapi "github.com/alem-hub/campus-progression/internal/interface/http"
	"github.com/alem-hub/campus-progression/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:   "campus-api",
		Usage:  "Campus progression HTTP API",
		Flags:  globalFlags(),
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Apply pending PostgreSQL migrations and exit",
				Action: migrate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to a YAML config file",
			EnvVars: []string{"CONFIG_FILE"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "override observability.log_level (debug, info, warn, error)",
		},
	}
}

func load(c *cli.Context) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, bootstrap.NewLogger(cfg.Observability, c.String("log-level")), nil
}

func migrate(c *cli.Context) error {
	cfg, log, err := load(c)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if c.Bool("down") {
		return bootstrap.Rollback(c.Context, cfg, log)
	}
	_, err = bootstrap.Migrate(c.Context, cfg, log)
	return err
}

func serve(c *cli.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, log, err := load(c)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting campus progression API",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("store", cfg.Store.Backend),
		logger.Bool("redis", !cfg.Redis.Disabled),
	)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─────────────────────────────────────────────────────────────────────────
	// 2. МИГРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Store.Backend == config.BackendPostgres && cfg.Database.AutoMigrate {
		if _, err := bootstrap.Migrate(ctx, cfg, log); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. КОМПОНЕНТЫ
	// ─────────────────────────────────────────────────────────────────────────
	comp, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer comp.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ПЛАНИРОВЩИК (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Scheduler.Enabled {
		sched, err := comp.Scheduler()
		if err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		defer func() { _ = sched.Stop() }()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	timeout := cfg.Progression.StorageTimeout
	server := httpapi.NewServer(httpapi.Config{
		Port:           cfg.HTTP.Port,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: 1 << 20,
		MaxBodyBytes:   httpapi.DefaultConfig().MaxBodyBytes,
		AllowedOrigins: cfg.HTTP.CORSOrigins,
		EnableMetrics:  cfg.Observability.MetricsEnabled,
		RateLimitRPS:   cfg.HTTP.RateLimitRPS,
		RateLimitBurst: cfg.HTTP.RateLimitBurst,
		Version:        cfg.App.Version,
	}, httpapi.Dependencies{
		XPEngine:   comp.Engine,
		Presence:   comp.Presence,
		Appearance: command.NewUpdateAppearanceHandler(comp.Store, comp.Engine, nil, log, timeout),
		GetAvatar: query.NewGetAvatarHandler(comp.Store, comp.Engine.Evaluator(), comp.Catalog, cfg.Features,
			comp.Calendar, log, timeout),
		ListAchievements: query.NewListAchievementsHandler(comp.Catalog, comp.Store, cfg.Features, timeout),
		Leaderboard: query.NewGetLeaderboardHandler(comp.Index, cfg.Features, log, query.GetLeaderboardHandlerConfig{
			MaxLimit:       cfg.Progression.LeaderboardMaxLimit,
			StorageTimeout: timeout,
		}),
		ListLocations: query.NewListLocationsHandler(comp.Directory, comp.Occupancy, comp.Store, timeout),
		HealthChecker: comp.Health,
		Metrics:       comp.Metrics,
		Logger:        log,
	})

	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ОЖИДАНИЕ СИГНАЛА И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("http shutdown", logger.Err(err))
	}
	comp.Bus.Drain()

	log.Info("campus progression API stopped")
	return nil
}
