// Package main - точка входа для фоновых процессов движка прогрессии.
//
// Worker отвечает за периодические задачи:
// - rebuild_leaderboard: пересборка индекса лидерборда из хранилища аватаров
// - sweep_campus_presence: удаление участников без heartbeat
//
// В режиме run-once задачи выполняются по одному разу и процесс завершается.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/alem-hub/campus-progression/config"
	"github.com/alem-hub/campus-progression/internal/bootstrap"
	"github.com/alem-hub/campus-progression/internal/infrastructure/scheduler"
	"github.com/alem-hub/campus-progression/pkg/logger"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "campus-worker",
		Usage: "Campus progression background jobs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				EnvVars: []string{"CONFIG_FILE"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override observability.log_level",
			},
		},
		Action: run,
		Commands: []*cli.Command{
			{
				Name:   "run-once",
				Usage:  "Run jobs once and exit",
				Action: runOnce,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "job",
						Usage: "job to run (repeatable); all jobs when omitted",
					},
				},
			},
		},
	}
}

// setup загружает конфигурацию и собирает компоненты с планировщиком.
func setup(c *cli.Context) (*bootstrap.Components, *scheduler.Scheduler, *logger.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := bootstrap.NewLogger(cfg.Observability, c.String("log-level")).Named("worker")

	comp, err := bootstrap.Build(c.Context, cfg, log)
	if err != nil {
		return nil, nil, log, err
	}
	sched, err := comp.Scheduler()
	if err != nil {
		comp.Close()
		return nil, nil, log, err
	}
	return comp, sched, log, nil
}

func run(c *cli.Context) error {
	comp, sched, log, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	defer comp.Close()

	log.Info("starting campus progression worker",
		logger.String("env", string(comp.Config.App.Environment)),
		logger.Duration("rebuild_interval", comp.Config.Scheduler.RebuildLeaderboardInterval),
		logger.Duration("sweep_interval", comp.Config.Scheduler.SweepPresenceInterval),
	)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("shutdown signal received")

	if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
		log.Warn("scheduler stop", logger.Err(err))
	}
	comp.Bus.Drain()
	log.Info("worker stopped")
	return nil
}

func runOnce(c *cli.Context) error {
	comp, sched, log, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	defer comp.Close()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var results []scheduler.JobResult
	if names := c.StringSlice("job"); len(names) > 0 {
		for _, name := range names {
			res, _ := sched.RunNow(ctx, name)
			if res.JobName == "" {
				res.JobName = name
				res.Error = fmt.Errorf("%w: %s", scheduler.ErrJobNotFound, name)
			}
			results = append(results, res)
		}
	} else {
		results = sched.RunAll(ctx)
	}
	comp.Bus.Drain()

	var errs []error
	for _, res := range results {
		if res.Error != nil {
			log.Error("job failed", logger.String("job", res.JobName), logger.Err(res.Error))
			errs = append(errs, fmt.Errorf("%s: %w", res.JobName, res.Error))
			continue
		}
		log.Info("job finished", logger.String("job", res.JobName), logger.Latency(res.Duration))
	}
	return errors.Join(errs...)
}
