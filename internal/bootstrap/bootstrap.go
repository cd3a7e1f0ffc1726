// Package bootstrap wires the progression engine from configuration.
// Both binaries use it: cmd/api and cmd/worker.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alem-hub/campus-progression/config"
	"github.com/alem-hub/campus-progression/internal/application/command"
	"github.com/alem-hub/campus-progression/internal/application/eventhandler"
	"github.com/alem-hub/campus-progression/internal/domain/achievement"
	"github.com/alem-hub/campus-progression/internal/domain/campus"
	"github.com/alem-hub/campus-progression/internal/domain/leaderboard"
	"github.com/alem-hub/campus-progression/internal/domain/progress"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
	"github.com/alem-hub/campus-progression/internal/infrastructure/messaging"
	"github.com/alem-hub/campus-progression/internal/infrastructure/metrics"
	"github.com/alem-hub/campus-progression/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/campus-progression/internal/infrastructure/persistence/postgres"
	redisstore "github.com/alem-hub/campus-progression/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/campus-progression/internal/infrastructure/scheduler"
	"github.com/alem-hub/campus-progression/internal/infrastructure/scheduler/jobs"
	"github.com/alem-hub/campus-progression/internal/interface/http/handlers"
	"github.com/alem-hub/campus-progression/pkg/logger"
	"github.com/alem-hub/campus-progression/pkg/timeutil"
)

// Components holds everything built from one Config.
type Components struct {
	Config   *config.Config
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
	Calendar *timeutil.Calendar

	Store     progress.Store
	Index     leaderboard.Index
	Occupancy campus.OccupancyStore
	Directory *campus.Directory
	Catalog   *achievement.Catalog

	Bus        *messaging.InMemoryEventBus
	Projection *eventhandler.LeaderboardProjection

	Engine   *command.XPEngine
	Presence *command.PresenceManager

	Health *handlers.CompositeHealthChecker

	db    *postgres.Connection
	redis *redisstore.Client
}

// NewLogger builds the process logger from observability settings.
// An empty levelOverride keeps the configured level.
func NewLogger(cfg config.ObservabilityConfig, levelOverride string) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Output = os.Stdout
	opts.Format = cfg.LogFormat
	opts.FilePath = cfg.LogFile

	level := cfg.LogLevel
	if levelOverride != "" {
		level = levelOverride
	}
	opts.Level = logger.ParseLevel(level)
	return logger.New(opts)
}

// Build connects to the configured backends and wires the application layer.
// On error everything opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Components, error) {
	c := &Components{
		Config:  cfg,
		Logger:  log,
		Catalog: achievement.DefaultCatalog(),
		Health:  handlers.NewCompositeHealthChecker(cfg.App.Version),
	}
	built := false
	defer func() {
		if !built {
			c.Close()
		}
	}()

	if cfg.Observability.MetricsEnabled {
		c.Metrics = metrics.New()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 1. CLOCK AND CALENDAR
	// ─────────────────────────────────────────────────────────────────────────
	loc, err := timeutil.LoadLocation(cfg.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	clock := timeutil.SystemClock{}
	c.Calendar = timeutil.NewCalendar(clock, loc)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. AVATAR STORE
	// ─────────────────────────────────────────────────────────────────────────
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		log.Info("connecting to database")
		c.db, err = postgres.NewConnection(ctx, cfg.Database.URL, postgres.PoolSettings{
			MaxConns:        int32(cfg.Database.MaxConns),
			MinConns:        int32(cfg.Database.MinConns),
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return nil, err
		}
		c.Health.AddCheck("postgres", handlers.NewPingCheck(c.db))
		c.Store = postgres.NewAvatarStore(c.db, cfg.Progression.ConflictRetries)
	default:
		log.Warn("using in-memory avatar store, data is lost on restart")
		c.Store = memory.NewAvatarStore(clock.Now)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS: LEADERBOARD AND PRESENCE
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Redis.Disabled {
		c.Index = memory.NewLeaderboardIndex()
		c.Occupancy = memory.NewOccupancyStore()
	} else {
		log.Info("connecting to Redis", logger.String("addr", cfg.Redis.RedisAddr()))
		c.redis, err = redisstore.NewClient(ctx, redisstore.Config{
			URL:          cfg.Redis.URL,
			Addr:         cfg.Redis.RedisAddr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			KeyPrefix:    cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		// Presence lives only in Redis, so it is critical.
		c.Health.AddCheck("redis", handlers.NewPingCheck(c.redis))
		c.Index = redisstore.NewLeaderboardIndex(c.redis)
		c.Occupancy = redisstore.NewOccupancyStore(c.redis)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. CAMPUS
	// ─────────────────────────────────────────────────────────────────────────
	c.Directory, err = NewDirectory(cfg.Campus.MentorIDs)
	if err != nil {
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENTS AND PROJECTIONS
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultConfig()
	busCfg.Logger = log
	busCfg.Metrics = c.Metrics
	c.Bus = messaging.NewInMemoryEventBus(busCfg)

	c.Projection = eventhandler.NewLeaderboardProjection(c.Index, log, c.Metrics, eventhandler.LeaderboardProjectionConfig{})
	if err := c.Projection.Register(c.Bus); err != nil {
		return nil, fmt.Errorf("register leaderboard projection: %w", err)
	}
	c.Health.AddOptionalCheck("leaderboard_projection", handlers.NewBreakerCheck(c.Projection.Breaker()))

	// ─────────────────────────────────────────────────────────────────────────
	// 6. COMMANDS
	// ─────────────────────────────────────────────────────────────────────────
	c.Engine = command.NewXPEngine(c.Store, c.Catalog, c.Bus, c.Calendar, log, c.Metrics, command.XPEngineConfig{
		StorageTimeout: cfg.Progression.StorageTimeout,
	})
	c.Presence = command.NewPresenceManager(c.Directory, c.Occupancy, c.Store, c.Engine, c.Bus, cfg.Features, clock, log, c.Metrics,
		command.PresenceManagerConfig{
			JoinXP:         cfg.Campus.JoinXP,
			StorageTimeout: cfg.Progression.StorageTimeout,
		})

	built = true
	return c, nil
}

// NewDirectory returns the built-in campus with the mentor lounge
// restricted to mentorIDs.
func NewDirectory(mentorIDs []string) (*campus.Directory, error) {
	allowed := make([]shared.UserID, 0, len(mentorIDs))
	for _, raw := range mentorIDs {
		id, err := shared.NewUserID(raw)
		if err != nil {
			return nil, fmt.Errorf("mentor id %q: %w", raw, err)
		}
		allowed = append(allowed, id)
	}

	locations := campus.DefaultLocations()
	for i := range locations {
		if locations[i].Access.Kind == campus.AccessRestricted {
			locations[i].Access = campus.Restricted(allowed...)
		}
	}
	return campus.NewDirectory(locations...)
}

// Scheduler registers the maintenance jobs on a new scheduler.
func (c *Components) Scheduler() (*scheduler.Scheduler, error) {
	cfg := c.Config.Scheduler
	s := scheduler.New(scheduler.Config{
		Logger:     c.Logger,
		Metrics:    c.Metrics,
		JobTimeout: cfg.JobTimeout,
	})

	rebuild := jobs.NewRebuildLeaderboardJob(c.Store, c.Index, c.Logger, jobs.RebuildLeaderboardConfig{
		BatchSize:   cfg.RebuildBatchSize,
		Concurrency: cfg.RebuildConcurrency,
	})
	if err := s.Register(rebuild, scheduler.NewEvery(cfg.RebuildLeaderboardInterval)); err != nil {
		return nil, err
	}

	features := c.Config.Features
	sweep := jobs.NewSweepPresenceJob(c.Presence, c.Config.Campus.StaleAfter, func() bool {
		return features == nil || features.IsEnabled(config.FeatureCampusPresenceSweep, "")
	}, c.Logger)
	if err := s.Register(sweep, scheduler.NewEvery(cfg.SweepPresenceInterval)); err != nil {
		return nil, err
	}
	return s, nil
}

// Migrate applies pending Postgres migrations.
func Migrate(ctx context.Context, cfg *config.Config, log *logger.Logger) (int, error) {
	var applied int
	err := withMigrator(ctx, cfg, func(m *postgres.Migrator) error {
		start := time.Now()
		n, err := m.Migrate(ctx)
		applied = n
		if err != nil {
			return err
		}
		log.Info("migrations applied", logger.Int("count", n), logger.Latency(time.Since(start)))
		return nil
	})
	return applied, err
}

// Rollback reverts the newest applied Postgres migration.
func Rollback(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	return withMigrator(ctx, cfg, func(m *postgres.Migrator) error {
		reverted, err := m.Rollback(ctx)
		if err != nil {
			return err
		}
		if !reverted {
			log.Info("no migrations to roll back")
			return nil
		}
		log.Info("last migration rolled back")
		return nil
	})
}

func withMigrator(ctx context.Context, cfg *config.Config, fn func(*postgres.Migrator) error) error {
	if cfg.Store.Backend != config.BackendPostgres {
		return fmt.Errorf("migrations require store.backend=%s, got %q", config.BackendPostgres, cfg.Store.Backend)
	}
	conn, err := postgres.NewConnection(ctx, cfg.Database.URL, postgres.PoolSettings{MaxConns: 2})
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(postgres.NewMigrator(conn))
}

// Close drains the bus and closes connections.
func (c *Components) Close() {
	if c == nil {
		return
	}
	if c.Bus != nil {
		if err := c.Bus.Close(); err != nil {
			c.Logger.Warn("event bus close", logger.Err(err))
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.Logger.Warn("redis close", logger.Err(err))
		}
	}
	if c.db != nil {
		c.db.Close()
	}
}
