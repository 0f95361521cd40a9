package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/jask/offlinesync/internal/cache"
	"github.com/jask/offlinesync/internal/config"
	"github.com/jask/offlinesync/internal/conflict"
	"github.com/jask/offlinesync/internal/coordinator"
	"github.com/jask/offlinesync/internal/database"
	"github.com/jask/offlinesync/internal/database/repository"
	"github.com/jask/offlinesync/internal/logging"
	"github.com/jask/offlinesync/internal/network"
	"github.com/jask/offlinesync/internal/queue"
	"github.com/jask/offlinesync/internal/telemetry"
	"github.com/jask/offlinesync/internal/transport"
)

// runtime bundles everything a command needs.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
	db     *sql.DB
	kv     *repository.KVRepo
	cache  *cache.Store
	queue  *queue.Queue
	meter  metric.MeterProvider
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := os.Setenv("OFFLINESYNC_CONFIG", path); err != nil {
			return config.Config{}, nil, fmt.Errorf("failed to set config path: %w", err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Log.Level = "debug"
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// openRuntime loads config, migrates the database and builds the stores.
func openRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := database.RunMigrations(cfg.Database.Path); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	meter, err := telemetry.NewMeterProvider(cmd.Context(),
		telemetry.WithMetricsEnabled(cfg.Telemetry.Enabled),
		telemetry.WithMeterEndpoint(cfg.Telemetry.Endpoint),
		telemetry.WithMeterInsecure(cfg.Telemetry.Insecure),
		telemetry.WithMeterInterval(cfg.Telemetry.Interval))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if cfg.Telemetry.Enabled {
		logger.Info("metrics export enabled",
			zap.String("endpoint", cfg.Telemetry.Endpoint),
			zap.Bool("insecure", cfg.Telemetry.Insecure))
	}

	kv := repository.NewKVRepo(db)
	return &runtime{
		cfg:    cfg,
		logger: logger,
		db:     db,
		kv:     kv,
		meter:  meter,
		cache: cache.New(kv,
			cache.WithSchemaVersion(cfg.Cache.SchemaVersion),
			cache.WithLogger(logger.Named("cache"))),
		queue: queue.New(kv,
			queue.WithDefaultMaxRetries(cfg.Queue.DefaultMaxRetries),
			queue.WithLogger(logger.Named("queue"))),
	}, nil
}

func (r *runtime) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := telemetry.Shutdown(ctx, r.meter); err != nil {
		r.logger.Warn("flush metrics", zap.Error(err))
	}
	if err := r.db.Close(); err != nil {
		r.logger.Warn("close db", zap.Error(err))
	}
	_ = r.logger.Sync()
}

func (r *runtime) newProber() *network.Prober {
	return network.NewProber(r.cfg.Network.ProbeURL,
		network.WithInterval(r.cfg.Network.ProbeInterval),
		network.WithAttempts(r.cfg.Network.ProbeAttempts),
		network.WithProberLogger(r.logger.Named("network")))
}

func (r *runtime) newCoordinator(source network.Source) (*coordinator.Coordinator, error) {
	client, err := transport.NewClient(r.cfg.Server.BaseURL,
		transport.WithTimeout(r.cfg.Server.RequestTimeout),
		transport.WithUserAgent(r.cfg.Server.UserAgent))
	if err != nil {
		return nil, err
	}
	strategy, err := conflict.ParseStrategy(r.cfg.Conflict.Strategy)
	if err != nil {
		return nil, err
	}
	metrics, err := telemetry.NewSyncMetrics(r.meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}
	return coordinator.New(r.queue, r.cache, r.kv, client, source,
		coordinator.WithLogger(r.logger.Named("sync")),
		coordinator.WithSyncMetrics(metrics),
		coordinator.WithConflictStrategy(strategy)), nil
}

// probeOnce returns a Manual source seeded with a single probe result.
func (r *runtime) probeOnce(ctx context.Context) *network.Manual {
	state := r.newProber().Probe(ctx)
	r.logger.Debug("connectivity probe",
		zap.Bool("reachable", state.Reachable),
		zap.Bool("has_internet", state.HasInternet))
	return network.NewManual(state)
}
