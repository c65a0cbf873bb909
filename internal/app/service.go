package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/odyssey-rollup/internal/cache"
	"github.com/odyssey-erp/odyssey-rollup/internal/erp"
	"github.com/odyssey-erp/odyssey-rollup/internal/erpclient"
	"github.com/odyssey-erp/odyssey-rollup/internal/observability"
	platformcache "github.com/odyssey-erp/odyssey-rollup/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-rollup/internal/reconcile"
)

// Runtime holds the collaborators every binary builds from Config.
type Runtime struct {
	Service *reconcile.Service
	ERP     *erpclient.Client
	// Redis and ReportStore are nil with the memory backend.
	Redis       *redis.Client
	ReportStore *cache.Redis
}

// ReconcileConfig translates the environment into service settings,
// overlaying the optional mapping file on the stock tables and fields.
func ReconcileConfig(cfg *Config) (reconcile.Config, error) {
	out := reconcile.DefaultConfig()
	out.PageSize = cfg.ERPPageSize
	out.MaxRecords = cfg.ERPMaxRecords
	out.CacheTTL = cfg.CacheTTL
	if cfg.MappingFile == "" {
		return out, nil
	}
	data, err := os.ReadFile(cfg.MappingFile)
	if err != nil {
		return reconcile.Config{}, fmt.Errorf("read mapping file: %w", err)
	}
	mapping := struct {
		Tables reconcile.Tables `yaml:"tables"`
		Fields erp.FieldMap     `yaml:"fields"`
	}{Tables: out.Tables, Fields: out.Fields}
	if err := yaml.Unmarshal(data, &mapping); err != nil {
		return reconcile.Config{}, fmt.Errorf("parse mapping file: %w", err)
	}
	out.Tables = mapping.Tables
	out.Fields = mapping.Fields
	return out, nil
}

// BuildRuntime wires the ERP client, the report store and the service.
func BuildRuntime(ctx context.Context, cfg *Config, logger *slog.Logger, metrics *observability.Metrics) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	rcfg, err := ReconcileConfig(cfg)
	if err != nil {
		return nil, err
	}
	client, err := erpclient.New(erpclient.Options{
		BaseURL:   cfg.ERPBaseURL,
		Token:     cfg.ERPToken,
		Timeout:   cfg.ERPTimeout,
		RateLimit: cfg.ERPRateLimit,
		Logger:    logger,
		Recorder:  metrics,
	})
	if err != nil {
		return nil, err
	}

	rt := &Runtime{ERP: client}
	opts := reconcile.Options{
		CacheObserver: metrics,
		Observer:      metrics,
		Logger:        logger,
	}
	if cfg.CacheBackend == CacheBackendRedis {
		rdb, err := platformcache.New(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		rt.Redis = rdb
		rt.ReportStore = cache.NewRedis(rdb, "")
		opts.Reports = rt.ReportStore
	}
	rt.Service = reconcile.NewService(client, rcfg, opts)
	return rt, nil
}

// ListenForInvalidation drops the local snapshot whenever another process
// bumps the shared report version. It is a no-op with the memory backend.
func (rt *Runtime) ListenForInvalidation(ctx context.Context, logger *slog.Logger) error {
	if rt == nil || rt.ReportStore == nil {
		return nil
	}
	return rt.ReportStore.ListenForInvalidation(ctx, cache.BumpChannel, func(version int64) {
		if err := rt.Service.DropSnapshot(ctx); err != nil {
			logger.Warn("drop snapshot after bump", slog.Any("error", err))
			return
		}
		logger.Info("snapshot dropped after cache bump", slog.Int64("version", version))
	})
}

// Close releases the Redis connection when one was opened.
func (rt *Runtime) Close() error {
	if rt == nil || rt.Redis == nil {
		return nil
	}
	return rt.Redis.Close()
}
