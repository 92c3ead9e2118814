// Package app 按配置装配存储、缓存、服务与路由
package app

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-intake/internal/cache"
	"wisefido-intake/internal/config"
	"wisefido-intake/internal/docstore"
	httpapi "wisefido-intake/internal/http"
	"wisefido-intake/internal/metrics"
	"wisefido-intake/internal/service"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// App 装配完成的组件
type App struct {
	Store     docstore.Store
	Reconcile service.ReconcileService
	Imports   service.ImportService
	Residents service.ResidentListService
	Router    *httpapi.Router

	db     *sql.DB
	redis  *redis.Client
	logger *zap.Logger
}

// New 按配置创建 App；reg 为 nil 时使用默认 registry
func New(ctx context.Context, cfg *config.Config, reg *prometheus.Registry, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger}

	// 1. 文档库
	switch cfg.StoreBackend {
	case "memory":
		a.Store = docstore.NewMemoryStore()
		logger.Warn("using in-memory document store; data is lost on restart")
	case "postgres", "":
		db, err := docstore.OpenPostgres(ctx, cfg.Database.GetDSN(), cfg.Database.MaxConns, cfg.Database.MaxIdle)
		if err != nil {
			return nil, err
		}
		pg := docstore.NewPostgresStore(db, logger)
		if err := pg.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		a.db = db
		a.Store = pg
		logger.Info("document store ready", zap.String("backend", "postgres"), zap.String("host", cfg.Database.Host))
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	// 2. 缓存：redis 不可用时退回文档缓存
	var kv cache.KV
	var invalidator cache.Invalidator = cache.Nop{}
	switch cfg.CacheBackend {
	case "redis":
		c, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("redis unavailable, falling back to document cache", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			invalidator = cache.NewDocumentInvalidator(a.Store, cfg.Collections.Cache)
			break
		}
		a.redis = c
		redisKV := cache.NewRedisKV(c)
		kv = redisKV
		invalidator = cache.NewKVInvalidator(redisKV)
	case "document":
		invalidator = cache.NewDocumentInvalidator(a.Store, cfg.Collections.Cache)
	case "none", "":
	default:
		a.Close()
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}

	// 3. 服务
	var registerer prometheus.Registerer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	m := metrics.New(registerer)
	a.Reconcile = service.NewReconcileService(a.Store, invalidator, m, service.ReconcileConfig{
		Collections: cfg.Collections,
		CacheKey:    cfg.Cache.ResidentListKey,
	}, logger)
	a.Imports = service.NewImportService(a.Store, a.Reconcile, m, cfg.Collections.ImportRecords, cfg.Import.Concurrency, logger)
	a.Residents = service.NewResidentListService(a.Store, kv, cfg.Collections.Residents, cfg.Cache.ResidentListKey, cfg.Cache.ResidentListTTL, logger)

	// 4. 路由
	a.Router = httpapi.NewRouter(logger)
	a.Router.RegisterResidentRoutes(httpapi.NewResidentHandler(a.Reconcile, a.Residents, logger))
	a.Router.RegisterImportRoutes(httpapi.NewImportHandler(a.Imports, cfg.Import.MaxUploadMB, logger))
	a.Router.RegisterMetricsRoute(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	a.Router.RegisterHealthRoute()
	return a, nil
}

// Close 关闭数据库与 redis 连接
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close database", zap.Error(err))
		}
	}
}
