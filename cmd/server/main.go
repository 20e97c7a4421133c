package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	redisClient "github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "shorturl-engine/docs"
	"shorturl-engine/internal/cache"
	"shorturl-engine/internal/config"
	"shorturl-engine/internal/handler"
	"shorturl-engine/internal/middleware"
	"shorturl-engine/internal/service"
	"shorturl-engine/internal/shortcode"
	"shorturl-engine/internal/store"
	"shorturl-engine/pkg/database"
	"shorturl-engine/pkg/logger"
	"shorturl-engine/pkg/redis"
)

// @title 短链接服务 API
// @version 1.0
// @description 短码分配、跳转与访问统计
// @host localhost:8080
// @BasePath /
func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		fmt.Fprintln(os.Stderr, "配置加载失败:", err)
		os.Exit(1)
	}

	if err := logger.InitLogger(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "日志初始化失败:", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zap.S()); err != nil {
		zap.S().Errorf("服务异常退出: %v", err)
		_ = logger.Logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) error {
	const op = "main.run"

	recordStore, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer closeStore()

	urlCache, closeCache, err := openCache(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer closeCache()

	gen, err := shortcode.NewGenerator()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	allocator := shortcode.NewAllocator(gen, recordStore, log,
		shortcode.WithLength(cfg.ShortCode.Length),
		shortcode.WithMaxRetries(cfg.ShortCode.MaxRetries),
		shortcode.WithReserved(handler.ReservedPaths...),
	)

	var recorder *service.AccessRecorder
	if cfg.Resolver.Async {
		recorder = service.NewAccessRecorder(recordStore, log, cfg.Resolver.Workers, cfg.Resolver.QueueSize, cfg.Store.Timeout)
		recorder.Start()
		defer recorder.Stop()
	}

	svc := service.New(service.Deps{
		Store:     recordStore,
		Allocator: allocator,
		Cache:     urlCache,
		Recorder:  recorder,
		Logger:    log,
	})

	if cfg.App.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.GinZapRecovery(logger.Logger, true))
	router.Use(middleware.GinZapLogger(logger.Logger))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	handler.NewShortLinkHandler(svc, log).RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("服务启动成功, 访问 http://localhost:%d", cfg.Server.Port)
		log.Infof("Swagger 文档地址: http://localhost:%d/swagger/index.html", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: 服务启动失败: %w", op, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("正在关闭服务...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s: 关闭服务失败: %w", op, err)
		}
		return nil
	})

	return g.Wait()
}

// openStore 按 database.driver 创建存储
func openStore(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (store.RecordStore, func(), error) {
	opts := []store.Option{store.WithTimeout(cfg.Store.Timeout)}

	switch cfg.Database.Driver {
	case config.DriverMemory:
		log.Warn("使用内存存储，重启后数据丢失")
		return store.NewMemory(opts...), func() {}, nil

	case config.DriverSQLite, config.DriverMySQL:
		db, err := database.Open(database.Options{
			Driver:       cfg.Database.Driver,
			Host:         cfg.Database.Host,
			Port:         cfg.Database.Port,
			User:         cfg.Database.User,
			Password:     cfg.Database.Password,
			Name:         cfg.Database.Name,
			Charset:      cfg.Database.Charset,
			Path:         cfg.Database.Path,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		closeDB := func() {
			if err := database.Close(db); err != nil {
				log.Errorf("关闭数据库连接失败: %v", err)
			}
		}

		s := store.NewGorm(db, opts...)
		if err := s.AutoMigrate(ctx); err != nil {
			closeDB()
			return nil, nil, fmt.Errorf("数据库迁移失败: %w", err)
		}
		log.Info("数据库迁移成功")
		return s, closeDB, nil

	case config.DriverRedis:
		rdb, err := newRedis(ctx, cfg.Database.Redis)
		if err != nil {
			return nil, nil, err
		}
		log.Infof("Redis 存储连接成功: %s", cfg.Database.Redis.Addr())
		return store.NewRedis(rdb, opts...), closeRedis(rdb, log), nil
	}
	return nil, nil, fmt.Errorf("不支持的存储驱动: %q", cfg.Database.Driver)
}

// openCache 按 cache.kind 创建缓存
func openCache(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (cache.Cache, func(), error) {
	switch cfg.Cache.Kind {
	case config.CacheNone:
		return cache.Nop{}, func() {}, nil
	case config.CacheLocal:
		log.Infof("使用本地缓存: 容量 %d, TTL %s", cfg.Cache.Size, cfg.Cache.TTL)
		return cache.NewLocal(cfg.Cache.Size, cfg.Cache.TTL), func() {}, nil
	case config.CacheRedis:
		rdb, err := newRedis(ctx, cfg.Cache.Redis)
		if err != nil {
			return nil, nil, err
		}
		log.Infof("Redis 缓存连接成功: %s", cfg.Cache.Redis.Addr())
		return cache.NewRedis(rdb, cfg.Cache.TTL), closeRedis(rdb, log), nil
	}
	return nil, nil, fmt.Errorf("不支持的缓存类型: %q", cfg.Cache.Kind)
}

func newRedis(ctx context.Context, cfg config.Redis) (*redisClient.Client, error) {
	return redis.NewClient(ctx, &redis.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func closeRedis(rdb *redisClient.Client, log *zap.SugaredLogger) func() {
	return func() {
		if err := rdb.Close(); err != nil {
			log.Errorf("关闭 Redis 连接失败: %v", err)
		}
	}
}
