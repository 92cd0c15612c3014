package main

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"multisig-core/internal/bootstrap"
	"multisig-core/internal/handler"
	"multisig-core/internal/server"
	"multisig-core/internal/service"
	"multisig-core/internal/service/mq"
	"multisig-core/internal/signing"
	"multisig-core/internal/store"
	"multisig-core/pkg/cache"
	"multisig-core/pkg/config"
	"multisig-core/pkg/database"
	"multisig-core/pkg/logger"
	"multisig-core/pkg/monitor"
	"multisig-core/pkg/utils/lock"
	"multisig-core/pkg/validator"
)

func main() {
	// 0. 初始化 Config
	config.Init()
	cfg := &config.Global

	// 1. 初始化 Logger
	logger.Init(cfg.App.Env, "multisig-server")
	defer logger.Sync()

	if err := validator.Init(); err != nil {
		logger.Fatal("注册校验规则失败", zap.Error(err))
	}
	monitor.Init()

	ctx := context.Background()

	// 2. 连接 Redis (缓存、分布式锁、Redis Streams)
	rdb, err := database.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Redis 连接失败", zap.Error(err))
	}

	// 3. 数据库可选: 开启后记录签名流程并通过 Outbox 发布终态事件
	var (
		db        *gorm.DB
		recorders []signing.Recorder
	)
	if cfg.DB.Enabled {
		db, err = database.ConnectPostgres(database.PostgresDSN(cfg.DB), cfg.App.Env == "development")
		if err != nil {
			logger.Fatal("数据库连接失败", zap.Error(err))
		}
		recorders = append(recorders, store.NewSigningStore(db))
	} else {
		logger.Warn("db.enabled=false，签名记录和终态事件不会持久化")
	}

	// 4. 缓存: L1 内存 + L2 Redis。L2 命中回写 L1 的有效期和写入时一样取 TTL 的一半
	localCache := cache.NewMemoryCache(time.Minute, 5*time.Minute)
	redisCache := cache.NewRedisCache(rdb, "")
	multiCache := cache.NewMultiLevelCache(localCache, redisCache, cfg.Multisig.CacheTTL/2)

	// 5. 签名流水线
	core, err := bootstrap.New(ctx, cfg, bootstrap.Options{Cache: multiCache, Recorders: recorders})
	if err != nil {
		logger.Fatal("初始化签名流水线失败", zap.Error(err))
	}

	// 6. 消息队列
	hostname, _ := os.Hostname()
	producer, consumer, err := mq.New(cfg, rdb, "multisig_outcome", "outcome-"+hostname)
	if err != nil {
		logger.Fatal("初始化消息队列失败", zap.Error(err))
	}

	// 7. HTTP
	r := server.NewHTTPRouter(server.Handlers{
		Sign:     handler.NewSignHandler(core.Orchestrator),
		Multisig: handler.NewMultisigHandler(core.Ledger),
	})
	app := server.New(server.Config{HttpPort: cfg.App.HttpPort}, r)

	// 8. 后台任务
	if db != nil {
		relay := service.NewRelayService(store.NewOutboxStore(db), producer)
		app.Go(relay.Start)
	}
	subscriber := service.NewOutcomeSubscriber(consumer, core.Ledger)
	app.Go(func(ctx context.Context) {
		if err := subscriber.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("事件订阅退出", zap.Error(err))
		}
	})

	watcher := service.NewWatcher(cfg.Multisig.PollSpec, cfg.Multisig.WatchContracts, core.Ledger, core.Orchestrator, lock.NewRedisLock(rdb))
	if err := watcher.Start(); err != nil {
		logger.Fatal("定时任务启动失败", zap.Error(err))
	}

	app.OnStop(func() {
		logger.Info("正在关闭数据库连接...")
		if db != nil {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		rdb.Close()
	})
	app.OnStop(func() {
		producer.Close()
		consumer.Close()
	})
	app.OnStop(core.Close)
	app.OnStop(watcher.Stop)

	// 运行 (阻塞)
	app.Run()
	logger.Info("系统已退出")
}
