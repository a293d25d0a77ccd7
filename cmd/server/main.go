// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anzchy/chat-memo-pro-sub000/internal/config"
	"github.com/anzchy/chat-memo-pro-sub000/internal/handler"
	"github.com/anzchy/chat-memo-pro-sub000/internal/middleware"
	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
	"github.com/anzchy/chat-memo-pro-sub000/internal/reconcile"
	"github.com/anzchy/chat-memo-pro-sub000/internal/repository"
	"github.com/anzchy/chat-memo-pro-sub000/internal/service"
	"github.com/anzchy/chat-memo-pro-sub000/internal/session"
	"github.com/anzchy/chat-memo-pro-sub000/internal/source"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/cache"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/database"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/es"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/kafka"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/log"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/storage"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/token"
	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化存储
	store, err := newConversationRepository(cfg)
	if err != nil {
		log.Fatal("初始化对话存储失败", err)
	}
	cached := repository.NewCachedRepository(store, cache.New[string, *model.Conversation](cfg.Cache.MaxEntries, cfg.Cache.TTL))

	// 4. 可选组件：归档、检索
	var reconcileOpts []reconcile.Option
	if cfg.MinIO.Enabled {
		storage.InitMinIO(cfg.MinIO)
		reconcileOpts = append(reconcileOpts, reconcile.WithArchiver(storage.NewArchiver(storage.MinioClient, cfg.MinIO.BucketName)))
	}
	var (
		indexer       service.Indexer
		searchService service.SearchService
	)
	if cfg.Elasticsearch.Enabled {
		if err := es.InitES(cfg.Elasticsearch); err != nil {
			log.Errorf("es 初始化失败 %s", err)
			return
		}
		indexer = es.NewConversationIndexer(es.ESClient, cfg.Elasticsearch.IndexName)
		searchService = service.NewSearchService(es.ESClient, cfg.Elasticsearch.IndexName)
	}

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	reconciler := reconcile.NewReconciler(cached, reconcileOpts...)
	captureService := service.NewCaptureService(cached, reconciler, indexer, service.RetryPolicy{
		Attempts: cfg.Sync.CreationRetries,
		Backoff:  cfg.Sync.CreationBackoff,
	})
	conversationService := service.NewConversationService(cached)
	clientService := service.NewClientService(cfg.Clients, jwtManager)

	hub := session.NewHub(session.Settings{
		Debounce:    cfg.Sync.Debounce,
		IdleTimeout: cfg.Sync.IdleTimeout,
		Registry:    source.DefaultRegistry(),
	}, captureService)

	// 6. 启动后台 Kafka 消费者
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	consumerDone := make(chan struct{})
	if cfg.Kafka.Enabled {
		go func() {
			defer close(consumerDone)
			kafka.StartConsumer(consumerCtx, cfg.Kafka, hub.Submit)
		}()
	} else {
		close(consumerDone)
	}

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/auth/token", handler.NewAuthHandler(clientService).IssueToken)

		authed := apiV1.Group("/")
		authed.Use(middleware.AuthMiddleware(jwtManager))
		{
			authed.POST("/capture", handler.NewCaptureHandler(hub).Capture)

			conversations := authed.Group("/conversations")
			{
				conversations.GET("", handler.NewConversationHandler(conversationService).FindByLink)
				if searchService != nil {
					conversations.GET("/search", handler.NewSearchHandler(searchService).Search)
				}
				conversations.GET("/:id", handler.NewConversationHandler(conversationService).GetConversation)
			}
		}
	}
	// WebSocket 会话，token 放在路径里
	r.GET("/ws/:token", handler.NewSessionHandler(hub, jwtManager).Handle)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	stopConsumer()
	<-consumerDone
	// 等待进行中的同步写入完成
	hub.Shutdown()
	if err := kafka.CloseProducer(); err != nil {
		log.Errorf("关闭 Kafka 生产者失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}

// newConversationRepository 根据 store.driver 选择持久化后端。
func newConversationRepository(cfg config.Config) (repository.ConversationRepository, error) {
	switch cfg.Store.Driver {
	case "redis":
		database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
		return repository.NewConversationRepository(database.RDB, 0), nil
	case "mysql":
		database.InitMySQL(cfg.Database.MySQL.DSN)
		if err := repository.AutoMigrate(database.DB); err != nil {
			return nil, err
		}
		return repository.NewGormConversationRepository(database.DB), nil
	case "sqlite":
		db, err := database.OpenSQLite(cfg.Database.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return repository.NewSQLiteConversationRepository(db)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
