package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/strand-chat/strand/internal/api"
	"github.com/strand-chat/strand/internal/auth/jwt"
	"github.com/strand-chat/strand/internal/channels"
	"github.com/strand-chat/strand/internal/common/config"
	"github.com/strand-chat/strand/internal/common/logging"
	"github.com/strand-chat/strand/internal/cook"
	"github.com/strand-chat/strand/internal/drafts"
	"github.com/strand-chat/strand/internal/events"
	"github.com/strand-chat/strand/internal/gateway"
	"github.com/strand-chat/strand/internal/infra"
	"github.com/strand-chat/strand/internal/infra/cache"
	"github.com/strand-chat/strand/internal/infra/db"
	"github.com/strand-chat/strand/internal/infra/migrations"
	"github.com/strand-chat/strand/internal/ingest"
	"github.com/strand-chat/strand/internal/messages"
	"github.com/strand-chat/strand/internal/middleware"
	"github.com/strand-chat/strand/internal/notify"
	"github.com/strand-chat/strand/internal/observability"
	"github.com/strand-chat/strand/internal/postprocess"
	"github.com/strand-chat/strand/internal/ratelimit"
	"github.com/strand-chat/strand/internal/readtracking"
	"github.com/strand-chat/strand/internal/threads"
	"github.com/strand-chat/strand/internal/uploads"
	"github.com/strand-chat/strand/internal/version"
	"github.com/strand-chat/strand/internal/webhooks"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.Init(
		cfg.Logging.Level,
		cfg.Logging.Format,
		cfg.Logging.Output,
		cfg.Logging.EnableFile,
		cfg.Logging.FilePath,
	)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("starting strand-api",
		zap.String("version", version.String()),
		zap.Int("port", cfg.Server.Port),
	)

	database, err := db.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("connected to database")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database.MonitorPool(ctx, logger, time.Minute)

	if err := migrations.Run(ctx, database.Pool); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("migrations applied successfully")

	var cacheClient *cache.Cache
	if cfg.Redis.Enabled {
		cacheClient, err = cache.New(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
		)
		if err != nil {
			logger.Warn("failed to connect to Redis, continuing without cache", zap.Error(err))
			cacheClient = nil
		} else {
			defer func() {
				if err := cacheClient.Close(); err != nil {
					logger.Error("failed to close cache", zap.Error(err))
				}
			}()
			logger.Info("connected to Redis")
		}
	}

	snowflake := infra.NewSnowflakeGenerator(1)
	renderer := cook.NewRenderer()

	channelRepo := channels.NewRepository(database.Pool)
	messageRepo := messages.NewRepository(database.Pool, snowflake)
	threadRepo := threads.NewRepository()
	uploadRepo := uploads.NewRepository(database.Pool)
	draftRepo := drafts.NewRepository(database.Pool)
	webhookRepo := webhooks.NewRepository()
	readRepo := readtracking.NewRepository(database.Pool)

	var aside *cache.AsidePattern
	var relay *cache.Relay
	if cacheClient != nil {
		aside = cache.NewAsidePattern(cacheClient)
		relay = cache.NewRelay(cacheClient)
	}
	caps := channels.NewMembershipCapabilities(channelRepo, aside)
	metrics := observability.NewMetrics(logger)

	hub := events.NewHub(logger, relay, cfg.Chat.ReplayBuffer)
	hub.SetMetrics(metrics)
	hub.StartRelay(ctx)
	defer func() {
		_ = hub.Shutdown(context.Background())
	}()

	limiter := ratelimit.NewLimiter(cacheClient, cfg.RateLimit.MessagesPerMinute, cfg.RateLimit.Burst, cfg.RateLimit.Enabled)
	defer limiter.Close()

	queue := cache.NewQueue(cacheClient, "strand:postprocess")
	notifier := notify.New(logger)
	domain := events.NewDomainEmitter(logger)

	validator := ingest.NewValidator(messageRepo, threadRepo, caps,
		ingest.MaxLengthRule(cfg.Chat.MaxContentLength),
	)

	pipeline := ingest.NewPipeline(ingest.Options{
		Validator:      validator,
		Channels:       channelRepo,
		Messages:       messageRepo,
		Threads:        threadRepo,
		Uploads:        uploadRepo,
		Drafts:         draftRepo,
		Webhooks:       webhookRepo,
		Tx:             database,
		Renderer:       renderer,
		Publisher:      hub,
		Queue:          queue,
		Notifier:       notifier,
		Domain:         domain,
		Limiter:        limiter,
		Metrics:        metrics,
		Logger:         logger,
		DepthLimit:     cfg.Chat.ChainDepthLimit,
		UploadsEnabled: cfg.Uploads.Enabled,
	})

	if cacheClient != nil {
		worker := postprocess.NewWorker(queue, messageRepo, renderer, hub, logger)
		worker.SetMetrics(metrics)
		for i := 0; i < cfg.Chat.PostprocWorkers; i++ {
			go worker.Run(ctx, fmt.Sprintf("worker-%d", i))
		}
		logger.Info("post-processing workers started", zap.Int("count", cfg.Chat.PostprocWorkers))
	} else {
		logger.Warn("redis unavailable, post-processing disabled")
	}

	jwtManager := jwt.NewManager(cfg.Auth.JWTSecret)

	if aside != nil {
		aside.Observe(func(hit bool) {
			metrics.RecordCacheHit("membership", hit)
		})
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					hits, misses, rate := aside.Stats().Snapshot()
					logger.Debug("membership cache stats",
						zap.Uint64("hits", hits),
						zap.Uint64("misses", misses),
						zap.Float64("hit_rate", rate),
					)
				}
			}
		}()
	}

	health := observability.NewHealthChecker(logger, version.String())
	health.RegisterCheck("postgres", database.Health)
	if cacheClient != nil {
		health.RegisterCheck("redis", cacheClient.Ping)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))
	router.Use(metrics.Middleware())

	router.GET("/healthz", health.Handler())
	router.GET("/livez", health.LivenessHandler())
	router.GET("/metrics", metrics.Handler())

	handler := api.NewHandler(pipeline, messageRepo, channelRepo, caps, draftRepo, readRepo, renderer, hub, cfg, logger)
	gw := gateway.New(hub, channelRepo, metrics, logger)

	authed := router.Group("/api/v1", middleware.Auth(jwtManager))
	handler.RegisterRoutes(authed)
	authed.GET("/ws", gw.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
