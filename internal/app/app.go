package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"oabt_client/internal/config"
	"oabt_client/internal/controller"
	"oabt_client/internal/repository"
	"oabt_client/internal/service"
	"oabt_client/internal/util"
	"oabt_client/pkg/configwatcher"
	"oabt_client/pkg/database"
	"oabt_client/pkg/logger"
	"oabt_client/pkg/monitoring"
	"oabt_client/pkg/security"
	"oabt_client/pkg/tracing"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	Store  repository.KVStore
	DB     *gorm.DB
	Redis  *redis.Client

	backendURL      *service.BackendURL
	services        *services
	configCallbacks []func(*config.Config)
	tracer          *sdktrace.TracerProvider

	ctx    context.Context
	cancel context.CancelFunc
}

type services struct {
	tokens  *service.TokenManager
	api     *service.APIClient
	backend *service.BackendService
	auth    *service.AuthService
	exams   *service.ExamService
	examHub *service.ExamHub
}

type controllers struct {
	auth   *controller.AuthController
	test   *controller.TestController
	exam   *controller.ExamController
	user   *controller.UserController
	health *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ApplyConfig 配置热更新：通知所有回调
func (a *App) ApplyConfig(cfg *config.Config) {
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
}

// initStore 按 storage.driver 选择本地存储；配置了 seal_key 时对值加密
func (a *App) initStore(cfg *config.Config) (repository.KVStore, error) {
	var store repository.KVStore

	switch cfg.Storage.Driver {
	case util.StorageSQLite, util.StorageMySQL:
		db, err := database.InitDB(&cfg.Storage, &cfg.Database)
		if err != nil {
			return nil, err
		}
		a.DB = db
		store = repository.NewGormKVRepository(db)
	case util.StorageRedis:
		rdb, err := database.InitRedis(&cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.Redis = rdb
		store = repository.NewRedisKVRepository(rdb, cfg.Redis.Prefix)
	case util.StorageMemory:
		store = repository.NewMemoryKVRepository()
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if cfg.Storage.SealKey != "" {
		sealer, err := security.NewSealer(cfg.Storage.SealKey)
		if err != nil {
			return nil, err
		}
		store = repository.NewSealedKVRepository(store, sealer)
	}
	return store, nil
}

func (a *App) initServices(store repository.KVStore, cfg *config.Config) *services {
	s := &services{}

	httpClient := &http.Client{Timeout: cfg.API.Timeout}

	s.tokens = service.NewTokenManager(store, a.backendURL, httpClient, cfg.Auth.RefreshMargin)
	s.api = service.NewAPIClient(a.backendURL, s.tokens, httpClient)
	s.backend = service.NewBackendService(s.api)
	s.auth = service.NewAuthService(s.backend, s.tokens)

	s.examHub = service.NewExamHub(cfg.CORS.AllowedOrigins)
	go s.examHub.Run(a.ctx)

	s.exams = service.NewExamService(s.backend, service.NewDeadlineStore(store), s.examHub, service.ExamOptions{
		Duration:      cfg.Exam.Duration,
		TickInterval:  cfg.Exam.TickInterval,
		SubmitTimeout: cfg.Exam.SubmitTimeout,
		AutoAdvance:   cfg.Exam.AutoAdvance,
	})

	return s
}

func (a *App) initControllers(s *services, store repository.KVStore, cfg *config.Config) *controllers {
	return &controllers{
		auth:   controller.NewAuthController(s.auth),
		test:   controller.NewTestController(s.backend),
		exam:   controller.NewExamController(s.exams, s.examHub),
		user:   controller.NewUserController(s.backend),
		health: controller.NewHealthController(store, cfg.Storage.Driver),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.LocalOnly())
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(a.ctx, cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) (*App, error) {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:     cfg,
		backendURL: service.NewBackendURL(cfg.API.BaseURL),
		ctx:        ctx,
		cancel:     cancel,
	}

	store, err := app.initStore(cfg)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	app.Store = store
	logger.Log.Info("Storage ready",
		zap.String("driver", cfg.Storage.Driver),
		zap.Bool("sealed", cfg.Storage.SealKey != ""))

	services := app.initServices(store, cfg)
	app.services = services
	controllers := app.initControllers(services, store, cfg)

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("oabt-client", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Error("Failed to initialize tracing", zap.Error(err))
		} else {
			app.tracer = tp
		}
	}

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, services)

	// 后端地址和日志级别支持热更新
	app.RegisterConfigCallback(func(newCfg *config.Config) {
		if newCfg.API.BaseURL != app.backendURL.String() {
			logger.Log.Info("Backend URL changed", zap.String("baseUrl", newCfg.API.BaseURL))
			app.backendURL.Set(newCfg.API.BaseURL)
		}
		logger.SetMode(newCfg.Server.Mode)
	})

	return app, nil
}

// Context 在 Shutdown 时取消
func (a *App) Context() context.Context {
	return a.ctx
}

func (a *App) Run() error {
	srv := &http.Server{
		Addr:    net.JoinHostPort("127.0.0.1", a.Config.Server.Port),
		Handler: a.Router,
	}

	// 配置文件变更后热更新后端地址和日志级别
	if a.Config.ConfigFile != "" {
		go func() {
			if err := configwatcher.WatchConfig(a.ctx, a.Config.ConfigFile, a.ApplyConfig); err != nil {
				logger.Log.Error("Config watcher stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("Bridge listening", zap.String("addr", srv.Addr), zap.String("backend", a.backendURL.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待中断信号优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("listen: %w", err)
	}
	logger.Log.Info("Shutting down bridge...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Bridge forced to shutdown", zap.Error(err))
	}

	a.Shutdown()
	logger.Log.Info("Bridge exiting")
	return nil
}

// Shutdown 停止计时并等待在途交卷，关闭 websocket 和存储连接
func (a *App) Shutdown() {
	if a.services != nil {
		a.services.exams.CloseAll()
	}
	a.cancel()

	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	logger.Log.Sync()
}
