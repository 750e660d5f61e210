package app

import (
	"context"
	"errors"
	"fmt"
	"lsrw_console/internal/config"
	"lsrw_console/internal/controller"
	"lsrw_console/internal/remote"
	"lsrw_console/internal/repository"
	"lsrw_console/internal/service"
	"lsrw_console/pkg/configwatcher"
	"lsrw_console/pkg/database"
	"lsrw_console/pkg/logger"
	"lsrw_console/pkg/monitoring"
	"lsrw_console/pkg/security"
	"lsrw_console/pkg/tracing"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sweepInterval = time.Minute
	// 老师离开页面后遗留的工作台与录音保留时长
	idleMaxAge = 30 * time.Minute
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type services struct {
	backend    *service.InstrumentedBackend
	storage    *service.StorageService
	recordings *service.RecordingRegistry
	counter    *service.TabCounter
	review     *service.ReviewService
}

type controllers struct {
	review    *controller.ReviewController
	recording *controller.RecordingController
	health    *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// newBackend 按配置选择协作方实现
func newBackend(cfg *config.Config, db *gorm.DB) (service.Backend, error) {
	switch cfg.Collaborator.Mode {
	case config.CollaboratorLocal:
		if db == nil {
			return nil, errors.New("local collaborator requires a database")
		}
		return service.NewLocalBackend(
			repository.NewContentRepository(db),
			repository.NewSubmissionRepository(db),
		), nil
	case config.CollaboratorRemote:
		return remote.NewClient(cfg.Collaborator.BaseURL), nil
	case config.CollaboratorMemory:
		mem := service.NewMemoryBackend()
		seedDemo(mem)
		return mem, nil
	}
	return nil, fmt.Errorf("unknown collaborator mode %q", cfg.Collaborator.Mode)
}

func (a *App) initServices(cfg *config.Config, backend service.Backend, rdb *redis.Client) *services {
	s := &services{}

	s.backend = service.NewInstrumentedBackend(backend, cfg.Collaborator.Timeout())
	modules := service.NewModuleTable(s.backend)

	s.storage = service.NewStorageService(cfg)
	s.recordings = service.NewRecordingRegistry(service.NewMicrophone(cfg.Audio), controller.RecordingPreviewBase)

	var cache service.CountCache
	if rdb != nil {
		cache = service.NewRedisCountCache(rdb)
	} else {
		cache = service.NewMemoryCountCache()
	}
	s.counter = service.NewTabCounter(s.backend, cache, cfg.Review.CountCacheTTL())

	s.review = service.NewReviewService(
		s.backend,
		modules,
		service.NewReleaseGate(s.backend, modules),
		service.NewFeedbackService(modules, s.recordings, s.storage),
		s.recordings,
		s.counter,
	)

	// 热加载只调整这几项，其余配置需要重启
	a.RegisterConfigCallback(func(c *config.Config) {
		logger.SetLevel(c)
		s.backend.SetTimeout(c.Collaborator.Timeout())
		s.counter.SetTTL(c.Review.CountCacheTTL())
	})
	return s
}

func (a *App) initControllers(s *services, cfg *config.Config) *controllers {
	maxClip := int64(service.MaxClipBytes(cfg.Audio.MaxSeconds))
	return &controllers{
		review:    controller.NewReviewController(s.review, maxClip),
		recording: controller.NewRecordingController(s.review, 1<<20),
		health:    controller.NewHealthController(a.DB, a.Redis, cfg.Collaborator.Mode),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute, nil))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) (*App, error) {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	app := &App{Config: cfg}

	// 只有直连模式需要数据库
	if cfg.Collaborator.Mode == config.CollaboratorLocal {
		db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
		if err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
		if cfg.Server.Mode == gin.DebugMode {
			if err := database.Migrate(db); err != nil {
				return nil, fmt.Errorf("migrate database: %w", err)
			}
		}
		app.DB = db
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		// 角标缓存退回进程内
		logger.Log.Warn("Redis unavailable, using in-process count cache", zap.Error(err))
		rdb = nil
	}
	app.Redis = rdb

	backend, err := newBackend(cfg, app.DB)
	if err != nil {
		return nil, err
	}

	app.services = app.initServices(cfg, backend, rdb)
	controllers := app.initControllers(app.services, cfg)

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		app.tracer = tp
	}

	gin.SetMode(cfg.Server.Mode)
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	return app, nil
}

// Migrate 只建表，不启动服务
func Migrate(cfg *config.Config) error {
	logger.InitLogger(cfg)
	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	return database.Migrate(db)
}

func (a *App) applyConfig(cfg *config.Config) {
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
}

func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.Config.Path != "" {
		if err := configwatcher.WatchConfig(ctx, a.Config.Path, a.applyConfig); err != nil {
			logger.Log.Warn("Config hot reload disabled", zap.Error(err))
		}
	}

	go a.services.review.Run(ctx, sweepInterval, idleMaxAge)

	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	logger.Log.Info("Shutting down server...")

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	// 正在进行的录音直接丢弃
	a.services.review.SweepIdle(0)

	if a.tracer != nil {
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}

	logger.Log.Info("Server exiting")
	_ = logger.Log.Sync()
	return nil
}
