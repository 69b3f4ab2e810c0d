package app

import (
	"context"
	"edutest_backend/internal/config"
	"edutest_backend/internal/controller"
	"edutest_backend/internal/repository"
	"edutest_backend/internal/service"
	"edutest_backend/pkg/configwatcher"
	"edutest_backend/pkg/database"
	"edutest_backend/pkg/logger"
	"edutest_backend/pkg/monitoring"
	"edutest_backend/pkg/security"
	"edutest_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

type App struct {
	Config    *config.Config
	ConfigDir string
	Router    *gin.Engine
	Backend   database.Backend
	Store     *repository.SharedStore

	repos       *repositories
	services    *services
	rateLimiter *security.RateLimiter
	tracer      *sdktrace.TracerProvider

	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.Mutex
	configCallbacks []func(*config.Config)
}

type repositories struct {
	tests       *repository.TestRepository
	submissions *repository.SubmissionRepository
}

type services struct {
	ai        *service.AIService
	auth      *service.AuthService
	feedback  *service.FeedbackService
	sessions  *service.SessionService
	authoring *service.AuthoringService
	analytics *service.AnalyticsService
	export    *service.ExportService
	hub       *service.DashboardHub
}

type controllers struct {
	auth      *controller.AuthController
	test      *controller.TestController
	session   *controller.SessionController
	dashboard *controller.DashboardController
	export    *controller.ExportController
	health    *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.mu.Lock()
	a.configCallbacks = append(a.configCallbacks, callback)
	a.mu.Unlock()
}

func (a *App) applyConfig(cfg *config.Config) {
	a.mu.Lock()
	callbacks := append([]func(*config.Config){}, a.configCallbacks...)
	a.mu.Unlock()
	for _, cb := range callbacks {
		cb(cfg)
	}
}

// initRepositories subscribes before the watch starts and loads after, so no
// remote write is missed in between.
func (a *App) initRepositories(ctx context.Context) (*repositories, error) {
	repos := &repositories{
		tests:       repository.NewTestRepository(a.Store),
		submissions: repository.NewSubmissionRepository(a.Store),
	}
	if err := a.Store.Start(ctx); err != nil {
		return nil, err
	}
	if err := repos.tests.Load(ctx); err != nil {
		return nil, err
	}
	if err := repos.submissions.Load(ctx); err != nil {
		return nil, err
	}
	return repos, nil
}

func (a *App) initServices(repos *repositories, cfg *config.Config) *services {
	s := &services{}

	s.ai = service.NewAIService(cfg.AI)
	s.auth = service.NewAuthService(cfg)
	s.feedback = service.NewFeedbackService(s.ai, repos.submissions, cfg.AI.Timeout())
	s.sessions = service.NewSessionService(repos.tests, repos.submissions, s.feedback, cfg.Session.TickInterval)
	s.auth.OnStudentLogin = s.sessions.Supersede
	s.authoring = service.NewAuthoringService(s.ai, repos.tests)
	s.analytics = service.NewAnalyticsService(repos.tests, repos.submissions)
	s.export = service.NewExportService(repos.submissions, repos.tests, service.NewExportSink(cfg.Export))

	s.hub = service.NewDashboardHub(s.analytics.Dashboard, security.OriginChecker(cfg.CORS.AllowedOrigins))
	repos.tests.OnChange(s.hub.Notify)
	repos.submissions.OnChange(s.hub.Notify)
	go s.hub.Run(a.ctx)

	a.RegisterConfigCallback(func(newCfg *config.Config) {
		s.ai.SetConfig(newCfg.AI)
		s.feedback.SetTimeout(newCfg.AI.Timeout())
		s.sessions.SetTickInterval(newCfg.Session.TickInterval)
	})

	return s
}

func (a *App) initControllers(s *services) *controllers {
	return &controllers{
		auth:      controller.NewAuthController(s.auth),
		test:      controller.NewTestController(a.repos.tests, s.authoring, s.analytics),
		session:   controller.NewSessionController(s.sessions, s.analytics, s.auth),
		dashboard: controller.NewDashboardController(s.analytics, s.hub),
		export:    controller.NewExportController(s.export),
		health:    controller.NewHealthController(a.Backend, a.Config.Store.Driver),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	a.rateLimiter = security.NewRateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute)
	router.Use(a.rateLimiter.Middleware())
	a.RegisterConfigCallback(func(newCfg *config.Config) {
		a.rateLimiter.SetLimit(newCfg.RateLimit.MaxRequests, time.Duration(newCfg.RateLimit.WindowMinutes)*time.Minute)
	})

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// NewApp opens the configured store backend and wires every component.
func NewApp(cfg *config.Config, configDir string) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	backend, err := database.Open(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to open shared store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
		log.Fatalf("Failed to open shared store: %v", err)
	}

	app, err := newApp(cfg, backend)
	if err != nil {
		backend.Close()
		logger.Log.Fatal("Failed to initialize application", zap.Error(err))
		log.Fatalf("Failed to initialize application: %v", err)
	}
	app.ConfigDir = configDir

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Error("Failed to initialize tracing", zap.Error(err))
		} else {
			app.tracer = tp
		}
	}

	return app
}

func newApp(cfg *config.Config, backend database.Backend) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:  cfg,
		Backend: backend,
		Store:   repository.NewSharedStore(backend),
		ctx:     ctx,
		cancel:  cancel,
	}

	repos, err := app.initRepositories(ctx)
	if err != nil {
		cancel()
		app.Store.Stop()
		return nil, err
	}
	app.repos = repos

	app.services = app.initServices(repos, cfg)
	controllers := app.initControllers(app.services)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Server.Mode != gin.TestMode {
		router.Use(gin.Logger())
	}
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	return app, nil
}

func (a *App) watchConfig() {
	if a.ConfigDir == "" {
		return
	}
	path := filepath.Join(a.ConfigDir, "config.yaml")
	if err := configwatcher.WatchConfig(a.ctx, path, a.applyConfig); err != nil {
		logger.Log.Warn("Config hot reload disabled", zap.String("path", path), zap.Error(err))
	}
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	a.watchConfig()

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port), zap.String("store", a.Config.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}
	a.Close()

	logger.Log.Info("Server exiting")
}

// Close stops background work and releases the store backend.
func (a *App) Close() {
	if a.services != nil {
		a.services.sessions.Close()
		a.services.feedback.Close()
	}
	a.cancel()
	if a.services != nil {
		a.services.hub.Wait()
	}
	a.Store.Stop()
	if err := a.Backend.Close(); err != nil {
		logger.Log.Error("Failed to close shared store", zap.Error(err))
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	logger.Log.Sync()
}
