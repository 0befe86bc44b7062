package app

import (
	"context"
	"edu_practice_backend/internal/cache"
	"edu_practice_backend/internal/config"
	"edu_practice_backend/internal/controller"
	"edu_practice_backend/internal/event"
	"edu_practice_backend/internal/middleware"
	"edu_practice_backend/internal/repository"
	"edu_practice_backend/internal/service"
	"edu_practice_backend/pkg/configwatcher"
	"edu_practice_backend/pkg/database"
	"edu_practice_backend/pkg/logger"
	"edu_practice_backend/pkg/monitoring"
	"edu_practice_backend/pkg/security"
	"edu_practice_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	ConfigDir       string
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	Bus             *event.Bus
	limiter         *security.RateLimiter
	services        *services
	configCallbacks []func(*config.Config)
	tracerProvider  *sdktrace.TracerProvider
}

type repositories struct {
	question    *repository.QuestionRepository
	exam        *repository.ExamRepository
	wrongBook   *repository.WrongBookRepository
	reviewTask  *repository.ReviewTaskRepository
	gradingTask *repository.GradingTaskRepository
}

type services struct {
	questions *cache.CachedQuestionSource
	reports   *cache.ReportStore
	review    *service.ReviewSchedulerService
	practice  *service.PracticeSessionService
	exam      *service.ExamAttemptService
	timeout   *service.ExamTimeoutService
	grading   *service.ManualGradingService
}

type controllers struct {
	practice *controller.PracticeController
	exam     *controller.ExamController
	review   *controller.ReviewController
	admin    *controller.AdminController
	health   *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) applyConfig(cfg *config.Config) {
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		question:    repository.NewQuestionRepository(db),
		exam:        repository.NewExamRepository(db),
		wrongBook:   repository.NewWrongBookRepository(db),
		reviewTask:  repository.NewReviewTaskRepository(db),
		gradingTask: repository.NewGradingTaskRepository(db),
	}
}

// outcomeSink sync 模式直接调用复习调度，其余模式经事件总线投递
func (a *App) outcomeSink(review *service.ReviewSchedulerService) service.OutcomeSink {
	if a.Bus != nil {
		return a.Bus
	}
	return review
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *services {
	s := &services{}

	ttl := time.Duration(cfg.Redis.QuestionTTLSeconds) * time.Second
	s.questions = cache.NewCachedQuestionSource(repos.question, rdb, ttl)
	s.reports = cache.NewReportStore(rdb)

	s.review = service.NewReviewSchedulerService(repos.wrongBook, repos.reviewTask, cfg.Review)
	outcomes := a.outcomeSink(s.review)

	s.practice = service.NewPracticeSessionService(db, s.questions, s.review, outcomes, cfg.Practice)
	s.exam = service.NewExamAttemptService(db, s.questions, outcomes, cfg.Grading.PassThreshold)
	s.timeout = service.NewExamTimeoutService(repos.exam, s.exam, s.reports, cfg.Exam.ScanBatchSize)
	s.grading = service.NewManualGradingService(db, s.exam, outcomes, cfg.Grading.PassThreshold)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		practice: controller.NewPracticeController(s.practice),
		exam:     controller.NewExamController(s.exam),
		review:   controller.NewReviewController(s.review),
		admin:    controller.NewAdminController(s.timeout, s.grading, s.review),
		health:   controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())
	router.Use(security.CORS(cfg.CORS))
	router.Use(security.Secure())

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config, configDir string) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode, cfg.ForceMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	app := &App{
		Config:    cfg,
		ConfigDir: configDir,
		DB:        db,
	}
	if cfg.MigrateOnly {
		return app
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}
	app.Redis = rdb

	if cfg.Events.Mode != "" && cfg.Events.Mode != event.ModeSync {
		bus, err := event.NewBus(cfg.Events)
		if err != nil {
			logger.Log.Fatal("Failed to initialize event bus", zap.Error(err))
		}
		app.Bus = bus
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracerProvider = tp
	}

	// 限流挂在认证之后，按用户计数
	app.limiter = security.NewRateLimiter(cfg.RateLimit)

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, db, rdb)
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.New()
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	return app
}

func (a *App) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.startBackgroundTasks(ctx, a.services)
	if a.limiter != nil {
		go a.limiter.RunSweeper(ctx.Done())
	}

	go func() {
		configPath := filepath.Join(a.ConfigDir, "config.yaml")
		if err := configwatcher.WatchConfig(ctx, configPath, a.applyConfig); err != nil {
			logger.Log.Warn("Config hot reload disabled", zap.String("path", configPath), zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// 先停止后台任务
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	if a.Bus != nil {
		if err := a.Bus.Close(); err != nil {
			logger.Log.Error("Failed to close event bus", zap.Error(err))
		}
	}
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}

	log.Println("Server exiting")
}
