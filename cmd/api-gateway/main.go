package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/tutor-booking-api/api/swagger"
	"github.com/noah-isme/tutor-booking-api/internal/handler"
	"github.com/noah-isme/tutor-booking-api/internal/middleware"
	"github.com/noah-isme/tutor-booking-api/internal/models"
	"github.com/noah-isme/tutor-booking-api/internal/repository"
	"github.com/noah-isme/tutor-booking-api/internal/service"
	"github.com/noah-isme/tutor-booking-api/pkg/cache"
	"github.com/noah-isme/tutor-booking-api/pkg/config"
	"github.com/noah-isme/tutor-booking-api/pkg/database"
	"github.com/noah-isme/tutor-booking-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tutor-booking-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tutor-booking-api/pkg/middleware/requestid"
	"github.com/noah-isme/tutor-booking-api/pkg/storage"
	"github.com/noah-isme/tutor-booking-api/pkg/timezone"
)

// @title Tutor Booking API
// @version 0.1.0
// @description Tutoring session scheduling and lifecycle engine
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, availability cache disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	sink := timezone.NewRingSink(128)
	converter, err := timezone.NewConverter(cfg.Timezone.AdminZone, logr, sink)
	if err != nil {
		logr.Sugar().Fatalw("invalid admin timezone", "error", err)
	}

	classRepo := repository.NewClassRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	packageRepo := repository.NewPackageRepository(db)
	rescheduleRepo := repository.NewRescheduleRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	userRepo := repository.NewUserRepository(db)

	metricsSvc := service.NewMetricsService()
	ledger := service.NewCreditLedger(packageRepo, bookingRepo, logr)
	authSvc := service.NewAuthService(userRepo, logr, cfg.JWT)
	availabilitySvc := service.NewAvailabilityService(
		teacherRepo, studentRepo, classRepo, converter, redisClient, metricsSvc, cfg.Availability, logr)
	rescheduleSvc := service.NewRescheduleService(
		db, bookingRepo, classRepo, packageRepo, rescheduleRepo,
		ledger, converter, availabilitySvc, cfg.Reschedule, logr)
	sweeperSvc := service.NewSweeperService(
		db, classRepo, bookingRepo, studentRepo, packageRepo,
		ledger, converter, availabilitySvc, metricsSvc, cfg.Sweep, logr)

	var exportSvc *service.ExportService
	var exportStore *storage.LocalStorage
	if cfg.Exports.Enabled {
		exportStore, err = storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
		}
		exportSvc = service.NewExportService(rescheduleRepo, exportStore, cfg.Exports, logr)
		exportSvc.Start(ctx)
		defer exportSvc.Stop()
	}

	go sweeperSvc.Run(ctx)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(authSvc)
	availabilityHandler := handler.NewAvailabilityHandler(availabilitySvc)
	rescheduleHandler := handler.NewRescheduleHandler(rescheduleSvc)
	sweepHandler := handler.NewSweepHandler(sweeperSvc)

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	authed.GET("/availability", middleware.StudentScope("student_id"), availabilityHandler.Query)
	authed.GET("/reschedules", rescheduleHandler.List)
	authed.POST("/reschedules", rescheduleHandler.Create)

	admin := authed.Group("/admin")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	admin.POST("/sweep", sweepHandler.Run)
	admin.POST("/reschedules/:id/cancel", rescheduleHandler.Cancel)
	if exportSvc != nil {
		exportHandler := handler.NewExportHandler(exportSvc, exportStore)
		admin.POST("/exports", exportHandler.Create)
		admin.GET("/exports/:id", exportHandler.Status)
		admin.GET("/exports/:id/download", exportHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "admin_zone", cfg.Timezone.AdminZone)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
