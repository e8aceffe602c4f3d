package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/edupoint/sims-api/api/swagger"
	"github.com/edupoint/sims-api/internal/handler"
	"github.com/edupoint/sims-api/internal/middleware"
	"github.com/edupoint/sims-api/internal/models"
	"github.com/edupoint/sims-api/internal/repository"
	"github.com/edupoint/sims-api/internal/service"
	"github.com/edupoint/sims-api/pkg/cache"
	"github.com/edupoint/sims-api/pkg/config"
	"github.com/edupoint/sims-api/pkg/database"
	"github.com/edupoint/sims-api/pkg/logger"
	corsmiddleware "github.com/edupoint/sims-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edupoint/sims-api/pkg/middleware/requestid"
	"github.com/edupoint/sims-api/pkg/storage"
)

// @title SIMS API
// @version 1.0.0
// @description Student information management system: accounts, courses, teachers, classrooms and student rosters.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	metricsService := service.NewMetricsService()

	var cacheRepo *repository.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, continuing without cache", "error", err)
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
			defer cacheRepo.Close() //nolint:errcheck
		}
	}
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Cache.TTL, logr, cfg.Cache.Enabled && cacheRepo != nil)

	imageStore, err := storage.NewImageStore(cfg.Uploads.StorageDir, cfg.Uploads.MaxFileSizeBytes, cfg.Uploads.AllowedExtensions)
	if err != nil {
		logr.Sugar().Fatalw("failed to init image store", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)

	validate := validator.New()

	accountRepo := repository.NewAccountRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	classRoomRepo := repository.NewClassRoomRepository(db)
	studentRepo := repository.NewStudentRepository(db)

	authService := service.NewAuthService(accountRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "sims-api",
	})
	courseService := service.NewCourseService(courseRepo, validate, logr)
	teacherService := service.NewTeacherService(teacherRepo, accountRepo, courseRepo, classRoomRepo, imageStore, cacheService, validate, logr)
	classRoomService := service.NewClassRoomService(classRoomRepo, courseRepo, cacheService, validate, logr)
	studentService := service.NewStudentService(studentRepo, classRoomRepo, cacheService, validate, logr)

	authHandler := handler.NewAuthHandler(authService)
	courseHandler := handler.NewCourseHandler(courseService)
	teacherHandler := handler.NewTeacherHandler(teacherService)
	classRoomHandler := handler.NewClassRoomHandler(classRoomService)
	studentHandler := handler.NewStudentHandler(studentService)
	fileHandler := handler.NewFileHandler(imageStore, signer)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(reqidmiddleware.Middleware())
	router.Use(logger.GinMiddleware(logr))
	router.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	router.Use(middleware.Metrics(metricsService))

	router.GET("/health", metricsHandler.Health)
	router.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	router.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := router.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		authed := auth.Group("", middleware.JWT(authService))
		authed.POST("/logout", authHandler.Logout)
		authed.GET("/me", authHandler.Me)
		authed.POST("/change-password", authHandler.ChangePassword)
	}

	files := api.Group("/files")
	{
		files.GET("/:name", fileHandler.Download)
		files.GET("/:name/url", middleware.JWT(authService), fileHandler.SignURL)
	}

	protected := api.Group("", middleware.JWT(authService))

	protected.GET("/metrics/snapshot", middleware.RequireRoles(models.RoleAdmin), metricsHandler.Snapshot)

	admin := middleware.RequireRoles(models.RoleAdmin)

	courses := protected.Group("/courses")
	{
		courses.GET("", courseHandler.List)
		courses.GET("/:id", courseHandler.Get)
		courses.POST("", admin, middleware.Audit(accountRepo, "CREATE", "course"), courseHandler.Create)
		courses.PUT("/:id", admin, middleware.Audit(accountRepo, "UPDATE", "course"), courseHandler.Update)
		courses.DELETE("/:id", admin, middleware.Audit(accountRepo, "DELETE", "course"), courseHandler.Delete)
	}

	teachers := protected.Group("/teachers")
	{
		teachers.GET("", teacherHandler.List)
		teachers.GET("/:id", teacherHandler.Get)
		teachers.POST("", admin, middleware.Audit(accountRepo, "CREATE", "teacher"), teacherHandler.Create)
		teachers.PUT("/:id", admin, middleware.Audit(accountRepo, "UPDATE", "teacher"), teacherHandler.Update)
		teachers.PUT("/:id/classroom", admin, middleware.Audit(accountRepo, "ASSIGN", "teacher"), teacherHandler.AssignClassRoom)
		teachers.POST("/:id/image", admin, middleware.Audit(accountRepo, "UPLOAD_IMAGE", "teacher"), teacherHandler.UploadImage)
		teachers.DELETE("/:id", admin, middleware.Audit(accountRepo, "DELETE", "teacher"), teacherHandler.Delete)
	}

	classrooms := protected.Group("/classrooms")
	{
		classrooms.GET("", classRoomHandler.List)
		classrooms.GET("/:id", classRoomHandler.Get)
		classrooms.GET("/:id/roster", classRoomHandler.Roster)
		classrooms.GET("/:id/roster/export", classRoomHandler.ExportRoster)
		classrooms.POST("", admin, middleware.Audit(accountRepo, "CREATE", "classroom"), classRoomHandler.Create)
		classrooms.PUT("/:id", admin, middleware.Audit(accountRepo, "UPDATE", "classroom"), classRoomHandler.Update)
		classrooms.PUT("/:id/roster", admin, middleware.Audit(accountRepo, "SAVE_ROSTER", "classroom"), classRoomHandler.SaveRoster)
		classrooms.DELETE("/:id", admin, middleware.Audit(accountRepo, "DELETE", "classroom"), classRoomHandler.Delete)
	}

	students := protected.Group("/students")
	{
		students.GET("", studentHandler.List)
		students.GET("/:id", studentHandler.Get)
		students.POST("", admin, middleware.Audit(accountRepo, "CREATE", "student"), studentHandler.Create)
		students.PUT("/:id", admin, middleware.Audit(accountRepo, "UPDATE", "student"), studentHandler.Update)
		students.DELETE("/:id", admin, middleware.Audit(accountRepo, "DELETE", "student"), studentHandler.Delete)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
