package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/veduhub/institute-api/api/swagger"
	"github.com/veduhub/institute-api/internal/authz"
	"github.com/veduhub/institute-api/internal/handler"
	"github.com/veduhub/institute-api/internal/middleware"
	"github.com/veduhub/institute-api/internal/models"
	"github.com/veduhub/institute-api/internal/repository"
	"github.com/veduhub/institute-api/internal/service"
	"github.com/veduhub/institute-api/pkg/cache"
	"github.com/veduhub/institute-api/pkg/config"
	"github.com/veduhub/institute-api/pkg/database"
	"github.com/veduhub/institute-api/pkg/logger"
	corsmiddleware "github.com/veduhub/institute-api/pkg/middleware/cors"
	reqidmiddleware "github.com/veduhub/institute-api/pkg/middleware/requestid"
	"github.com/veduhub/institute-api/pkg/storage"
)

// @title Institute API
// @version 1.0.0
// @description Multi-tenant institute management backend
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	if err := database.Migrate(db, cfg.Database); err != nil {
		logr.Sugar().Fatalw("failed to run migrations", "error", err)
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	fileStore, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init upload storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	businessRepo := repository.NewBusinessRepository(db)
	examRepo := repository.NewExamRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	contentRepo := repository.NewContentRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close()

	resolver := authz.NewResolver(examRepo, courseRepo, batchRepo, contentRepo, batchRepo)

	// Services.
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.ListTTL, logr, cfg.Cache.Enabled && redisClient != nil)

	// With redis available the flag can be flipped at runtime; otherwise it is
	// pinned to the configured value.
	auditFlag := service.StaticFlag(cfg.Audit.Enabled)
	if redisClient != nil {
		auditFlag = service.RemoteFlag(cacheRepo, "audit:enabled", cfg.Audit.Enabled)
	}
	auditSvc := service.NewAuditService(auditRepo, metricsSvc, logr, service.AuditServiceConfig{
		Source:       auditFlag,
		FlagCacheTTL: cfg.Audit.FlagCacheTTL,
		Workers:      cfg.Audit.WorkerConcurrency,
		QueueSize:    cfg.Audit.QueueSize,
		MaxRetries:   cfg.Audit.WorkerRetries,
	})
	auditSvc.Start(context.Background())
	defer auditSvc.Stop()

	authSvc := service.NewAuthService(userRepo, auditSvc, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	businessSvc := service.NewBusinessService(businessRepo, resolver, validate, logr)
	userSvc := service.NewUserService(userRepo, resolver, validate, logr)
	examSvc := service.NewExamService(examRepo, resolver, cacheSvc, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, subjectRepo, resolver, validate, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, resolver, validate, logr)
	batchSvc := service.NewBatchService(batchRepo, userRepo, resolver, cfg.Exports.Enabled, validate, logr)
	teacherSvc := service.NewTeacherService(teacherRepo, userRepo, resolver, validate, logr)
	contentSvc := service.NewContentService(contentRepo, fileStore, signer, resolver, service.ContentConfig{
		MaxFileSizeBytes: cfg.Uploads.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Uploads.AllowedMIMEs,
	}, validate, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	businessHandler := handler.NewBusinessHandler(businessSvc)
	userHandler := handler.NewUserHandler(userSvc)
	examHandler := handler.NewExamHandler(examSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	subjectHandler := handler.NewSubjectHandler(subjectSvc)
	batchHandler := handler.NewBatchHandler(batchSvc)
	teacherHandler := handler.NewTeacherHandler(teacherSvc)
	contentHandler := handler.NewContentHandler(contentSvc, cfg.APIPrefix)
	auditHandler := handler.NewAuditHandler(auditSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	jwtRequired := middleware.JWT(authSvc)
	adminOnly := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)
	superAdminOnly := middleware.RequireRoles(models.RoleSuperAdmin)
	staff := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleTeacher)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", jwtRequired, authHandler.Logout)
		auth.POST("/change-password", jwtRequired, authHandler.ChangePassword)
		auth.GET("/me", jwtRequired, authHandler.Me)
	}

	businesses := api.Group("/businesses", jwtRequired)
	{
		businesses.GET("", businessHandler.List)
		businesses.GET("/:id", businessHandler.Get)
		businesses.POST("", superAdminOnly, middleware.Audit(auditSvc, models.AuditActionCreate, "businesses"), businessHandler.Create)
		businesses.PUT("/:id", adminOnly, middleware.Audit(auditSvc, models.AuditActionUpdate, "businesses"), businessHandler.Update)
		businesses.DELETE("/:id", superAdminOnly, middleware.Audit(auditSvc, models.AuditActionDelete, "businesses"), businessHandler.Delete)
	}

	users := api.Group("/users", jwtRequired)
	{
		users.GET("", adminOnly, userHandler.List)
		users.GET("/:id", middleware.RBAC("SUPERADMIN", "ADMIN", "SELF"), userHandler.Get)
		users.POST("", adminOnly, middleware.Audit(auditSvc, models.AuditActionCreate, "users"), userHandler.Create)
		users.PUT("/:id", adminOnly, middleware.Audit(auditSvc, models.AuditActionUpdate, "users"), userHandler.Update)
		users.DELETE("/:id", adminOnly, middleware.Audit(auditSvc, models.AuditActionDelete, "users"), userHandler.Delete)
	}

	teachers := api.Group("/teachers", jwtRequired)
	{
		teachers.GET("", teacherHandler.List)
		teachers.GET("/:id", teacherHandler.Get)
		teachers.POST("", adminOnly, middleware.Audit(auditSvc, models.AuditActionCreate, "teachers"), teacherHandler.Create)
		teachers.PUT("/:id", adminOnly, middleware.Audit(auditSvc, models.AuditActionUpdate, "teachers"), teacherHandler.Update)
		teachers.DELETE("/:id", adminOnly, middleware.Audit(auditSvc, models.AuditActionDelete, "teachers"), teacherHandler.Delete)
	}

	exams := api.Group("/exams", jwtRequired)
	{
		exams.GET("", examHandler.List)
		exams.GET("/:id", examHandler.Get)
		exams.POST("", adminOnly, middleware.Audit(auditSvc, models.AuditActionCreate, "exams"), examHandler.Create)
		exams.PUT("/:id", adminOnly, middleware.Audit(auditSvc, models.AuditActionUpdate, "exams"), examHandler.Update)
		exams.DELETE("/:id", adminOnly, middleware.Audit(auditSvc, models.AuditActionDelete, "exams"), examHandler.Delete)
	}

	courses := api.Group("/courses", jwtRequired)
	{
		courses.GET("", courseHandler.List)
		courses.GET("/:id", courseHandler.Get)
		courses.POST("", adminOnly, middleware.Audit(auditSvc, models.AuditActionCreate, "courses"), courseHandler.Create)
		courses.PUT("/:id", adminOnly, middleware.Audit(auditSvc, models.AuditActionUpdate, "courses"), courseHandler.Update)
		courses.DELETE("/:id", adminOnly, middleware.Audit(auditSvc, models.AuditActionDelete, "courses"), courseHandler.Delete)
		courses.GET("/:id/subjects", courseHandler.ListSubjects)
		courses.POST("/:id/subjects", adminOnly, middleware.Audit(auditSvc, models.AuditActionUpdate, "courses"), courseHandler.AttachSubject)
		courses.DELETE("/:id/subjects/:subjectId", adminOnly, middleware.Audit(auditSvc, models.AuditActionUpdate, "courses"), courseHandler.DetachSubject)
	}

	subjects := api.Group("/subjects", jwtRequired)
	{
		subjects.GET("", subjectHandler.List)
		subjects.GET("/:id", subjectHandler.Get)
		subjects.POST("", adminOnly, middleware.Audit(auditSvc, models.AuditActionCreate, "subjects"), subjectHandler.Create)
		subjects.PUT("/:id", adminOnly, middleware.Audit(auditSvc, models.AuditActionUpdate, "subjects"), subjectHandler.Update)
		subjects.DELETE("/:id", adminOnly, middleware.Audit(auditSvc, models.AuditActionDelete, "subjects"), subjectHandler.Delete)
	}

	batches := api.Group("/batches", jwtRequired)
	{
		batches.GET("", batchHandler.List)
		batches.GET("/:id", batchHandler.Get)
		batches.POST("", adminOnly, middleware.Audit(auditSvc, models.AuditActionCreate, "batches"), batchHandler.Create)
		batches.PUT("/:id", adminOnly, middleware.Audit(auditSvc, models.AuditActionUpdate, "batches"), batchHandler.Update)
		batches.DELETE("/:id", adminOnly, middleware.Audit(auditSvc, models.AuditActionDelete, "batches"), batchHandler.Delete)
		batches.GET("/:id/teachers", batchHandler.ListTeachers)
		batches.POST("/:id/teachers", adminOnly, middleware.Audit(auditSvc, models.AuditActionUpdate, "batches"), batchHandler.AddTeacher)
		batches.PATCH("/:id/teachers/:userId", adminOnly, middleware.Audit(auditSvc, models.AuditActionUpdate, "batches"), batchHandler.SetTeacherActive)
		batches.DELETE("/:id/teachers/:userId", adminOnly, middleware.Audit(auditSvc, models.AuditActionUpdate, "batches"), batchHandler.RemoveTeacher)
		batches.GET("/:id/students", batchHandler.ListStudents)
		batches.POST("/:id/students", adminOnly, middleware.Audit(auditSvc, models.AuditActionUpdate, "batches"), batchHandler.AddStudent)
		batches.PATCH("/:id/students/:userId", adminOnly, middleware.Audit(auditSvc, models.AuditActionUpdate, "batches"), batchHandler.SetStudentActive)
		batches.DELETE("/:id/students/:userId", adminOnly, middleware.Audit(auditSvc, models.AuditActionUpdate, "batches"), batchHandler.RemoveStudent)
		batches.GET("/:id/roster/export", staff, middleware.Audit(auditSvc, models.AuditActionExport, "batches"), batchHandler.ExportRoster)
	}

	contents := api.Group("/contents")
	{
		// The download endpoint authenticates via the signed token, not JWT.
		contents.GET("/download", contentHandler.Download)

		contents.GET("", jwtRequired, contentHandler.List)
		contents.GET("/:id", jwtRequired, contentHandler.Get)
		contents.POST("", jwtRequired, staff, middleware.Audit(auditSvc, models.AuditActionUpload, "contents"), contentHandler.Upload)
		contents.PUT("/:id", jwtRequired, staff, middleware.Audit(auditSvc, models.AuditActionUpdate, "contents"), contentHandler.Update)
		contents.DELETE("/:id", jwtRequired, staff, middleware.Audit(auditSvc, models.AuditActionDelete, "contents"), contentHandler.Delete)
		contents.GET("/:id/download-url", jwtRequired, contentHandler.SignedURL)
	}

	api.GET("/audit-logs", jwtRequired, adminOnly, auditHandler.List)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
