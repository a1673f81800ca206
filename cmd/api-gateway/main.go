package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/edustack/lcm-api/api/swagger"
	"github.com/edustack/lcm-api/internal/authz"
	"github.com/edustack/lcm-api/internal/handler"
	"github.com/edustack/lcm-api/internal/middleware"
	"github.com/edustack/lcm-api/internal/models"
	"github.com/edustack/lcm-api/internal/repository"
	"github.com/edustack/lcm-api/internal/service"
	"github.com/edustack/lcm-api/pkg/cache"
	"github.com/edustack/lcm-api/pkg/config"
	"github.com/edustack/lcm-api/pkg/database"
	"github.com/edustack/lcm-api/pkg/jobs"
	"github.com/edustack/lcm-api/pkg/logger"
	corsmiddleware "github.com/edustack/lcm-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edustack/lcm-api/pkg/middleware/requestid"
)

// @title Learning Center Management API
// @version 1.0.0
// @description Multi-tenant learning center management backend
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

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, roster cache disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	centerRepo := repository.NewCenterRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	parentLinkRepo := repository.NewParentLinkRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	authzRepo := repository.NewAuthzRepository(db)

	var rosterCache *repository.RosterCacheRepository
	if cfg.Roster.Enabled && redisClient != nil {
		rosterCache = repository.NewRosterCacheRepository(redisClient, cfg.Roster.CacheTTL)
	}

	engine := authz.NewEngine(authzRepo, metricsSvc.Registry())

	// Services.
	notificationSvc := service.NewNotificationService(notificationRepo, nil, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	}, logr)
	notificationSvc.Start(context.Background())
	defer notificationSvc.Stop()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	registrationSvc := service.NewRegistrationService(registrationRepo, userRepo, engine, notificationSvc, validate, logr)
	approvalSvc := service.NewApprovalService(userRepo, approvalRepo, notificationSvc, logr)
	userSvc := service.NewUserService(userRepo, engine, validate, logr)
	centerSvc := service.NewCenterService(centerRepo, engine, validate, logr)
	groupSvc := service.NewGroupService(groupRepo, parentLinkRepo, engine, rosterCache, validate, logr)
	membershipSvc := service.NewMembershipService(membershipRepo, groupRepo, userRepo, engine, notificationSvc, rosterCache, logr)
	parentLinkSvc := service.NewParentLinkService(parentLinkRepo, userRepo, engine, logr)
	lessonSvc := service.NewLessonService(lessonRepo, groupRepo, engine, validate, logr)
	assessmentSvc := service.NewAssessmentService(assessmentRepo, groupRepo, membershipRepo, engine, notificationSvc, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, groupRepo, authzRepo, engine, validate, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc, registrationSvc)
	userHandler := handler.NewUserHandler(userSvc, registrationSvc, parentLinkSvc)
	centerHandler := handler.NewCenterHandler(centerSvc)
	groupHandler := handler.NewGroupHandler(groupSvc, membershipSvc)
	lessonHandler := handler.NewLessonHandler(lessonSvc)
	assessmentHandler := handler.NewAssessmentHandler(assessmentSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	approvalHandler := handler.NewApprovalHandler(approvalSvc)

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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/register", authHandler.RegisterCenter)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	users := protected.Group("/users")
	users.GET("", userHandler.List)
	users.POST("", userHandler.Create)
	users.GET("/members", userHandler.Members)
	users.GET("/:id", userHandler.Get)
	users.PUT("/:id", userHandler.Update)
	users.DELETE("/:id", userHandler.Delete)
	users.POST("/:id/roles", userHandler.AssignRole)
	users.DELETE("/:id/roles/:role", userHandler.RemoveRole)
	users.PUT("/:id/center", userHandler.RepairCenter)
	users.GET("/:id/children", userHandler.Children)
	users.POST("/:id/children", userHandler.LinkChild)
	users.DELETE("/:id/children/:studentId", userHandler.UnlinkChild)

	centers := protected.Group("/centers")
	centers.GET("", centerHandler.List)
	centers.GET("/:id", centerHandler.Get)
	centers.PUT("/:id", centerHandler.Update)
	centers.PUT("/:id/state", centerHandler.SetActive)
	centers.DELETE("/:id", centerHandler.Delete)

	groups := protected.Group("/groups")
	groups.GET("", groupHandler.List)
	groups.POST("", groupHandler.Create)
	groups.GET("/:id", groupHandler.Get)
	groups.PUT("/:id", groupHandler.Update)
	groups.DELETE("/:id", groupHandler.Delete)
	groups.POST("/:id/students", groupHandler.AddStudent)
	groups.DELETE("/:id/students/:studentId", groupHandler.RemoveStudent)
	groups.GET("/:id/roster", groupHandler.Roster)
	groups.POST("/:id/requests", groupHandler.RequestJoin)
	groups.GET("/:id/requests", groupHandler.PendingRequests)
	groups.POST("/:id/requests/:studentId/approve", groupHandler.ApproveRequest)
	groups.POST("/:id/requests/:studentId/reject", groupHandler.RejectRequest)
	groups.GET("/:id/lessons", lessonHandler.List)
	groups.POST("/:id/lessons", lessonHandler.Create)
	groups.GET("/:id/assessments", assessmentHandler.List)
	groups.POST("/:id/assessments", assessmentHandler.Create)
	groups.POST("/:id/attendance", attendanceHandler.Mark)
	groups.POST("/:id/attendance/bulk", attendanceHandler.BulkMark)
	groups.GET("/:id/attendance/export", attendanceHandler.ExportSheet)

	lessons := protected.Group("/lessons")
	lessons.GET("/:id", lessonHandler.Get)
	lessons.PUT("/:id", lessonHandler.Update)
	lessons.DELETE("/:id", lessonHandler.Delete)

	assessments := protected.Group("/assessments")
	assessments.GET("/:id", assessmentHandler.Get)
	assessments.PUT("/:id", assessmentHandler.Update)
	assessments.DELETE("/:id", assessmentHandler.Delete)
	assessments.POST("/:id/results", assessmentHandler.SubmitResult)
	assessments.GET("/:id/results", assessmentHandler.ListResults)

	attendance := protected.Group("/attendance")
	attendance.GET("", attendanceHandler.List)
	attendance.DELETE("/:id", attendanceHandler.Delete)

	notifications := protected.Group("/notifications")
	notifications.GET("", notificationHandler.List)
	notifications.POST("/read", notificationHandler.MarkAllRead)
	notifications.POST("/:id/read", notificationHandler.MarkRead)

	admin := protected.Group("/admin")
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	admin.GET("/approvals", approvalHandler.Pending)
	admin.POST("/approvals/:id/approve", approvalHandler.Approve)
	admin.POST("/approvals/:id/reject", approvalHandler.Reject)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
