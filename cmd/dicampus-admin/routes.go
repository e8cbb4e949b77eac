package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/dicampus-admin/api/swagger"
	"github.com/noah-isme/dicampus-admin/internal/handler"
	"github.com/noah-isme/dicampus-admin/internal/middleware"
	"github.com/noah-isme/dicampus-admin/internal/models"
	"github.com/noah-isme/dicampus-admin/internal/service"
	"github.com/noah-isme/dicampus-admin/pkg/busy"
	"github.com/noah-isme/dicampus-admin/pkg/config"
	"github.com/noah-isme/dicampus-admin/pkg/logger"
	corsmiddleware "github.com/noah-isme/dicampus-admin/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/dicampus-admin/pkg/middleware/requestid"
	"github.com/noah-isme/dicampus-admin/pkg/notify"
)

// app groups the services the router exposes.
type app struct {
	auth        *service.AuthService
	courses     *service.CourseService
	students    *service.StudentService
	enrollments *service.EnrollmentService
	exports     *service.ExportService
	busy        *busy.Counter
	notifier    notify.Sink
	feed        *notify.Feed
	metrics     *service.MetricsService
}

func newRouter(cfg *config.Config, logr *zap.Logger, a app) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.metrics))

	metricsHandler := handler.NewMetricsHandler(a.metrics,
		handler.ReadinessCheck{Name: service.CoursesCollection, Status: a.courses.Status},
		handler.ReadinessCheck{Name: service.StudentsCollection, Status: a.students.Status},
		handler.ReadinessCheck{Name: service.EnrollmentsCollection, Status: a.enrollments.Status},
	)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	authHandler := handler.NewAuthHandler(a.auth)
	api.POST("/auth/login", authHandler.Login)

	guarded := api.Group("")
	guarded.Use(middleware.RequireSession(a.auth, a.busy, a.notifier))
	guarded.POST("/auth/logout", authHandler.Logout)
	guarded.GET("/auth/me", authHandler.Me)

	audit := func(resource string) func(string) gin.HandlerFunc {
		return func(action string) gin.HandlerFunc {
			return middleware.Audit(logr, action, resource)
		}
	}
	handler.NewEntityHandler[models.Course, models.CreateCourseRequest, models.UpdateCourseRequest](a.courses, true).
		Register(guarded.Group("/courses"), audit("course"))
	handler.NewEntityHandler[models.Student, models.CreateStudentRequest, models.UpdateStudentRequest](a.students, false).
		Register(guarded.Group("/students"), audit("student"))
	handler.NewEntityHandler[models.Enrollment, models.EnrollmentRequest, models.EnrollmentRequest](a.enrollments, true).
		Register(guarded.Group("/enrollments"), audit("enrollment"))

	busyHandler := handler.NewBusyHandler(a.busy)
	guarded.GET("/busy", busyHandler.Get)
	guarded.GET("/busy/stream", busyHandler.Stream)

	guarded.GET("/notifications", handler.NewNotificationHandler(a.feed).List)
	guarded.GET("/exports/:collection", handler.NewExportHandler(a.exports).Download)

	return r
}
