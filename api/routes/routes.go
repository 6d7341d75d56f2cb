package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/certificate-processor/api/handlers"
	"github.com/feichai0017/certificate-processor/api/middleware"
	"github.com/feichai0017/certificate-processor/pkg/logger"
)

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, log logger.Logger) {
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.CORS())

	r.GET("/healthz", handlers.Health)

	v1 := r.Group("/api/v1")

	certs := v1.Group("/certificates")
	{
		certs.POST("", h.Certificate.ProcessUpload)
		certs.POST("/url", h.Certificate.ProcessURL)
		certs.GET("/url", h.Certificate.ProcessURL)
		if h.Document != nil {
			certs.POST("/async", h.Document.SubmitAsync)
			certs.POST("/async/url", h.Document.SubmitAsyncURL)
			certs.POST("/batch", h.Document.SubmitBatch)
		}
	}

	if h.Document != nil {
		tasks := v1.Group("/tasks")
		{
			tasks.GET("/:taskId", h.Document.GetStatus)
			tasks.DELETE("/:taskId", h.Document.CancelTask)
		}
	}

	v1.GET("/profile", h.Profile.GetProfile)
	v1.PUT("/profile", h.Profile.ReplaceProfile)
	v1.GET("/roadmaps/:studentId", h.Profile.GetRoadmap)
}
