package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/apkshield/apkshield-go/internal/api/handlers"
	"github.com/apkshield/apkshield-go/internal/config"
	"github.com/apkshield/apkshield-go/internal/middleware"
	"github.com/apkshield/apkshield-go/internal/service"
)

// SetupRouter 组装 HTTP 路由
func SetupRouter(
	cfg *config.Config,
	logger *logrus.Logger,
	analysisService service.AnalysisService,
	resultsHub *handlers.ResultsHub,
	promMetrics *middleware.PrometheusMetrics,
) *gin.Engine {
	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// 全局中间件
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())

	// Prometheus 监控中间件
	if promMetrics != nil {
		r.Use(promMetrics.HTTPMiddleware())
	}

	maxUpload := int64(cfg.Analysis.MaxUploadSizeMB) * 1024 * 1024
	analysisHandler := handlers.NewAnalysisHandler(analysisService, logger, promMetrics, maxUpload)
	historyHandler := handlers.NewHistoryHandler(analysisService, logger)

	// 结果实时推送
	if resultsHub != nil {
		r.GET("/ws/results", resultsHub.HandleWebSocket)
	}

	// Prometheus 指标端点
	if promMetrics != nil {
		r.GET("/metrics", promMetrics.Handler())
	}

	// API v1
	v1 := r.Group("/api")
	{
		// 健康检查
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"version": "1.0.0",
			})
		})

		// 分析与对比
		v1.POST("/analyze", analysisHandler.Analyze)
		v1.POST("/compare", analysisHandler.Compare)

		// 历史与报告
		v1.GET("/history", historyHandler.List)
		v1.GET("/reports/:sha256", historyHandler.GetReport)
	}

	return r
}

// LoggerMiddleware 日志中间件
func LoggerMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		method := c.Request.Method
		path := c.Request.URL.Path

		logger.WithFields(logrus.Fields{
			"status":  statusCode,
			"method":  method,
			"path":    path,
			"latency": latency.Milliseconds(),
		}).Info("HTTP Request")
	}
}

// CORSMiddleware CORS 中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
