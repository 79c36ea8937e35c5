package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/apkshield/apkshield-go/internal/analyzer"
	"github.com/apkshield/apkshield-go/internal/api"
	"github.com/apkshield/apkshield-go/internal/api/handlers"
	"github.com/apkshield/apkshield-go/internal/config"
	"github.com/apkshield/apkshield-go/internal/dexscan"
	"github.com/apkshield/apkshield-go/internal/middleware"
	"github.com/apkshield/apkshield-go/internal/queue"
	"github.com/apkshield/apkshield-go/internal/repository"
	"github.com/apkshield/apkshield-go/internal/scoring"
	"github.com/apkshield/apkshield-go/internal/service"
	"github.com/apkshield/apkshield-go/internal/watcher"
	"github.com/apkshield/apkshield-go/internal/worker"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	fmt.Printf("APKShield - Static Analysis Service\n")
	fmt.Printf("Version: %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n\n", GitCommit)

	// 加载配置
	configPath := "./configs/config.yaml"
	if len(os.Args) > 1 && os.Args[1] == "--config" && len(os.Args) > 2 {
		configPath = os.Args[2]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	logger := config.InitLogger(&cfg.Log)
	logger.Infof("Starting APKShield %s", Version)
	logger.Infof("Config loaded from: %s", configPath)

	// 初始化数据库
	db, err := repository.InitDB(&cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to init database: %v", err)
	}
	logger.Info("Database connected successfully")

	// 初始化评分引擎：模型加载失败直接退出，不允许无模型评分
	engine, err := scoring.NewEngine(logger, scoring.Options{
		ModelPath:         cfg.Scoring.ModelPath,
		SafeThreshold:     cfg.Scoring.SafeThreshold,
		HighRiskThreshold: cfg.Scoring.HighRiskThreshold,
		TopFeatures:       cfg.Scoring.TopFeatures,
	})
	if err != nil {
		logger.Fatalf("Failed to load scoring model: %v", err)
	}

	// 装配分析管线
	scanner := dexscan.NewScanner(logger, cfg.Analysis.MinStringLength, cfg.Analysis.MaxFindings)
	pipeline := analyzer.New(logger, scanner, engine, analyzer.Options{
		MaxEntrySize: uint64(cfg.Analysis.MaxEntrySizeMB) * 1024 * 1024,
	})

	// WebSocket 结果推送
	resultsHub := handlers.NewResultsHub(logger)
	resultsHub.Start()

	recordRepo := repository.NewAnalysisRecordRepository(db)
	analysisService := service.NewAnalysisService(pipeline, recordRepo, resultsHub, logger)

	// Prometheus 指标
	promMetrics := middleware.NewPrometheusMetrics(logger, "apkshield")

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Worker 池：文件路径作业（来自目录监听或消息队列）
	jobHandler := func(ctx context.Context, job *worker.Job) error {
		data, err := os.ReadFile(job.Path)
		if err != nil {
			return fmt.Errorf("read apk: %w", err)
		}
		start := time.Now()
		result, cached, err := analysisService.AnalyzeUpload(ctx, filepath.Base(job.Path), data, job.Force)
		if err != nil {
			promMetrics.RecordAnalysisFailure("internal")
			return err
		}
		if cached {
			promMetrics.RecordCacheHit()
		} else {
			promMetrics.RecordAnalysis(result, time.Since(start))
		}
		return nil
	}
	pool := worker.NewPool(cfg.Worker.Concurrency, cfg.Worker.QueueSize, jobHandler, logger)
	pool.Start(rootCtx)

	// RabbitMQ 异步入口（可选）
	var mq *queue.RabbitMQ
	var producer *queue.Producer
	if cfg.RabbitMQ.Enabled {
		mqConfig := &queue.RabbitMQConfig{
			Host:     cfg.RabbitMQ.Host,
			Port:     cfg.RabbitMQ.Port,
			User:     cfg.RabbitMQ.User,
			Password: cfg.RabbitMQ.Password,
			VHost:    cfg.RabbitMQ.VHost,
		}
		mq, err = queue.NewRabbitMQ(mqConfig, cfg.RabbitMQ.Queue, cfg.Worker.Concurrency, logger)
		if err != nil {
			logger.Fatalf("Failed to init RabbitMQ: %v", err)
		}
		defer mq.Close()
		logger.Info("RabbitMQ connected successfully")

		producer = queue.NewProducer(mq, logger)
		consumer := queue.NewConsumer(mq, func(ctx context.Context, req *queue.AnalysisRequest) error {
			return pool.SubmitAndWait(ctx, &worker.Job{ID: req.ID, Path: req.Path, Force: req.Force})
		}, cfg.Worker.Concurrency, logger)
		if err := consumer.Start(rootCtx); err != nil {
			logger.Fatalf("Failed to start consumer: %v", err)
		}
		defer consumer.Stop()
	}

	// 目录监听（可选）：新落盘的 APK 自动入队
	if cfg.Watcher.Enabled {
		watchDir := cfg.Watcher.Dir
		if watchDir == "" {
			watchDir = cfg.APKDir
		}
		fw, err := watcher.NewFileWatcher(watchDir, cfg.Watcher.Pattern, func(ctx context.Context, filePath string) error {
			if producer != nil {
				return producer.Publish(ctx, queue.NewAnalysisRequest(filePath, false))
			}
			return pool.Submit(&worker.Job{ID: filepath.Base(filePath), Path: filePath})
		}, logger)
		if err != nil {
			logger.Fatalf("Failed to create file watcher: %v", err)
		}
		if err := fw.Start(rootCtx); err != nil {
			logger.Fatalf("Failed to start file watcher: %v", err)
		}
		defer fw.Stop()
	}

	// 周期性刷新运行时与池指标
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				promMetrics.UpdateRuntimeStats()
				promMetrics.UpdateWorkerPoolStats(pool.Size(), pool.Active(), pool.QueueSize())
				if sqlDB, err := db.DB(); err == nil {
					stats := sqlDB.Stats()
					promMetrics.UpdateDBStats(stats.OpenConnections, stats.Idle, stats.InUse)
				}
			}
		}
	}()

	// HTTP Server
	router := api.SetupRouter(cfg, logger, analysisService, resultsHub, promMetrics)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Minute, // 支持大文件上传
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Infof("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down gracefully...")

	// 优雅关闭 (30秒超时)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("HTTP server shutdown error: %v", err)
	}

	rootCancel()
	pool.Stop()

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("Server stopped")
}
