package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fridge-chef/internal/api"
	"fridge-chef/internal/core/ai/openrouter"
	"fridge-chef/internal/core/queue"
	"fridge-chef/internal/core/session"
	"fridge-chef/internal/infrastructure/cache"
	"fridge-chef/internal/infrastructure/config"
	"fridge-chef/internal/pkg/common"
	"fridge-chef/internal/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	// 載入設定（內含 .env）
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化 logger（需在載入 config 後）
	if err := common.InitLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer common.Sync()

	common.LogInfo("載入設定",
		zap.String("openrouter_model", cfg.OpenRouter.Model),
		zap.Bool("openrouter_enabled", cfg.OpenRouter.Enabled),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
		zap.Duration("generation_timeout", cfg.Generation.Timeout),
	)

	// 指標
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// 初始化服務
	generator := openrouter.New(cfg)
	sessions := session.NewManager(cfg, generator, session.WithObserver(m))
	defer sessions.Close()

	jobs := queue.NewManager(cfg)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 5*time.Second)
	dedup := cache.New(startCtx, cfg)
	cancelStart()
	defer dedup.Close()

	// 設置路由
	router := api.SetupRouter(api.Dependencies{
		Config:   cfg,
		Sessions: sessions,
		Queue:    jobs,
		Dedup:    dedup,
		Metrics:  m,
		Gatherer: reg,
	})

	// 設置 HTTP 服務器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 啟動服務器
	go func() {
		common.LogInfo("啟動應用",
			zap.String("version", cfg.App.Version),
			zap.String("env", cfg.App.Env),
			zap.Bool("debug", cfg.App.Debug),
			zap.Int("port", cfg.Server.Port),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			common.LogFatal("Failed to start server", zap.Error(err))
		}
	}()

	// 等待中斷信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	common.LogInfo("Shutting down server...")

	// 設置關閉超時
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		common.LogError("Server forced to shutdown", zap.Error(err))
	}
	if err := jobs.Close(ctx); err != nil {
		common.LogWarn("生成隊列未能在期限內完成", zap.Error(err))
	}

	common.LogInfo("Server exited")
}
