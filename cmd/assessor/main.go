// Command assessor runs the SkyWatch threat assessment service: the HTTP API,
// the metrics listener, and the orchestration pipeline behind them.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apiv1 "github.com/skywatch/backend/api/v1"
	"github.com/skywatch/backend/internal/ai"
	"github.com/skywatch/backend/internal/analyzer"
	"github.com/skywatch/backend/internal/config"
	"github.com/skywatch/backend/internal/correlation"
	"github.com/skywatch/backend/internal/metrics"
	"github.com/skywatch/backend/internal/orchestrator"
	"github.com/skywatch/backend/internal/priority"
	"github.com/skywatch/backend/internal/risk"
	"github.com/skywatch/backend/internal/storage"
	"github.com/skywatch/backend/internal/streaming"
	"github.com/skywatch/backend/pkg/common"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	logger, err := common.NewLogger(cfg.Log)
	if err != nil {
		zap.NewExample().Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	var completer ai.Completer = ai.Disabled{}
	if cfg.AI.BaseURL != "" {
		completer = ai.NewHTTPClient(cfg.AI, logger)
		logger.Info("ai collaborator enabled", zap.String("model", cfg.AI.Model))
	} else {
		logger.Info("ai collaborator disabled, running on heuristic fallbacks")
	}

	an := analyzer.New(cfg.Analyzer, cfg.AI, completer, logger, nil)
	pe := priority.New(cfg.Priority, cfg.AI, completer, logger, nil)
	rc := risk.New(cfg.Risk, cfg.AI, completer, logger, nil)

	correlationCompleter := completer
	if !cfg.Orchestrator.EnableAIEnhancement {
		correlationCompleter = ai.Disabled{}
	}
	ce := correlation.New(cfg.Correlation, cfg.AI, correlationCompleter, logger, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var snapshots *storage.SnapshotStore
	if cfg.Redis.Enabled() {
		snapshots, err = storage.NewSnapshotStore(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("snapshot store unavailable, continuing without persistence", zap.Error(err))
			snapshots = nil
		} else {
			defer snapshots.Close()
		}
	}

	var publisher *streaming.Publisher
	if cfg.Kafka.Enabled() {
		publisher, err = streaming.NewPublisher(cfg.Kafka, logger)
		if err != nil {
			logger.Warn("kafka publisher unavailable, continuing without egress", zap.Error(err))
			publisher = nil
		} else {
			defer publisher.Close()
		}
	}

	orch := orchestrator.New(cfg.Orchestrator, an, pe, rc, ce, snapshots, publisher, logger, nil)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	apiv1.Register(router, apiv1.NewHandler(orch, logger), logger)

	apiServer := &http.Server{Addr: cfg.Server.Addr, Handler: router}
	metricsServer := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: metrics.Handler()}

	go func() {
		logger.Info("api listening", zap.String("addr", cfg.Server.Addr))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server failed", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("metrics listening", zap.String("addr", cfg.Server.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}
}
