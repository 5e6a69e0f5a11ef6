// Command coordinatord is the coordinator service entrypoint: it wires
// configuration, logging, the run store and its log/index backing,
// the summarizer, the two websocket hubs and the controller together,
// then serves the agent and UI ports until a shutdown signal arrives.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentbreak/coordinator/internal/api"
	"github.com/agentbreak/coordinator/internal/channel/agent"
	"github.com/agentbreak/coordinator/internal/channel/ui"
	"github.com/agentbreak/coordinator/internal/common/config"
	"github.com/agentbreak/coordinator/internal/common/logger"
	"github.com/agentbreak/coordinator/internal/controller"
	"github.com/agentbreak/coordinator/internal/events/bus"
	"github.com/agentbreak/coordinator/internal/run"
	"github.com/agentbreak/coordinator/internal/run/index"
	"github.com/agentbreak/coordinator/internal/runlog"
	"github.com/agentbreak/coordinator/internal/summarizer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level: cfg.Logging.Level, Format: cfg.Logging.Format, OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting agentbreak coordinator", zap.String("version", config.ServerVersion))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runLog, err := runlog.Open(cfg.RunLog.Directory)
	if err != nil {
		log.Fatal("failed to open run log", zap.Error(err))
	}

	idx, err := index.Open(cfg.Index.Driver, cfg.Index.DSN)
	if err != nil {
		log.Fatal("failed to open run index", zap.Error(err))
	}
	defer idx.Close()

	var backend summarizer.Backend
	if cfg.Summarizer.Enabled && cfg.Summarizer.Provider == "anthropic" {
		backend = summarizer.NewAnthropicBackend()
	}
	summarizerAdapter := summarizer.New(cfg.Summarizer, backend, log)

	store := run.New(runLog, idx, summarizerAdapter, config.ServerVersion, log)

	var eventBus bus.EventBus
	if cfg.Events.Enabled {
		natsBus, err := bus.NewNATSEventBus(cfg.Events, log)
		if err != nil {
			log.Warn("failed to connect to NATS event bus, falling back to in-memory", zap.Error(err))
			eventBus = bus.NewMemoryEventBus(log)
		} else {
			eventBus = natsBus
		}
	} else {
		eventBus = bus.NewMemoryEventBus(log)
	}
	defer eventBus.Close()

	ctrl := controller.New(store, eventBus, log)
	go ctrl.Run(ctx)

	agentHub := agent.NewHub(log)
	uiHub := ui.NewHub(log)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	agentServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.AgentPort),
		Handler: api.NewAgentRouter(ctrl, agentHub, log),
	}
	uiServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.UIPort),
		Handler: api.NewUIRouter(ctrl, uiHub, log),
	}

	go func() {
		log.Info("agent websocket server listening", zap.Int("port", cfg.Server.AgentPort))
		if err := agentServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("agent HTTP server failed", zap.Error(err))
		}
	}()
	go func() {
		log.Info("UI websocket server listening", zap.Int("port", cfg.Server.UIPort))
		if err := uiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("UI HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down coordinator")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := agentServer.Shutdown(shutdownCtx); err != nil {
		log.Error("agent HTTP server shutdown error", zap.Error(err))
	}
	if err := uiServer.Shutdown(shutdownCtx); err != nil {
		log.Error("UI HTTP server shutdown error", zap.Error(err))
	}

	log.Info("coordinator stopped")
}
