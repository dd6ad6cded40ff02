package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"csv-agent/agent"
	"csv-agent/config"
	"csv-agent/llmclient"
	"csv-agent/session"
	"csv-agent/tools"
	"csv-agent/web"
	"csv-agent/web/services"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Initialize logger with default level to load config
	tempLogger, err := config.InitLogger("info")
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// Load config (which includes log level setting)
	cfg := config.Load(tempLogger)

	// Re-initialize logger with configured level
	logger, err := config.InitLogger(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to re-initialize logger with configured level: %v\n", err)
		os.Exit(1)
	}
	defer config.Cleanup()

	// Create context that listens for interrupt signals
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.OpenAIAPIKey == "" {
		logger.Warn("OPENAI_API_KEY is not set; requests to the model will fail")
	}

	if err := os.MkdirAll(cfg.WorkspaceDir, 0o755); err != nil {
		logger.Fatal("Failed to create workspace directory", zap.Error(err), zap.String("path", cfg.WorkspaceDir))
	}

	pythonTool, err := tools.NewStatefulPythonTool(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Python tool", zap.Error(err))
	}
	defer pythonTool.Close()

	pandasTool := tools.NewPandasTool(cfg, pythonTool, logger)
	llm := llmclient.New(cfg, logger)
	factory := agent.NewFactory(cfg, llm, pandasTool, logger)

	// Initialize cleanup service; evicted sessions release their workspace
	cleanupService := web.NewCleanupService(cfg.WorkspaceDir, pandasTool, logger)
	store, err := session.NewStore(cfg.SessionCacheSize, cleanupService.ReleaseSession, logger)
	if err != nil {
		logger.Fatal("Failed to initialize session store", zap.Error(err))
	}
	chatService := services.NewChatService(logger)
	datasetService := services.NewDatasetService(cfg, pandasTool, factory, logger)

	// Initialize web server
	webServer := web.NewServer(cfg, store, chatService, datasetService, logger)

	// Start web server and the idle session sweeper; either failing stops both
	port := fmt.Sprintf(":%d", cfg.WebPort)
	logger.Info("Starting CSV analysis chatbot", zap.String("port", port), zap.String("default_model", cfg.DefaultModel))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return webServer.Start(gctx, port)
	})
	g.Go(func() error {
		web.StartWorkspaceCleanup(gctx, cfg, cleanupService, store, logger)
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error("Web server error", zap.Error(err))
		os.Exit(1)
	}
}
