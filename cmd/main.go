package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"webforge_server/config"
	"webforge_server/internal/ai"
	"webforge_server/internal/api"
	"webforge_server/internal/logging"
)

func main() {
	// Load .env before viper reads the environment.
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			logrus.Warnf("Error loading .env file: %v", err)
		}
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logrus.Fatalf("Cannot load config: %v", err)
	}

	logging.InitLogger(cfg)

	// --- Dependency Initialization ---
	client := ai.NewFallbackClient(
		cfg.OpenAIKey,
		cfg.OpenAIBaseURL,
		ai.DefaultCandidates,
		cfg.ToolRetryMax,
		time.Duration(cfg.ToolRetryDelayMs)*time.Millisecond,
	)
	orchestrator := ai.NewOrchestrator(
		client,
		cfg.FileContextLimit,
		time.Duration(cfg.WritePacingMs)*time.Millisecond,
	)
	apiHandler := api.NewAPIHandler(orchestrator)

	// --- Start API Server ---
	if os.Getenv("APP_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
		logrus.Info("Running in Gin Debug Mode")
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	api.RegisterRoutes(router, apiHandler)

	server := &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: router,
		// No WriteTimeout: generation streams stay open until the terminal
		// done event, which can outlast any fixed budget.
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logrus.Infof("Starting API server on %s", cfg.ServerAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("API server listen error: %s", err)
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logrus.Infof("Received signal: %s. Shutting down server...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("API server forced shutdown error: %v", err)
	} else {
		logrus.Info("API server gracefully stopped.")
	}
}
