package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scanalytics-backend/internal/config"
	"scanalytics-backend/internal/handler"
	"scanalytics-backend/internal/service"
	"scanalytics-backend/pkg/logger"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	insightService := service.NewFromConfig(cfg)
	chatHandler := handler.NewChatHandler(insightService, cfg.Chat.HeartbeatInterval)
	healthHandler := handler.NewHealthHandler(cfg.Model.Provider)

	router := handler.NewRouter(cfg, chatHandler, healthHandler)

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		logger.Infof("server listening on port %d (provider %s)", cfg.Server.Port, cfg.Model.Provider)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	// in-flight streams are bounded by the chat timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Chat.Timeout+5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("server shutdown failed: %v", err)
	}
	logger.Info("server stopped")
}
