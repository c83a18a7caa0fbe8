package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"strings"
	"time"

	glog "github.com/labstack/gommon/log"

	"github.com/xiaot623/gogo/autoqa/internal/adapter/probe"
	"github.com/xiaot623/gogo/autoqa/internal/auth"
	"github.com/xiaot623/gogo/autoqa/internal/config"
	"github.com/xiaot623/gogo/autoqa/internal/hub"
	"github.com/xiaot623/gogo/autoqa/internal/policy"
	"github.com/xiaot623/gogo/autoqa/internal/repository"
	"github.com/xiaot623/gogo/autoqa/internal/service"
	handler "github.com/xiaot623/gogo/autoqa/internal/transport/http"
	"github.com/xiaot623/gogo/autoqa/internal/ws"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting autoqa server...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	if len(cfg.AuthTokens) == 0 {
		log.Printf("WARN: AUTH_TOKENS is empty, every request is anonymous")
	}

	// Initialize store
	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize policy engine
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy, cfg.Admins)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize hub
	connectionHub := hub.NewHub()
	go connectionHub.Run(ctx)

	// Initialize service
	svc := service.New(db, connectionHub, probe.NewPlanner(), probe.NewExecutor(cfg.ProbeTimeout), policyEngine)

	// Create Echo server
	wsServer := ws.NewServer(cfg, connectionHub, db, policyEngine)
	server := handler.NewServer(svc, wsServer, auth.New(cfg.AuthTokens))
	server.Logger.SetLevel(logLevel(cfg.LogLevel))

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Server started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down autoqa server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}
	svc.Close()
	stop()

	log.Println("Server stopped")
}

func logLevel(s string) glog.Lvl {
	switch strings.ToLower(s) {
	case "debug":
		return glog.DEBUG
	case "warn":
		return glog.WARN
	case "error":
		return glog.ERROR
	case "off":
		return glog.OFF
	default:
		return glog.INFO
	}
}
