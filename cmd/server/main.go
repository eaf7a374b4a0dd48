// Package main is TinyOlly's entrypoint: load configuration, build the
// process, start every listener, and wait for a shutdown signal. Grounded
// on the teacher's cmd/server/main.go, minus its swagger annotations and
// database auto-migration step — TinyOlly has no durable schema to
// migrate (spec §3's Store is ephemeral-only).
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tinyolly/internal/app"
	"tinyolly/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	application, err := app.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to initialize server: %v", err)
	}

	if err := application.Start(); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("shutting down TinyOlly...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := application.Shutdown(ctx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}

	fmt.Println("TinyOlly stopped")
}
