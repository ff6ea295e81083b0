// Sweeper periodically clears persisted session credentials, standing in for
// the OS-scheduled background task. Set DATA_DIR and optionally
// SWEEP_INTERVAL (minimum 15m). API_BASE_URL is required by config but the
// sweeper never calls the backend.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"billpoint/client/internal/config"
	"billpoint/client/internal/logging"
	"billpoint/client/internal/session"
	"billpoint/client/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer logger.Sync()

	dataDir := cfg.DataDir
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("resolve home dir: %v", err)
		}
		dataDir = home + "/.billpoint"
	}
	plain, err := store.NewFileStore(dataDir + "/state.json")
	if err != nil {
		log.Fatalf("plain store: %v", err)
	}
	secure, err := store.NewSecureFileStore(dataDir + "/secure.json")
	if err != nil {
		log.Fatalf("secure store: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("sweeper: shutting down...")
		cancel()
	}()

	sweeper := session.NewSweeper(plain, secure, cfg.SweepIntervalDuration(), logger)
	if err := sweeper.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("sweeper: %v", err)
	}
	log.Println("sweeper: stopped")
}
