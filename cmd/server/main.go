// Package main is the entry point for the osremote server.
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

	"github.com/buildsim/osremote/internal/config"
	"github.com/buildsim/osremote/internal/database"
	"github.com/buildsim/osremote/internal/executor"
	"github.com/buildsim/osremote/internal/router"
	"github.com/buildsim/osremote/internal/services"
	"github.com/buildsim/osremote/internal/validation"
	"github.com/buildsim/osremote/internal/version"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("osremote %s\n", version.Version)
		fmt.Printf("Build Time: %s\n", version.BuildTime)
		fmt.Printf("Git Commit: %s\n", version.GitCommit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("Warning: Could not load config from %s: %v", *configPath, err)
		log.Println("Using default configuration...")
		cfg = config.Default()
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	if err := db.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	validator := validation.New(cfg.Execution.ExtraAllowlist...)
	ex := executor.New(validator, executor.Config{
		DefaultTimeout: cfg.Execution.GetDefaultTimeout(),
		MaxTimeout:     cfg.Execution.GetMaxTimeout(),
		GracePeriod:    cfg.Execution.GetGracePeriod(),
		MaxOutputSize:  cfg.Execution.MaxOutputSize,
		PollInterval:   cfg.Monitor.GetPollInterval(),
		CPUWindow:      cfg.Monitor.CPUWindow,
		CPUMinSamples:  cfg.Monitor.CPUMinSamples,
	})
	history := services.NewHistoryService(db)

	if cfg.Auth.APITokenHash == "" {
		log.Println("WARNING: auth.api_token_hash is not set; the API accepts unauthenticated requests")
		log.Println("Generate a hash with: htpasswd -bnBC 10 \"\" <token> | tr -d ':\\n'")
	}

	r := router.New(cfg, ex, history)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Printf("osremote %s starting on %s", version.Version, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	// No child process may outlive the server.
	if killed := ex.KillAll(); killed > 0 {
		log.Printf("Terminated %d active execution(s)", killed)
	}

	log.Println("Server stopped")
}
