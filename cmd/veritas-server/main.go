// veritas-server runs the orchestration core's HTTP control plane: submit
// a query, watch it progress, pause/resume/cancel it, intervene on a
// running plan, and fetch the aggregated answer once it's done.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/internal/api"
	"github.com/veritas-eu/orchestrator-core/internal/bootstrap"
	"github.com/veritas-eu/orchestrator-core/internal/service"
)

func main() {
	envPath := flag.String("env-file", ".env", "path to a .env file to load before reading configuration")
	addr := flag.String("addr", ":8080", "address to listen on")
	flag.Parse()

	if _, err := os.Stat(*envPath); err == nil {
		if err := godotenv.Load(*envPath); err != nil {
			log.Printf("warning: could not load %s: %v", filepath.Clean(*envPath), err)
		}
	}

	cfg := core.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	sys, err := bootstrap.New(cfg)
	if err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}
	cfg.WithLogger(sys.Logger)

	svc := service.New(cfg,
		service.WithLogger(sys.Logger),
		service.WithTelemetry(sys.Telemetry),
		service.WithMeter(sys.Meter),
		service.WithRetriever(sys.Retriever),
		service.WithGeneration(sys.Generation),
		service.WithStore(sys.Store),
	)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           api.NewServer(svc, sys).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sys.Logger.Info("starting http server", map[string]interface{}{"addr": *addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sys.Logger.Error("http server failed", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sys.Logger.Error("graceful shutdown failed", map[string]interface{}{"error": err.Error()})
	}
}
