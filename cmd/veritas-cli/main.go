// veritas-cli runs a single query against the orchestration core
// end-to-end, printing its progress stream as NDJSON to stdout and the
// aggregated answer to stdout once the plan finishes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
	"github.com/veritas-eu/orchestrator-core/internal/bootstrap"
	"github.com/veritas-eu/orchestrator-core/internal/service"
	"github.com/veritas-eu/orchestrator-core/stream"
)

func main() {
	envPath := flag.String("env-file", ".env", "path to a .env file to load before reading configuration")
	query := flag.String("query", "", "the question to submit")
	locale := flag.String("locale", "de-DE", "query locale")
	flag.Parse()

	if *query == "" {
		fmt.Fprintln(os.Stderr, "usage: veritas-cli -query \"...\"")
		os.Exit(2)
	}

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

	ctx := context.Background()
	sess, err := svc.Submit(ctx, domain.Query{Text: *query, Locale: *locale})
	if err != nil {
		log.Fatalf("submit failed: %v", err)
	}

	tailCtx, stopTail := context.WithCancel(ctx)
	tailDone := make(chan struct{})
	go func() {
		defer close(tailDone)
		if err := stream.WriteNDJSON(tailCtx, sess.Orchestrator.Stream(), os.Stdout, sess.ID, 0); err != nil && tailCtx.Err() == nil {
			log.Printf("progress stream ended: %v", err)
		}
	}()

	runCtx, cancelRun := context.WithTimeout(ctx, cfg.PerPlanTimeout())
	defer cancelRun()
	svc.Run(runCtx, sess)

	// Give the tailing goroutine a moment to drain events already
	// published before Run returned, then stop it.
	time.Sleep(50 * time.Millisecond)
	stopTail()
	<-tailDone

	answer, runErr, _ := sess.Result()
	if answer != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(answer); err != nil {
			log.Fatalf("failed to encode answer: %v", err)
		}
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "plan ended with error: %v\n", runErr)
		os.Exit(1)
	}
}
