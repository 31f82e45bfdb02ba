// Package main runs the incremental indicator computation engine over the
// configured (symbol, timeframe, configuration) tuples.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"indicator-lab/internal/config"
	"indicator-lab/internal/engine"
	"indicator-lab/internal/observability"
	"indicator-lab/internal/storage"
	"indicator-lab/internal/storage/clickhouse"
	"indicator-lab/internal/storage/migrations"
	"indicator-lab/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to job config file")
	postgresDSN := flag.String("postgres-dsn", "postgres://localhost:5432/indicator_lab?sslmode=disable", "PostgreSQL DSN")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "Optional ClickHouse DSN for the derived bar cache")
	metricsAddr := flag.String("metrics-addr", "", "Optional address to serve /metrics on")
	force := flag.Bool("force", false, "Clear and recompute every tuple's full range")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived signal %v, cancelling run...\n", sig)
		cancel()
	}()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	jobs, err := cfg.Jobs(*force)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	pool, err := postgres.NewPool(ctx, *postgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Postgres error: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "Migration error: %v\n", err)
		os.Exit(1)
	}

	var cache storage.DerivedBarCache
	if *clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ClickHouse error: %v\n", err)
			os.Exit(1)
		}
		defer conn.Close()
		cache = clickhouse.NewDerivedBarCache(conn)
	}

	metrics := observability.NewMetrics("")
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				fmt.Fprintf(os.Stderr, "Metrics server error: %v\n", err)
			}
		}()
	}

	eng := engine.New(engine.Options{
		Bars:    postgres.NewBarStore(pool),
		Outputs: postgres.NewOutputStore(pool),
		Cache:   cache,
		Metrics: metrics,
		Verbose: *verbose,
	})

	runner := engine.NewRunner(engine.RunnerOptions{
		Engine:  eng,
		Verbose: *verbose,
	})

	fmt.Printf("=== Indicator computation: %d tuples ===\n", len(jobs))
	summary, err := runner.RunAll(ctx, jobs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Run error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Run completed:\n")
	fmt.Printf("  Completed:       %d\n", summary.Completed)
	fmt.Printf("  Already current: %d\n", summary.AlreadyCurrent)
	fmt.Printf("  Skipped:         %d\n", summary.Skipped)
	fmt.Printf("  Rows changed:    %d\n", summary.RowsChanged)
	if len(summary.Errors) > 0 {
		fmt.Printf("  Errors:\n")
		for _, e := range summary.Errors {
			fmt.Printf("    - %s\n", e)
		}
		os.Exit(1)
	}
}
