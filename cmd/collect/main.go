// Package main collects base 1m bars: REST backfill for a historical window,
// optionally followed by a live WebSocket subscription.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"indicator-lab/internal/collect"
	"indicator-lab/internal/observability"
	"indicator-lab/internal/storage/migrations"
	"indicator-lab/internal/storage/postgres"
)

func main() {
	postgresDSN := flag.String("postgres-dsn", "postgres://localhost:5432/indicator_lab?sslmode=disable", "PostgreSQL DSN")
	symbolsFlag := flag.String("symbols", "", "Comma-separated symbols, e.g. SOLUSDT,BTCUSDT (required)")
	restURL := flag.String("rest-url", "https://api.binance.com", "REST API base URL for backfill")
	wsURL := flag.String("ws-url", "wss://stream.binance.com:9443", "WebSocket stream base URL")
	fromStr := flag.String("from", "", "Backfill window start (RFC3339)")
	toStr := flag.String("to", "", "Backfill window end (RFC3339, default now)")
	live := flag.Bool("live", false, "Subscribe to live candles after backfill")
	metricsAddr := flag.String("metrics-addr", "", "Optional address to serve /metrics on")
	flag.Parse()

	if *symbolsFlag == "" {
		fmt.Fprintf(os.Stderr, "Missing required -symbols\n")
		os.Exit(1)
	}
	symbols := strings.Split(*symbolsFlag, ",")
	for i, s := range symbols {
		symbols[i] = strings.TrimSpace(s)
	}

	if *fromStr == "" && !*live {
		fmt.Fprintf(os.Stderr, "Nothing to do: set -from for a backfill, -live for streaming, or both\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived signal %v, shutting down...\n", sig)
		cancel()
	}()

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

	bars := postgres.NewBarStore(pool)

	if *fromStr != "" {
		from, err := time.Parse(time.RFC3339, *fromStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid -from: %v\n", err)
			os.Exit(1)
		}
		to := time.Now().UTC()
		if *toStr != "" {
			to, err = time.Parse(time.RFC3339, *toStr)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid -to: %v\n", err)
				os.Exit(1)
			}
		}

		backfiller := collect.NewBackfiller(collect.BackfillOptions{
			Client:  collect.NewRESTClient(*restURL),
			Bars:    bars,
			Metrics: metrics,
		})

		for _, symbol := range symbols {
			result, err := backfiller.BackfillRange(ctx, symbol, from.UnixMilli(), to.UnixMilli())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Backfill error for %s: %v\n", symbol, err)
				os.Exit(1)
			}
			fmt.Printf("Backfill %s: %d bars, %d duplicates in %v\n",
				symbol, result.BarsIngested, result.DuplicatesSkipped, result.Duration)
		}
	}

	if *live {
		collector := collect.NewLiveCollector(collect.LiveOptions{
			Endpoint: *wsURL,
			Symbols:  symbols,
			Bars:     bars,
			Metrics:  metrics,
		})

		fmt.Printf("Streaming live candles for %s\n", strings.Join(symbols, ", "))
		if err := collector.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "Stream error: %v\n", err)
			os.Exit(1)
		}
	}
}
