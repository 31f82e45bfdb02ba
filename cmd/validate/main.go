// Package main independently recomputes indicator output for the configured
// tuples and reports discrepancies against the stored values.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"indicator-lab/internal/config"
	"indicator-lab/internal/domain"
	"indicator-lab/internal/storage/migrations"
	"indicator-lab/internal/storage/postgres"
	"indicator-lab/internal/validate"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to job config file")
	postgresDSN := flag.String("postgres-dsn", "postgres://localhost:5432/indicator_lab?sslmode=disable", "PostgreSQL DSN")
	fromStr := flag.String("from", "", "Validation window start (RFC3339, required)")
	toStr := flag.String("to", "", "Validation window end (RFC3339, default now)")
	format := flag.String("format", "markdown", "Report format: markdown or csv")
	outputDir := flag.String("output-dir", "", "Optional directory for per-tuple report files (default stdout)")
	scanGaps := flag.Bool("gaps", false, "Also report source series gaps per symbol and timeframe")
	flag.Parse()

	if *fromStr == "" {
		fmt.Fprintf(os.Stderr, "Missing required -from\n")
		os.Exit(1)
	}
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
	if *format != "markdown" && *format != "csv" {
		fmt.Fprintf(os.Stderr, "Invalid -format %q\n", *format)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived signal %v, cancelling validation...\n", sig)
		cancel()
	}()

	cfg, err := config.Load(*configPath)
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

	bars := postgres.NewBarStore(pool)
	validator := validate.New(validate.Options{
		Bars:    bars,
		Outputs: postgres.NewOutputStore(pool),
	})

	fromMs := from.UnixMilli()
	toMs := to.UnixMilli()

	dirty := 0
	checked := 0
	for _, symbol := range cfg.Symbols {
		for _, token := range cfg.Timeframes {
			tf, err := domain.ParseTimeframe(token)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
				os.Exit(1)
			}

			if *scanGaps {
				gaps, err := validate.ScanGaps(ctx, bars, symbol, tf, fromMs, toMs)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Gap scan error for %s %s: %v\n", symbol, tf.Token, err)
					os.Exit(1)
				}
				name := fmt.Sprintf("gaps_%s_%s.md", symbol, tf.Token)
				if err := emit(*outputDir, name, validate.RenderGapsMarkdown(gaps)); err != nil {
					fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
					os.Exit(1)
				}
			}

			for _, params := range cfg.Indicators {
				report, err := validator.Validate(ctx, symbol, tf, params, fromMs, toMs)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Validation error for %s %s %s: %v\n", symbol, tf.Token, params.Family, err)
					os.Exit(1)
				}

				checked++
				if !report.Clean() {
					dirty++
				}

				var body, ext string
				if *format == "csv" {
					body, ext = validate.RenderCSV(report), "csv"
				} else {
					body, ext = validate.RenderMarkdown(report), "md"
				}
				name := fmt.Sprintf("validation_%s_%s_%s.%s",
					symbol, tf.Token, strings.ReplaceAll(report.Config, "/", "_"), ext)
				if err := emit(*outputDir, name, body); err != nil {
					fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
					os.Exit(1)
				}
			}
		}
	}

	fmt.Printf("Validation completed: %d tuples, %d with discrepancies\n", checked, dirty)
	if dirty > 0 {
		os.Exit(1)
	}
}

// emit writes one report to dir/name, or to stdout when no directory is set.
func emit(dir, name, body string) error {
	if dir == "" {
		fmt.Println(body)
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644)
}
