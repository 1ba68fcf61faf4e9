// Command vixbatch computes observations for a batch of daily chain
// snapshots and writes the augmented columns as CSV.
//
// Input is JSON lines, one snapshot per line, in the same shape as the
// POST /api/v1/observations body:
//
//	{"underlying":"SPX","date":"2025-01-02","underlying_price":"5868.55","atm_iv":"0.16","quotes":[{"symbol":"SPXW250127C05900000","mid":"41.2"}]}
//
// Usage:
//
//	vixbatch -in snapshots.jsonl -out observations.csv -columns vix
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/atmx/vix-engine/internal/augment"
	"github.com/atmx/vix-engine/internal/config"
	"github.com/atmx/vix-engine/internal/engine"
	"github.com/atmx/vix-engine/internal/index"
	"github.com/atmx/vix-engine/internal/pipeline"
	"github.com/atmx/vix-engine/internal/rates"
	"github.com/atmx/vix-engine/internal/store"
	"github.com/atmx/vix-engine/internal/vix"
	"github.com/atmx/vix-engine/internal/window"
)

// maxLine bounds one JSON line; full chains run to several megabytes.
const maxLine = 64 << 20

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}

	in := flag.String("in", "", "JSON-lines snapshot file (default stdin)")
	out := flag.String("out", "", "CSV output file (default stdout)")
	columns := flag.String("columns", cfg.Columns, "column variant: iv | vix")
	workers := flag.Int("workers", cfg.Workers, "underlyings processed in parallel")
	flag.Parse()

	// Logs go to stderr so stdout can carry the CSV.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	cols, err := augment.Parse(*columns)
	if err != nil {
		slog.Error("invalid columns", "err", err)
		os.Exit(1)
	}

	src := io.Reader(os.Stdin)
	if *in != "" {
		f, err := os.Open(*in)
		if err != nil {
			slog.Error("cannot open input", "path", *in, "err", err)
			os.Exit(1)
		}
		defer f.Close()
		src = f
	}

	dst := io.Writer(os.Stdout)
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			slog.Error("cannot create output", "path", *out, "err", err)
			os.Exit(1)
		}
		defer f.Close()
		dst = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, cleanup, err := store.Open(ctx, cfg.DatabaseURL, cfg.RedisURL, cfg.CacheTTL)
	if err != nil {
		slog.Error("store initialization failed", "err", err)
		os.Exit(1)
	}
	defer cleanup()

	rateSource, err := rates.Open(cfg.RatesFile, cfg.RiskFreeRate)
	if err != nil {
		slog.Error("rates initialization failed", "err", err)
		os.Exit(1)
	}

	eng := engine.New(vix.NewCalculator(rateSource), st, window.NewRegistry(cfg.WindowSize), cfg.LookbackDays, nil)

	failures, err := run(ctx, eng, *workers, cols, src, dst)
	if err != nil {
		slog.Error("batch failed", "err", err)
		os.Exit(1)
	}
	if failures > 0 {
		os.Exit(2)
	}
}

// run reads every snapshot, processes the batch and writes the rows. It
// returns the number of inputs that produced no row.
func run(ctx context.Context, proc pipeline.Processor, workers int, cols augment.Columns, src io.Reader, dst io.Writer) (int, error) {
	inputs, rejected, err := readInputs(src)
	if err != nil {
		return 0, err
	}
	slog.Info("snapshots loaded", "accepted", len(inputs), "rejected", rejected)

	report, err := pipeline.NewRunner(proc, workers).Run(ctx, inputs)
	if err != nil {
		return 0, err
	}
	for _, f := range report.Failures {
		slog.Warn("observation failed",
			"underlying", f.Underlying,
			"date", f.Date.Format("2006-01-02"),
			"err", f.Err,
		)
	}

	w := augment.NewWriter(dst, cols)
	for i := range report.Observations {
		if err := w.Write(&report.Observations[i]); err != nil {
			return 0, fmt.Errorf("write row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("flush: %w", err)
	}

	slog.Info("batch complete",
		"observations", len(report.Observations),
		"failures", len(report.Failures),
	)
	return rejected + len(report.Failures), nil
}

// readInputs decodes one snapshot per non-empty line. Invalid lines are
// logged and counted, not fatal.
func readInputs(r io.Reader) ([]engine.Input, int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), maxLine)

	var inputs []engine.Input
	rejected := 0
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var req index.SnapshotRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			slog.Warn("invalid JSON line", "line", line, "err", err)
			rejected++
			continue
		}
		in, err := req.Input()
		if err != nil {
			slog.Warn("invalid snapshot", "line", line, "err", err)
			rejected++
			continue
		}
		inputs = append(inputs, *in)
	}
	if err := sc.Err(); err != nil {
		return nil, rejected, fmt.Errorf("read input: %w", err)
	}
	return inputs, rejected, nil
}
