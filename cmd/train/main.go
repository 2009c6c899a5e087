// Command train cleans a vehicle listings CSV, fits the encoders and a
// linear price model, and writes the artifacts the API server loads.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/WessleyAI/wessley-pricing/engine/training"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, logger); err != nil {
		logger.Error("training failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer, logger *slog.Logger) error {
	def := training.DefaultConfig()
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		data     = fs.String("data", "vehicles.csv", "listings CSV with a header row")
		out      = fs.String("out", "ml_models", "directory the artifacts are written to")
		testSize = fs.Float64("test-size", def.TestSize, "fraction of rows held out for evaluation")
		seed     = fs.Uint64("seed", def.Seed, "shuffle seed for the train/test split")
		workers  = fs.Int("workers", runtime.NumCPU(), "evaluation workers")
		asJSON   = fs.Bool("json", false, "print the report as JSON")
	)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("flags: %w", err)
	}

	cfg := def
	cfg.DataPath = *data
	cfg.OutDir = *out
	cfg.TestSize = *testSize
	cfg.Seed = *seed
	cfg.Workers = *workers

	rep, err := training.Run(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	fmt.Fprintf(stdout, "rows: read=%d kept=%d train=%d test=%d\n", rep.Clean.Read, rep.Clean.Kept, rep.Train, rep.Test)
	fmt.Fprintf(stdout, "mse=%.2f mae=%.2f rmse=%.2f r2=%.4f\n", rep.Scores.MSE, rep.Scores.MAE, rep.Scores.RMSE, rep.Scores.R2)
	fmt.Fprintf(stdout, "model: %s\none-hot encoder: %s\nlabel encoder: %s\n", rep.Paths.Model, rep.Paths.OneHot, rep.Paths.Labels)
	return nil
}
