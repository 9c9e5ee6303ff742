// Command forestreplay runs the forest tutorial against a snapshot store and reconstructs
// models from the snapshots it wrote.
//
// Without -snapshot it loads the model, applies the tutorial operations and prints the snapshot
// keys written by each solve. With -snapshot it replays that snapshot and prints the result.
//
// The snapshot store is selected through METAMODEL_SNAPSHOT_* variables (see storefactory).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/AntonStoeckl/metamodel-go/example/forest"
	"github.com/AntonStoeckl/metamodel-go/metamodel"
	"github.com/AntonStoeckl/metamodel-go/metamodel/oteladapters"
	"github.com/AntonStoeckl/metamodel-go/metamodel/promadapters"
	"github.com/AntonStoeckl/metamodel-go/metamodel/storefactory"
)

const tracerName = "github.com/AntonStoeckl/metamodel-go/example/forest/cmd/forestreplay"

// Config holds the command's own settings. Flags override the environment.
type Config struct {
	ModelsDir   string `env:"FORESTREPLAY_MODELS_DIR" envDefault:"."`
	Model       string `env:"FORESTREPLAY_MODEL" envDefault:"forest.lp"`
	Snapshot    string `env:"FORESTREPLAY_SNAPSHOT"`
	MetricsAddr string `env:"FORESTREPLAY_METRICS_ADDR"`
	Debug       bool   `env:"FORESTREPLAY_DEBUG"`
}

type step struct {
	op   string
	args metamodel.Args
}

var tutorial = []step{
	{op: forest.OpSolve},
	{op: forest.OpRemoveLastPeriod},
	{op: forest.OpSolve},
	{op: forest.OpZeroObjectiveCoeffs},
	{op: forest.OpSetVariablesAttr, args: metamodel.Args{"obj", 1, "age"}},
	{op: forest.OpSolve},
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to read configuration: %v", err)
	}

	storeCfg, err := storefactory.ParseEnv()
	if err != nil {
		log.Fatalf("Failed to read snapshot store configuration: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, storeCfg, os.Stdout); err != nil {
		log.Fatalf("forestreplay: %v", err)
	}
}

func parseConfig(args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}

	flags := flag.NewFlagSet("forestreplay", flag.ContinueOnError)
	flags.StringVar(&cfg.ModelsDir, "models", cfg.ModelsDir, "directory the model source is read from")
	flags.StringVar(&cfg.Model, "model", cfg.Model, "model source file")
	flags.StringVar(&cfg.Snapshot, "snapshot", cfg.Snapshot, "snapshot key to reconstruct instead of running the tutorial")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address after the run")
	flags.BoolVar(&cfg.Debug, "debug", cfg.Debug, "log every dispatched operation")

	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func run(ctx context.Context, cfg Config, storeCfg storefactory.Config, out io.Writer) error {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	registry := prometheus.NewRegistry()
	metrics, err := promadapters.NewMetricsCollector(registry)
	if err != nil {
		return err
	}

	handle, err := storefactory.Open(ctx, storeCfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := handle.Close(); closeErr != nil {
			logger.Warn("closing snapshot store failed", "error", closeErr)
		}
	}()

	options := []metamodel.Option{
		metamodel.WithLoader(forest.Loader(cfg.ModelsDir)),
		metamodel.WithResolver(forest.Resolver()),
		metamodel.WithRegistryNames(forest.RegistryName),
		metamodel.WithSnapshotStore(handle.Store),
		metamodel.WithContextualLogger(logger),
		metamodel.WithMetrics(metrics),
		metamodel.WithTracing(oteladapters.NewTracingCollector(otel.Tracer(tracerName))),
	}

	if cfg.Snapshot != "" {
		err = reconstruct(ctx, cfg.Snapshot, options, out)
	} else {
		err = runTutorial(ctx, cfg.Model, options, out)
	}
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		return serveMetrics(ctx, cfg.MetricsAddr, metrics.Handler(), logger)
	}

	return nil
}

func runTutorial(ctx context.Context, source string, options []metamodel.Option, out io.Writer) error {
	mm, err := metamodel.New(ctx, source, options...)
	if err != nil {
		return err
	}

	for _, s := range tutorial {
		if err := mm.Dispatch(ctx, forest.Qualified(s.op), s.args, nil); err != nil {
			return err
		}

		if s.op == forest.OpSolve {
			model, _ := mm.Model().(*forest.Model)
			_, _ = fmt.Fprintf(out, "solve %d: status=%s objective=%g snapshot=%s\n",
				mm.SolveCount(), model.Status(), model.ObjVal(), mm.LastSnapshot())
		}
	}

	return nil
}

func reconstruct(ctx context.Context, key string, options []metamodel.Option, out io.Writer) error {
	mm, err := metamodel.Open(ctx, metamodel.Origin{SnapshotKey: key}, options...)
	if err != nil {
		return err
	}

	model, ok := mm.Model().(*forest.Model)
	if !ok {
		return forest.ErrNotAForestModel
	}

	_, _ = fmt.Fprintf(out, "model=%s solves=%d optimal=%t variables=%d constraints=%d next=%s\n",
		mm.ModelName(), mm.SolveCount(), mm.Optimal(), len(model.Variables()), len(model.Constraints()), mm.Filename())

	for i, entry := range mm.Journal() {
		_, _ = fmt.Fprintf(out, "%3d %s %v %v\n", i, entry.Operation, entry.Args, entry.Kwargs)
	}

	return nil
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.ListenAndServe()
	}()

	logger.Info("serving metrics, press Ctrl+C to stop", "addr", addr)

	select {
	case <-ctx.Done():
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	return server.Shutdown(shutdownCtx)
}
