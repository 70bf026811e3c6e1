// poetsim drives the controller against a synthetic workload described
// by a YAML scenario file, exposing controller metrics over HTTP and
// printing an achieved-performance/power summary at the end of the run.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/saeidbarati157/poet"
	"github.com/saeidbarati157/poet/internal/config"
	"github.com/saeidbarati157/poet/internal/numeric"
	"github.com/saeidbarati157/poet/internal/tracing"
)

var (
	cfgPath       string
	iterationsOpt int
	logLevelOpt   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "poetsim",
		Short: "Run the tradeoff controller against a synthetic workload",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			return run(cmd.Context())
		},
	}
	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "poetsim.yaml", "scenario file")
	rootCmd.Flags().IntVar(&iterationsOpt, "iterations", 0, "override scenario iteration count")
	rootCmd.Flags().StringVar(&logLevelOpt, "log-level", "info", "debug, info, warn or error")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	logLevel := slog.LevelInfo
	switch logLevelOpt {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load scenario", "error", err)
		return err
	}
	if iterationsOpt > 0 {
		cfg.Iterations = iterationsOpt
	}

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	shutdownTracing, err := tracing.Init(ctx, "poetsim", cfg.Tracing.Endpoint, cfg.Tracing.Insecure, cfg.Tracing.SampleRatio)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()
	tracer := tracing.Tracer("poetsim")

	states := make([]poet.ControlState, 0, len(cfg.States))
	for _, s := range cfg.States {
		partner := s.ID
		if s.IdlePartner != nil {
			partner = *s.IdlePartner
		}
		states = append(states, poet.ControlState{
			ID:            s.ID,
			Speedup:       numeric.FromFloat(s.Speedup),
			Cost:          numeric.FromFloat(s.Cost),
			IdlePartnerID: partner,
		})
	}

	constraint := poet.ConstraintPerformance
	if cfg.Constraint == "power" {
		constraint = poet.ConstraintPower
	}

	sim := newWorkloadSim(cfg.Workload.BasePerf, cfg.Workload.BasePower, cfg.Workload.Jitter, states, time.Now().UnixNano(), logger)

	ctl, err := poet.New(poet.Config{
		Goal:        numeric.FromFloat(cfg.Goal),
		Constraint:  constraint,
		States:      states,
		Apply:       sim.apply,
		Current:     func([]poet.ControlState) (uint, error) { return 0, nil },
		Period:      cfg.Period,
		BufferDepth: cfg.BufferDepth,
		LogPath:     cfg.LogPath,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to initialize controller", "error", err)
		return err
	}
	defer func() {
		if closeErr := ctl.Close(); closeErr != nil {
			logger.Warn("controller close failed", "error", closeErr)
		}
	}()

	logger.Info("starting poetsim",
		"constraint", cfg.Constraint,
		"goal", cfg.Goal,
		"states", len(states),
		"period", cfg.Period,
		"buffer_depth", cfg.BufferDepth,
		"iterations", cfg.Iterations,
		"metrics_addr", cfg.MetricsAddr,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runMetricsServer(gCtx, cfg.MetricsAddr, logger)
	})

	g.Go(func() error {
		defer cancel()
		runCtx, runSpan := tracer.Start(gCtx, "simulation_run",
			trace.WithAttributes(attribute.String("run_id", runID)))
		defer runSpan.End()
		sim.instrument(runCtx, tracer)

		var limiter *rate.Limiter
		if cfg.RatePerSec > 0 {
			limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
		}

		perfs := make([]float64, 0, cfg.Iterations)
		powers := make([]float64, 0, cfg.Iterations)
		for i := 0; i < cfg.Iterations; i++ {
			if limiter != nil {
				if err := limiter.Wait(gCtx); err != nil {
					return nil
				}
			} else if gCtx.Err() != nil {
				return nil
			}

			perf, power := sim.measure()
			ctl.ApplyControl(uint64(i), numeric.FromFloat(perf), numeric.FromFloat(power))
			perfs = append(perfs, perf)
			powers = append(powers, power)
		}

		summary, err := summarize(perfs, powers)
		if err != nil {
			return fmt.Errorf("summarize run: %w", err)
		}
		logger.Info("run complete",
			"iterations", len(perfs),
			"final_state_id", sim.appliedID,
			"apply_calls", sim.applyCalls,
			"total_idle_ns", sim.totalIdleNS,
			"mean_perf", summary.MeanPerf,
			"p95_perf", summary.P95Perf,
			"mean_power", summary.MeanPower,
			"p95_power", summary.P95Power,
		)
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("poetsim exited with error", "error", err)
		return err
	}
	logger.Info("poetsim shut down gracefully")
	return nil
}

func runMetricsServer(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server shutdown error", "error", err)
		}
	}()

	logger.Info("metrics server started", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
