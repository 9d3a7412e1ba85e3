package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/B-Borecki/seu-injection-lab/internal/alert"
	"github.com/B-Borecki/seu-injection-lab/internal/config"
	"github.com/B-Borecki/seu-injection-lab/internal/diag"
	"github.com/B-Borecki/seu-injection-lab/internal/pipeline"
	"github.com/B-Borecki/seu-injection-lab/internal/seu"
	redisstream "github.com/B-Borecki/seu-injection-lab/internal/store/redis"
	"github.com/B-Borecki/seu-injection-lab/internal/tracing"
)

const serviceName = "magtorq"

var (
	newStreamFactory = func(ctx context.Context, redisURL string) (redisstream.MessageTransport, error) {
		return redisstream.NewStream(ctx, redisURL)
	}
	newMemoryStreamFactory = func() redisstream.MessageTransport { return redisstream.NewMemoryStream() }
)

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// openDiagOutput resolves DIAG_OUTPUT. The returned closer is a no-op for
// the standard streams.
func openDiagOutput(target string) (io.Writer, func() error, error) {
	switch target {
	case "stdout", "-":
		return os.Stdout, func() error { return nil }, nil
	case "stderr":
		return os.Stderr, func() error { return nil }, nil
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open diag output %s: %w", target, err)
	}
	return f, f.Close, nil
}

func buildHooks(planFile string, rec seu.FlipRecorder, logger *slog.Logger) (seu.Hooks, error) {
	if strings.TrimSpace(planFile) == "" {
		return seu.Noop{}, nil
	}
	plan, err := seu.LoadPlan(planFile)
	if err != nil {
		return nil, err
	}
	return seu.NewInjector(plan, rec, logger), nil
}

func resolveTransport(ctx context.Context, redisURL string, logger *slog.Logger) (redisstream.MessageTransport, error) {
	redisURL = strings.TrimSpace(redisURL)
	if redisURL == "" {
		return newMemoryStreamFactory(), nil
	}
	t, err := newStreamFactory(ctx, redisURL)
	if err != nil {
		return nil, fmt.Errorf("initialize redis report stream: %w", err)
	}
	logger.Info("redis report stream enabled", "redis_url", redisURL)
	return t, nil
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	e := cfg.Experiment
	return pipeline.Config{
		Mode:               e.Mode,
		SamplePeriod:       e.SamplePeriod(),
		BaseField:          e.BaseField(),
		Gain:               e.Gain,
		CommandLimit:       e.CommandLimit,
		SRLStepMax:         e.SRLStepMax,
		MaxSeq:             e.MaxSeq,
		StatWindow:         e.StatWindow,
		QueueCapacity:      e.QueueCapacity,
		ReportStream:       cfg.Report.Stream,
		SatWindowThreshold: cfg.Alert.SatWindowThreshold,
	}
}

func statusMux(status http.Handler, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/status", status)
	return mux
}

func runStatusServer(ctx context.Context, port int, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("status server shutdown error", "error", err)
		}
	}()

	logger.Info("status server started", "port", port)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// stdout may carry the diag stream, so structured logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)

	logger.Info("starting magtorq",
		"protect_mode", cfg.Experiment.Mode.String(),
		"sample_period_ms", cfg.Experiment.SamplePeriodMs,
		"max_seq", cfg.Experiment.MaxSeq,
		"stat_window", cfg.Experiment.StatWindow,
		"diag_output", cfg.Diag.Output,
		"seu_plan", cfg.SEU.PlanFile,
	)

	tracingEndpoint := ""
	if cfg.Tracing.Enabled {
		tracingEndpoint = cfg.Tracing.Endpoint
	}
	shutdownTracing, err := tracing.Init(context.Background(), tracing.Config{
		ServiceName: serviceName,
		Endpoint:    tracingEndpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: 1,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()

	out, closeOut, err := openDiagOutput(cfg.Diag.Output)
	if err != nil {
		logger.Error("failed to open diag output", "error", err)
		os.Exit(1)
	}
	defer closeOut()

	stream := diag.New(out, diag.WithSampleLines(cfg.Diag.SampleLines, cfg.Diag.SampleRate))

	hooks, err := buildHooks(cfg.SEU.PlanFile, stream, logger)
	if err != nil {
		logger.Error("failed to load seu plan", "error", err, "plan", cfg.SEU.PlanFile)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport, err := resolveTransport(ctx, cfg.Report.RedisURL, logger)
	if err != nil {
		logger.Error("failed to initialize report transport", "error", err)
		os.Exit(1)
	}
	defer transport.Close()

	alerter := alert.FromURLs(cfg.Alert.WebhookURL, cfg.Alert.SlackWebhookURL, cfg.Alert.Cooldown(), logger)

	p := pipeline.New(pipelineConfig(cfg), stream, transport, logger,
		pipeline.WithHooks(hooks),
		pipeline.WithAlerter(alerter),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runStatusServer(gCtx, cfg.Server.StatusPort, statusMux(p.Status(), logger), logger)
	})

	g.Go(func() error {
		cost, err := p.Run(gCtx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		logger.Info("experiment halted",
			"run_id", p.RunID(),
			"tmr_calls", cost.TMRCalls,
			"srl_calls", cost.SRLCalls,
			"srl_clamps", cost.SRLClamps,
			"sat_total", cost.SatTotal,
		)
		if cfg.Experiment.ExitOnHalt {
			cancel()
		}
		return nil
	})

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("magtorq exited with error", "error", err)
		os.Exit(1)
	}
	if err := stream.Err(); err != nil {
		logger.Warn("diag stream write error", "error", err)
	}

	logger.Info("magtorq shut down gracefully")
}
