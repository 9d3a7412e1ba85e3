package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/B-Borecki/seu-injection-lab/internal/alert"
	"github.com/B-Borecki/seu-injection-lab/internal/diag"
	"github.com/B-Borecki/seu-injection-lab/internal/domain/model"
	"github.com/B-Borecki/seu-injection-lab/internal/metrics"
	"github.com/B-Borecki/seu-injection-lab/internal/pipeline/actuator"
	"github.com/B-Borecki/seu-injection-lab/internal/pipeline/controller"
	"github.com/B-Borecki/seu-injection-lab/internal/pipeline/queue"
	"github.com/B-Borecki/seu-injection-lab/internal/pipeline/reporter"
	"github.com/B-Borecki/seu-injection-lab/internal/pipeline/retry"
	"github.com/B-Borecki/seu-injection-lab/internal/pipeline/sensor"
	"github.com/B-Borecki/seu-injection-lab/internal/seu"
	redisstream "github.com/B-Borecki/seu-injection-lab/internal/store/redis"
	"github.com/B-Borecki/seu-injection-lab/internal/tracing"
)

// ErrAlreadyRun is returned by a second call to Run. A halted experiment
// is never restarted.
var ErrAlreadyRun = errors.New("pipeline already ran")

const (
	defaultDepthSampleInterval = 5 * time.Second
	reportBufferSize           = 16
)

var publishRetry = retry.Policy{Attempts: 3, Backoff: 50 * time.Millisecond}

type Config struct {
	Mode          model.ProtectMode
	SamplePeriod  time.Duration
	BaseField     [3]int32
	Gain          int32
	CommandLimit  int32
	SRLStepMax    int32
	MaxSeq        uint32
	StatWindow    uint32
	QueueCapacity int

	ReportStream       string
	SatWindowThreshold uint32

	// DepthSampleInterval controls queue depth gauges and status counters.
	DepthSampleInterval time.Duration
}

// DefaultConfig mirrors the reference experiment parameters.
func DefaultConfig(mode model.ProtectMode) Config {
	return Config{
		Mode:          mode,
		SamplePeriod:  10 * time.Millisecond,
		BaseField:     sensor.DefaultBaseField,
		Gain:          controller.DefaultGain,
		CommandLimit:  controller.DefaultLimit,
		SRLStepMax:    actuator.DefaultSRLStepMax,
		MaxSeq:        actuator.DefaultMaxSeq,
		StatWindow:    actuator.DefaultStatWindow,
		QueueCapacity: queue.DefaultCapacity,
		ReportStream:  "magtorq:reports",
	}
}

type Pipeline struct {
	cfg       Config
	runID     string
	hooks     seu.Hooks
	diag      *diag.Stream
	transport redisstream.MessageTransport
	alerter   alert.Alerter
	status    *RunStatus
	ran       atomic.Bool
	logger    *slog.Logger
}

type Option func(*Pipeline)

// WithHooks installs fault-injection hooks shared by controller and actuator.
func WithHooks(h seu.Hooks) Option {
	return func(p *Pipeline) {
		if h != nil {
			p.hooks = h
		}
	}
}

func WithAlerter(a alert.Alerter) Option {
	return func(p *Pipeline) {
		if a != nil {
			p.alerter = a
		}
	}
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(p *Pipeline) {
		if id != "" {
			p.runID = id
		}
	}
}

func New(
	cfg Config,
	stream *diag.Stream,
	transport redisstream.MessageTransport,
	logger *slog.Logger,
	opts ...Option,
) *Pipeline {
	if cfg.DepthSampleInterval <= 0 {
		cfg.DepthSampleInterval = defaultDepthSampleInterval
	}
	p := &Pipeline{
		cfg:       cfg,
		runID:     uuid.NewString(),
		hooks:     seu.Noop{},
		diag:      stream,
		transport: transport,
		alerter:   &alert.NoopAlerter{},
	}
	for _, o := range opts {
		o(p)
	}
	p.status = NewRunStatus(p.runID, cfg.Mode)
	p.logger = logger.With("component", "pipeline", "run_id", p.runID, "mode", cfg.Mode.String())
	return p
}

func (p *Pipeline) RunID() string { return p.runID }

// Status returns the run tracker served on /status.
func (p *Pipeline) Status() *RunStatus { return p.status }

// Run executes the experiment until the actuator sees the final sequence
// number or ctx ends. Completion returns the cost report and a nil error.
func (p *Pipeline) Run(ctx context.Context) (model.CostReport, error) {
	if !p.ran.CompareAndSwap(false, true) {
		return model.CostReport{}, ErrAlreadyRun
	}

	ctx, span := tracing.StartExperiment(ctx, p.runID, p.cfg.Mode)
	defer span.End()

	p.diag.Boot(p.runID, p.cfg.Mode)
	metrics.PipelineHalted.WithLabelValues(p.cfg.Mode.String()).Set(0)

	type result struct {
		cost model.CostReport
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resCh <- result{err: fmt.Errorf("pipeline panic: %v\n%s", r, debug.Stack())}
			}
		}()
		cost, err := p.runStages(ctx)
		resCh <- result{cost: cost, err: err}
	}()

	res := <-resCh
	if res.err != nil {
		if errors.Is(res.err, context.Canceled) {
			p.logger.Info("pipeline cancelled before completion")
		} else {
			tracing.RecordFailure(span, res.err)
			p.logger.Error("pipeline failed", "error", res.err)
		}
		return model.CostReport{}, res.err
	}
	return res.cost, nil
}

// guard converts a stage panic into an error so errgroup can stop the
// remaining stages.
func guard(name string, run func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s panic: %v\n%s", name, r, debug.Stack())
			}
		}()
		return run(ctx)
	}
}

func (p *Pipeline) runStages(ctx context.Context) (model.CostReport, error) {
	mode := p.cfg.Mode
	samples := queue.New[model.MagSample](p.cfg.QueueCapacity)
	commands := queue.New[model.CoilCommand](p.cfg.QueueCapacity)
	reports := make(chan model.WindowReport, reportBufferSize)

	gen := sensor.New(samples, p.cfg.SamplePeriod, mode, p.diag, p.logger,
		sensor.WithBaseField(p.cfg.BaseField),
	)
	law := controller.NewLaw(mode, p.diag, p.logger,
		controller.WithGain(p.cfg.Gain),
		controller.WithLimit(p.cfg.CommandLimit),
		controller.WithHooks(p.hooks),
		controller.WithCountBelow(p.cfg.MaxSeq),
	)
	ctrl := controller.New(law, samples, commands, p.diag, p.logger)
	sink := actuator.NewSink(mode, p.diag, p.logger,
		actuator.WithSRLStepMax(p.cfg.SRLStepMax),
		actuator.WithMaxSeq(p.cfg.MaxSeq),
		actuator.WithStatWindow(p.cfg.StatWindow),
		actuator.WithHooks(p.hooks),
		actuator.WithCostSource(law),
		actuator.WithReports(reports),
		actuator.WithObserver(p.status),
		actuator.WithRunID(p.runID),
	)
	act := actuator.New(sink, commands, p.logger)

	rep := reporter.New(p.runID, mode, reports, p.transport,
		redisstream.StreamName(p.cfg.ReportStream, p.runID), p.logger,
		reporter.WithAlerter(p.alerter),
		reporter.WithSatWindowThreshold(p.cfg.SatWindowThreshold),
		reporter.WithSpan(trace.SpanFromContext(ctx)),
		reporter.WithRetry(publishRetry),
	)
	// The reporter drains after the stages stop, so it must outlive their
	// cancellation.
	reportCtx := context.WithoutCancel(ctx)
	repDone := make(chan error, 1)
	go func() { repDone <- rep.Run(reportCtx) }()

	p.logger.Info("pipeline starting",
		"sample_period", p.cfg.SamplePeriod,
		"queue_capacity", samples.Cap(),
		"max_seq", p.cfg.MaxSeq,
		"stat_window", p.cfg.StatWindow,
		"tmr", mode.TMR(),
		"srl", mode.SRL(),
	)

	recordCounters := func() {
		p.status.RecordCounters(gen.Drops(), ctrl.Drops(), law.Gaps())
	}

	g, gCtx := errgroup.WithContext(ctx)

	modeStr := mode.String()
	g.Go(func() error {
		ticker := time.NewTicker(p.cfg.DepthSampleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				metrics.PipelineQueueDepth.WithLabelValues(modeStr, "samples").Set(float64(samples.Len()))
				metrics.PipelineQueueDepth.WithLabelValues(modeStr, "commands").Set(float64(commands.Len()))
				recordCounters()
			}
		}
	})

	g.Go(func() error { return guard("sensor", gen.Run)(gCtx) })
	g.Go(func() error { return guard("controller", ctrl.Run)(gCtx) })
	g.Go(func() error { return guard("actuator", act.Run)(gCtx) })

	err := g.Wait()
	close(reports)
	if repErr := <-repDone; repErr != nil {
		p.logger.Warn("reporter stopped early", "error", repErr)
	}
	recordCounters()

	if !errors.Is(err, actuator.ErrExperimentComplete) {
		return model.CostReport{}, err
	}

	cost, _ := sink.Cost()
	p.status.SetCost(cost)
	rep.PublishCost(reportCtx, cost)
	p.logger.Info("pipeline halted",
		"processed", cost.Processed,
		"final_seq", cost.FinalSeq,
		"sample_drops", gen.Drops(),
		"command_drops", ctrl.Drops(),
		"gaps", law.Gaps(),
	)
	return cost, nil
}
