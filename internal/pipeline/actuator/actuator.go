// Package actuator applies coil commands: rate limiting, saturation
// accounting, windowed statistics and experiment termination.
package actuator

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/B-Borecki/seu-injection-lab/internal/diag"
	"github.com/B-Borecki/seu-injection-lab/internal/domain/model"
	"github.com/B-Borecki/seu-injection-lab/internal/metrics"
	"github.com/B-Borecki/seu-injection-lab/internal/pipeline/queue"
	"github.com/B-Borecki/seu-injection-lab/internal/seu"
)

// ErrExperimentComplete is returned once a command reaches the final
// sequence number. The pipeline treats it as a clean, permanent stop.
var ErrExperimentComplete = errors.New("experiment complete")

const (
	DefaultSRLStepMax = 300
	DefaultMaxSeq     = 20000
	DefaultStatWindow = 1000
)

// CostSource reports the controller's vote count for the cost report.
type CostSource interface {
	TMRCalls() uint64
}

// Observer is notified of sink progress. Calls happen on the actuator
// goroutine.
type Observer interface {
	CommandApplied(cmd model.CoilCommand, satTotal uint32)
	WindowClosed(r model.WindowReport)
	StateChanged(s State)
}

type Option func(*Sink)

// WithSRLStepMax overrides DefaultSRLStepMax. Non-positive values are ignored.
func WithSRLStepMax(step int32) Option {
	return func(s *Sink) {
		if step > 0 {
			s.srl.maxStep = int64(step)
		}
	}
}

// WithMaxSeq overrides DefaultMaxSeq.
func WithMaxSeq(seq uint32) Option {
	return func(s *Sink) {
		if seq > 0 {
			s.maxSeq = seq
		}
	}
}

// WithStatWindow overrides DefaultStatWindow.
func WithStatWindow(n uint32) Option {
	return func(s *Sink) {
		if n > 0 {
			s.statWin = n
		}
	}
}

// WithHooks installs fault-injection hooks. A nil value keeps seu.Noop.
func WithHooks(h seu.Hooks) Option {
	return func(s *Sink) {
		if h != nil {
			s.hooks = h
		}
	}
}

// WithCostSource supplies the TMR vote count read at termination.
func WithCostSource(src CostSource) Option {
	return func(s *Sink) { s.cost = src }
}

// WithReports sends every closed window to ch without blocking.
func WithReports(ch chan<- model.WindowReport) Option {
	return func(s *Sink) { s.reports = ch }
}

func WithObserver(o Observer) Option {
	return func(s *Sink) { s.observer = o }
}

func WithRunID(id string) Option {
	return func(s *Sink) { s.runID = id }
}

// Sink holds all actuator state. Process is not safe for concurrent use;
// State and Cost may be read from any goroutine.
type Sink struct {
	mode    model.ProtectMode
	label   string
	runID   string
	maxSeq  uint32
	statWin uint32

	hooks    seu.Hooks
	cost     CostSource
	reports  chan<- model.WindowReport
	observer Observer
	diag     *diag.Stream
	logger   *slog.Logger

	srl       slewLimiter
	srlCalls  uint64
	srlClamps uint64

	satTotal    uint32
	satAxis     [3]uint32
	processed   uint64
	lastSeq     uint32
	winSum      uint64
	winCount    uint32
	winSatStart uint32

	mu    sync.Mutex
	state State
	final *model.CostReport
}

func NewSink(mode model.ProtectMode, stream *diag.Stream, logger *slog.Logger, opts ...Option) *Sink {
	s := &Sink{
		mode:    mode,
		label:   mode.String(),
		maxSeq:  DefaultMaxSeq,
		statWin: DefaultStatWindow,
		hooks:   seu.Noop{},
		srl:     slewLimiter{maxStep: DefaultSRLStepMax},
		diag:    stream,
		logger:  logger.With("component", "actuator"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Sink) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cost returns the final cost report once the sink has halted.
func (s *Sink) Cost() (model.CostReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.final == nil {
		return model.CostReport{}, false
	}
	return *s.final, true
}

func (s *Sink) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	if s.observer != nil {
		s.observer.StateChanged(st)
	}
}

// Process applies one command. It returns ErrExperimentComplete for the
// terminating command and for every call after it.
func (s *Sink) Process(cmd model.CoilCommand) error {
	if s.State() != StateRunning {
		return ErrExperimentComplete
	}
	if cmd.Seq >= s.maxSeq {
		s.terminate(cmd.Seq)
		return ErrExperimentComplete
	}

	s.hooks.Command(&cmd)

	if s.mode.SRL() {
		s.srlCalls++
		m := cmd.Moment()
		clamped := s.srl.apply(&m)
		cmd.Mx, cmd.My, cmd.Mz = m[0], m[1], m[2]
		for axis, c := range clamped {
			if c {
				s.srlClamps++
				metrics.ActuatorSRLClampsTotal.WithLabelValues(s.label, metrics.AxisLabels[axis]).Inc()
			}
		}
	} else {
		s.srl.reset()
	}

	if cmd.SatFlags != 0 {
		s.satTotal++
		metrics.ActuatorSaturatedCommandsTotal.WithLabelValues(s.label).Inc()
	}
	for axis, flag := range model.SatAxes {
		if cmd.SatFlags.Has(flag) {
			s.satAxis[axis]++
		}
	}

	s.winSum += uint64(cmd.MaxAbs())
	s.winCount++
	s.processed++
	s.lastSeq = cmd.Seq

	s.diag.Act(cmd, s.satTotal)
	metrics.ActuatorCommandsTotal.WithLabelValues(s.label).Inc()
	metrics.ActuatorLastSeq.WithLabelValues(s.label).Set(float64(cmd.Seq))
	if s.observer != nil {
		s.observer.CommandApplied(cmd, s.satTotal)
	}

	if cmd.Seq%s.statWin == 0 && cmd.Seq != 0 {
		s.closeWindow(cmd.Seq)
	}
	return nil
}

func (s *Sink) closeWindow(seq uint32) {
	r := model.WindowReport{
		RunID:       s.runID,
		Mode:        s.label,
		Seq:         seq,
		SatInWindow: s.satTotal - s.winSatStart,
		AvgAmax:     uint32(s.winSum / uint64(s.winCount)),
		Samples:     s.winCount,
	}
	s.winSatStart = s.satTotal
	s.winSum = 0
	s.winCount = 0

	s.diag.Stat(r)
	metrics.ActuatorWindowSaturations.WithLabelValues(s.label).Set(float64(r.SatInWindow))
	metrics.ActuatorWindowAvgAmax.WithLabelValues(s.label).Set(float64(r.AvgAmax))
	if s.observer != nil {
		s.observer.WindowClosed(r)
	}
	if s.reports != nil {
		select {
		case s.reports <- r:
		default:
			metrics.PipelineReportsDropped.WithLabelValues(s.label).Inc()
			s.logger.Warn("window report dropped, reporter busy", "seq", seq)
		}
	}
}

func (s *Sink) terminate(seq uint32) {
	s.setState(StateTerminating)
	s.hooks.End()

	var tmrCalls uint64
	if s.cost != nil {
		tmrCalls = s.cost.TMRCalls()
	}
	report := model.CostReport{
		RunID:     s.runID,
		Mode:      s.mode,
		TMRCalls:  tmrCalls,
		SRLCalls:  s.srlCalls,
		SRLClamps: s.srlClamps,
		SatTotal:  s.satTotal,
		SatX:      s.satAxis[0],
		SatY:      s.satAxis[1],
		SatZ:      s.satAxis[2],
		Processed: s.processed,
		FinalSeq:  s.lastSeq,
	}
	s.diag.Cost(report)
	s.diag.End()

	s.mu.Lock()
	s.final = &report
	s.mu.Unlock()
	s.setState(StateHalted)
	metrics.PipelineHalted.WithLabelValues(s.label).Set(1)

	s.logger.Info("experiment complete",
		"terminating_seq", seq,
		"processed", s.processed,
		"sat_total", s.satTotal,
		"tmr_calls", tmrCalls,
		"srl_calls", s.srlCalls,
		"srl_clamps", s.srlClamps,
	)
}

// Stage runs a Sink on the command queue.
type Stage struct {
	sink   *Sink
	in     *queue.Bounded[model.CoilCommand]
	logger *slog.Logger
}

func New(sink *Sink, in *queue.Bounded[model.CoilCommand], logger *slog.Logger) *Stage {
	return &Stage{
		sink:   sink,
		in:     in,
		logger: logger.With("component", "actuator"),
	}
}

func (st *Stage) Sink() *Sink { return st.sink }

func (st *Stage) Run(ctx context.Context) error {
	st.logger.Info("actuator started",
		"mode", st.sink.label,
		"max_seq", st.sink.maxSeq,
		"stat_window", st.sink.statWin,
		"srl", st.sink.mode.SRL(),
	)

	for {
		cmd, err := st.in.Recv(ctx)
		if err != nil {
			return err
		}
		if err := st.sink.Process(cmd); err != nil {
			return err
		}
	}
}
