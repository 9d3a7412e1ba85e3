// Package controller turns magnetometer samples into saturated coil
// commands using a proportional law on the field difference.
package controller

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/B-Borecki/seu-injection-lab/internal/diag"
	"github.com/B-Borecki/seu-injection-lab/internal/domain/model"
	"github.com/B-Borecki/seu-injection-lab/internal/metrics"
	"github.com/B-Borecki/seu-injection-lab/internal/pipeline/queue"
	"github.com/B-Borecki/seu-injection-lab/internal/seu"
)

const (
	DefaultGain  = 8
	DefaultLimit = 2000
)

// Law holds the controller state. Step is not safe for concurrent use;
// TMRCalls may be read from any goroutine.
type Law struct {
	gain  int64
	limit int64
	mode  model.ProtectMode
	label string

	hooks  seu.Hooks
	diag   *diag.Stream
	logger *slog.Logger

	prev     model.MagSample
	havePrev bool
	lastSeq  uint32

	// countBelow excludes votes for seqs the actuator never applies.
	countBelow uint32

	tmrCalls atomic.Uint64
	gaps     atomic.Uint64
}

type Option func(*Law)

// WithGain overrides DefaultGain.
func WithGain(k int32) Option {
	return func(l *Law) { l.gain = int64(k) }
}

// WithLimit overrides DefaultLimit. Non-positive values are ignored.
func WithLimit(mmax int32) Option {
	return func(l *Law) {
		if mmax > 0 {
			l.limit = int64(mmax)
		}
	}
}

// WithHooks installs fault-injection hooks. A nil value keeps seu.Noop.
func WithHooks(h seu.Hooks) Option {
	return func(l *Law) {
		if h != nil {
			l.hooks = h
		}
	}
}

// WithCountBelow restricts TMRCalls to votes for seq < maxSeq, the
// commands the actuator can still apply. Zero counts every vote.
func WithCountBelow(maxSeq uint32) Option {
	return func(l *Law) { l.countBelow = maxSeq }
}

func NewLaw(mode model.ProtectMode, stream *diag.Stream, logger *slog.Logger, opts ...Option) *Law {
	l := &Law{
		gain:   DefaultGain,
		limit:  DefaultLimit,
		mode:   mode,
		label:  mode.String(),
		hooks:  seu.Noop{},
		diag:   stream,
		logger: logger.With("component", "controller"),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// TMRCalls returns the number of majority votes performed so far, limited
// by WithCountBelow.
func (l *Law) TMRCalls() uint64 { return l.tmrCalls.Load() }

// Gaps returns the number of sequence discontinuities observed.
func (l *Law) Gaps() uint64 { return l.gaps.Load() }

// Step consumes one sample. The first sample only seeds the previous
// value and yields no command.
func (l *Law) Step(s model.MagSample) (model.CoilCommand, bool) {
	if !l.havePrev {
		l.prev = s
		l.havePrev = true
		l.lastSeq = s.Seq
		l.diag.CtrlInit(s.Seq)
		return model.CoilCommand{}, false
	}

	if s.Seq != l.lastSeq+1 {
		l.gaps.Add(1)
		metrics.ControllerGapsTotal.WithLabelValues(l.label).Inc()
		l.diag.Gap(l.lastSeq, s.Seq)
		l.logger.Warn("sample sequence gap", "last_seq", l.lastSeq, "seq", s.Seq)
	}
	l.lastSeq = s.Seq

	used := s
	if l.mode.TMR() {
		c0, c1, c2 := s, s, s
		l.hooks.CurrentReplicas(&c0, &c1, &c2)
		var disagreed [3]bool
		used, disagreed = voteSample(c0, c1, c2)
		used.Seq = s.Seq
		if l.countBelow == 0 || s.Seq < l.countBelow {
			l.tmrCalls.Add(1)
		}
		metrics.ControllerTMRVotesTotal.WithLabelValues(l.label).Inc()
		for axis, d := range disagreed {
			if d {
				metrics.ControllerTMRCorrectionsTotal.WithLabelValues(l.label, metrics.AxisLabels[axis]).Inc()
			}
		}
	} else {
		l.hooks.CurrentSample(&used)
	}

	l.hooks.PrevPair(&l.prev, &used)

	cur, prev := used.Field(), l.prev.Field()
	var delta [3]int64
	var m [3]int32
	var sat model.SatFlags
	for axis := range delta {
		delta[axis] = int64(cur[axis]) - int64(prev[axis])
		v, clamped := l.saturate(-l.gain * delta[axis])
		m[axis] = v
		if clamped {
			sat |= model.SatAxes[axis]
			metrics.ControllerSaturationsTotal.WithLabelValues(l.label, metrics.AxisLabels[axis]).Inc()
		}
	}

	cmd := model.CoilCommand{Seq: s.Seq, Mx: m[0], My: m[1], Mz: m[2], SatFlags: sat}
	l.diag.Ctrl(delta, cmd)
	l.prev = used
	return cmd, true
}

func (l *Law) saturate(v int64) (int32, bool) {
	switch {
	case v > l.limit:
		return int32(l.limit), true
	case v < -l.limit:
		return int32(-l.limit), true
	default:
		return int32(v), false
	}
}

// Stage runs a Law between the sample and command queues.
type Stage struct {
	law    *Law
	in     *queue.Bounded[model.MagSample]
	out    *queue.Bounded[model.CoilCommand]
	diag   *diag.Stream
	label  string
	drops  atomic.Uint64
	logger *slog.Logger
}

func New(
	law *Law,
	in *queue.Bounded[model.MagSample],
	out *queue.Bounded[model.CoilCommand],
	stream *diag.Stream,
	logger *slog.Logger,
) *Stage {
	return &Stage{
		law:    law,
		in:     in,
		out:    out,
		diag:   stream,
		label:  law.label,
		logger: logger.With("component", "controller"),
	}
}

// Law exposes the underlying control law.
func (st *Stage) Law() *Law { return st.law }

// Drops returns the number of commands discarded on a full queue.
func (st *Stage) Drops() uint64 { return st.drops.Load() }

func (st *Stage) Run(ctx context.Context) error {
	st.logger.Info("controller started",
		"mode", st.label,
		"gain", st.law.gain,
		"limit", st.law.limit,
	)

	for {
		s, err := st.in.Recv(ctx)
		if err != nil {
			st.logger.Info("controller stopping", "tmr_calls", st.law.TMRCalls())
			return err
		}

		start := time.Now()
		cmd, ok := st.law.Step(s)
		metrics.ControllerStepLatency.WithLabelValues(st.label).Observe(time.Since(start).Seconds())
		if !ok {
			continue
		}

		metrics.ControllerCommandsTotal.WithLabelValues(st.label).Inc()
		if !st.out.TrySend(cmd) {
			st.drops.Add(1)
			metrics.ControllerDropsTotal.WithLabelValues(st.label).Inc()
			st.diag.DropCommand(cmd.Seq)
			st.logger.Debug("command dropped, queue full", "seq", cmd.Seq)
		}
	}
}
