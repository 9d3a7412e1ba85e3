// Package sensor implements the free-running synthetic magnetometer.
package sensor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/B-Borecki/seu-injection-lab/internal/diag"
	"github.com/B-Borecki/seu-injection-lab/internal/domain/model"
	"github.com/B-Borecki/seu-injection-lab/internal/metrics"
	"github.com/B-Borecki/seu-injection-lab/internal/pipeline/queue"
)

const defaultPeriod = 10 * time.Millisecond

// DefaultBaseField is the unperturbed field the perturbation is added to.
var DefaultBaseField = [3]int32{20000, -5000, 12000}

// Sample returns the deterministic reading for seq. It depends on nothing
// but its arguments so that every run reproduces the same sequence.
func Sample(seq uint32, base [3]int32) model.MagSample {
	dx := int32(seq&0xFF) - 128
	dy := int32((seq>>1)&0xFF) - 128
	dz := int32((seq>>2)&0xFF) - 128
	return model.MagSample{
		Seq: seq,
		Bx:  base[0] + dx,
		By:  base[1] + dy,
		Bz:  base[2] + dz,
	}
}

// Generator publishes one sample per period. It never blocks on a full
// queue: the sample is dropped and the sequence still advances.
type Generator struct {
	out    *queue.Bounded[model.MagSample]
	period time.Duration
	base   [3]int32
	mode   string
	seq    uint32
	drops  atomic.Uint64
	diag   *diag.Stream
	logger *slog.Logger
}

// Option configures optional Generator behaviour.
type Option func(*Generator)

// WithBaseField overrides DefaultBaseField.
func WithBaseField(base [3]int32) Option {
	return func(g *Generator) { g.base = base }
}

func New(
	out *queue.Bounded[model.MagSample],
	period time.Duration,
	mode model.ProtectMode,
	stream *diag.Stream,
	logger *slog.Logger,
	opts ...Option,
) *Generator {
	if period <= 0 {
		period = defaultPeriod
	}
	g := &Generator{
		out:    out,
		period: period,
		base:   DefaultBaseField,
		mode:   mode.String(),
		diag:   stream,
		logger: logger.With("component", "sensor"),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Tick produces and publishes the next sample, reporting whether it was
// enqueued.
func (g *Generator) Tick() (model.MagSample, bool) {
	s := Sample(g.seq, g.base)
	g.seq++

	sent := g.out.TrySend(s)
	metrics.SensorSamplesTotal.WithLabelValues(g.mode).Inc()
	if !sent {
		g.drops.Add(1)
		metrics.SensorDropsTotal.WithLabelValues(g.mode).Inc()
		g.diag.DropSample(s.Seq)
		g.logger.Debug("sample dropped, queue full", "seq", s.Seq)
	}
	g.diag.Mag(s)
	return s, sent
}

// Drops returns the number of samples discarded on a full queue.
func (g *Generator) Drops() uint64 { return g.drops.Load() }

// NextSeq returns the sequence number the next Tick will use.
func (g *Generator) NextSeq() uint32 { return g.seq }

func (g *Generator) Run(ctx context.Context) error {
	g.logger.Info("sensor started", "period", g.period, "base_field", g.base)

	ticker := time.NewTicker(g.period)
	defer ticker.Stop()

	for {
		g.Tick()
		select {
		case <-ctx.Done():
			g.logger.Info("sensor stopping", "next_seq", g.seq)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
