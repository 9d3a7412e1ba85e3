package seu

import (
	"log/slog"
	"sync"

	"github.com/B-Borecki/seu-injection-lab/internal/domain/model"
	"github.com/B-Borecki/seu-injection-lab/internal/metrics"
)

// FlipRecorder receives one record per applied flip. *diag.Stream
// satisfies it.
type FlipRecorder interface {
	Flip(seq uint32, target string, bit uint, flips uint64)
}

// Injector applies a Plan through the Hooks interface. It is called from
// both the control and actuator goroutines.
type Injector struct {
	mu      sync.Mutex
	pending map[uint32][]Flip
	applied uint64
	rec     FlipRecorder
	logger  *slog.Logger
}

func NewInjector(plan *Plan, rec FlipRecorder, logger *slog.Logger) *Injector {
	in := &Injector{
		pending: make(map[uint32][]Flip),
		rec:     rec,
		logger:  logger.With("component", "seu_injector"),
	}
	if plan != nil {
		for _, f := range plan.Flips {
			in.pending[f.Seq] = append(in.pending[f.Seq], f)
		}
		in.logger.Info("seu plan loaded", "plan", plan.Name, "flips", len(plan.Flips))
	}
	return in
}

// take removes and returns the flips planned for seq at site.
func (in *Injector) take(seq uint32, site Site) []Flip {
	flips := in.pending[seq]
	if len(flips) == 0 {
		return nil
	}
	var hit, keep []Flip
	for _, f := range flips {
		if f.Site == site {
			hit = append(hit, f)
		} else {
			keep = append(keep, f)
		}
	}
	if len(keep) == 0 {
		delete(in.pending, seq)
	} else {
		in.pending[seq] = keep
	}
	return hit
}

func (in *Injector) record(seq uint32, f Flip) {
	in.applied++
	metrics.SEUFlipsTotal.WithLabelValues(string(f.Site)).Inc()
	if in.rec != nil {
		in.rec.Flip(seq, f.Target(), f.Bit, in.applied)
	}
	in.logger.Debug("seu flip applied", "seq", seq, "target", f.Target(), "bit", f.Bit)
}

func flipBit(v *int32, bit uint) {
	*v ^= int32(uint32(1) << bit)
}

func sampleField(s *model.MagSample, field string) *int32 {
	switch field {
	case "bx":
		return &s.Bx
	case "by":
		return &s.By
	case "bz":
		return &s.Bz
	}
	return nil
}

func commandField(c *model.CoilCommand, field string) *int32 {
	switch field {
	case "mx":
		return &c.Mx
	case "my":
		return &c.My
	case "mz":
		return &c.Mz
	}
	return nil
}

func (in *Injector) CurrentReplicas(c0, c1, c2 *model.MagSample) {
	in.mu.Lock()
	defer in.mu.Unlock()
	seq := c0.Seq
	replicas := [3]*model.MagSample{c0, c1, c2}
	for _, f := range in.take(seq, SiteReplica) {
		if p := sampleField(replicas[f.Replica], f.Field); p != nil {
			flipBit(p, f.Bit)
			in.record(seq, f)
		}
	}
}

func (in *Injector) CurrentSample(curr *model.MagSample) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, f := range in.take(curr.Seq, SiteCurrent) {
		if p := sampleField(curr, f.Field); p != nil {
			flipBit(p, f.Bit)
			in.record(curr.Seq, f)
		}
	}
}

// PrevPair matches flips by the current sample's seq: the stored reference
// is corrupted during that iteration.
func (in *Injector) PrevPair(prev, curr *model.MagSample) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, f := range in.take(curr.Seq, SitePrev) {
		if p := sampleField(prev, f.Field); p != nil {
			flipBit(p, f.Bit)
			in.record(curr.Seq, f)
		}
	}
}

func (in *Injector) Command(cmd *model.CoilCommand) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, f := range in.take(cmd.Seq, SiteCommand) {
		if p := commandField(cmd, f.Field); p != nil {
			flipBit(p, f.Bit)
			in.record(cmd.Seq, f)
		}
	}
}

func (in *Injector) End() {
	in.mu.Lock()
	defer in.mu.Unlock()
	pending := 0
	for _, flips := range in.pending {
		pending += len(flips)
	}
	in.logger.Info("seu injection finished", "applied", in.applied, "unapplied", pending)
}

// Applied returns the number of flips applied so far.
func (in *Injector) Applied() uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.applied
}

var _ Hooks = (*Injector)(nil)
