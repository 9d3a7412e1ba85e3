// Package diag writes the line-oriented diagnostic stream consumed by the
// fault-injection harness and the offline analyzer. Values are printed as
// eight hex digits of their 32-bit two's-complement representation.
package diag

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/time/rate"

	"github.com/B-Borecki/seu-injection-lab/internal/domain/model"
	"github.com/B-Borecki/seu-injection-lab/internal/metrics"
)

// SampleLines controls the per-sample lines (MAG, CTRL, ACT). Event lines
// are always written.
type SampleLines string

const (
	SampleLinesAll     SampleLines = "all"
	SampleLinesOff     SampleLines = "off"
	SampleLinesLimited SampleLines = "limited"
)

// DefaultSampleRate is the per-sample line budget (lines/s) used by
// SampleLinesLimited when no rate is given.
const DefaultSampleRate = 100

func ParseSampleLines(raw string) (SampleLines, error) {
	switch SampleLines(raw) {
	case SampleLinesAll, SampleLinesOff, SampleLinesLimited:
		return SampleLines(raw), nil
	case "":
		return SampleLinesAll, nil
	}
	return "", fmt.Errorf("unknown diag sample line policy %q", raw)
}

// UnmarshalText lets env decoders parse a policy directly.
func (p *SampleLines) UnmarshalText(text []byte) error {
	parsed, err := ParseSampleLines(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

const (
	kindBoot = "boot"
	kindMag  = "mag"
	kindDrop = "drop"
	kindCtrl = "ctrl"
	kindGap  = "gap"
	kindAct  = "act"
	kindStat = "stat"
	kindCost = "cost"
	kindEnd  = "end"
	kindSEU  = "seu"
)

// Stream serializes diagnostic lines from all stages onto one writer.
type Stream struct {
	mu      sync.Mutex
	w       io.Writer
	policy  SampleLines
	limiter *rate.Limiter
	err     error
}

// Option configures a Stream.
type Option func(*Stream)

// WithSampleLines selects the per-sample line policy. perSecond only
// applies to SampleLinesLimited.
func WithSampleLines(policy SampleLines, perSecond int) Option {
	return func(s *Stream) {
		s.policy = policy
		if policy == SampleLinesLimited {
			if perSecond <= 0 {
				perSecond = DefaultSampleRate
			}
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
		}
	}
}

func New(w io.Writer, opts ...Option) *Stream {
	s := &Stream{w: w, policy: SampleLinesAll}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Err returns the first write error, if any. Writing continues to be
// attempted after an error; the port has no retry semantics.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) allowSample(kind string) bool {
	switch s.policy {
	case SampleLinesOff:
		metrics.DiagLinesSuppressed.WithLabelValues(kind).Inc()
		return false
	case SampleLinesLimited:
		if !s.limiter.Allow() {
			metrics.DiagLinesSuppressed.WithLabelValues(kind).Inc()
			return false
		}
	}
	return true
}

func (s *Stream) line(kind string, format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, format+"\n", args...); err != nil && s.err == nil {
		s.err = err
	}
	metrics.DiagLinesWritten.WithLabelValues(kind).Inc()
}

func (s *Stream) sampleLine(kind string, format string, args ...any) {
	if !s.allowSample(kind) {
		return
	}
	s.line(kind, format, args...)
}

func hex32(v int32) uint32 { return uint32(v) }

// hex64 keeps the low 32 bits, matching the firmware's int32 deltas.
func hex64(v int64) uint32 { return uint32(v) }

func (s *Stream) Boot(runID string, mode model.ProtectMode) {
	s.line(kindBoot, "[BOOT ] run=%s mode=%s", runID, mode)
}

func (s *Stream) Mag(m model.MagSample) {
	s.sampleLine(kindMag, "[MAG  ] seq=%08X Bx=%08X By=%08X Bz=%08X",
		m.Seq, hex32(m.Bx), hex32(m.By), hex32(m.Bz))
}

func (s *Stream) DropSample(seq uint32) {
	s.line(kindDrop, "[DROP ] seq=%08X", seq)
}

func (s *Stream) DropCommand(seq uint32) {
	s.line(kindDrop, "[DROP ] cmd seq=%08X", seq)
}

func (s *Stream) CtrlInit(seq uint32) {
	s.line(kindCtrl, "[CTRL ] seq=%08X init prev", seq)
}

func (s *Stream) Ctrl(delta [3]int64, cmd model.CoilCommand) {
	s.sampleLine(kindCtrl, "[CTRL ] seq=%08X dB=(%08X,%08X,%08X) m=(%08X,%08X,%08X) sat=%08X",
		cmd.Seq,
		hex64(delta[0]), hex64(delta[1]), hex64(delta[2]),
		hex32(cmd.Mx), hex32(cmd.My), hex32(cmd.Mz),
		uint32(cmd.SatFlags))
}

func (s *Stream) Gap(last, curr uint32) {
	s.line(kindGap, "[GAP  ] last=%08X curr=%08X", last, curr)
}

func (s *Stream) Act(cmd model.CoilCommand, satCount uint32) {
	s.sampleLine(kindAct, "[ACT  ] seq=%08X m=(%08X,%08X,%08X) sat=%08X sat_cnt=%08X",
		cmd.Seq, hex32(cmd.Mx), hex32(cmd.My), hex32(cmd.Mz),
		uint32(cmd.SatFlags), satCount)
}

func (s *Stream) Stat(r model.WindowReport) {
	s.line(kindStat, "[STAT ] seq=%08X sat_win=%08X avg|m|=%08X", r.Seq, r.SatInWindow, r.AvgAmax)
}

// Cost writes the final summary. tmr_calls counts votes for seqs below
// MAX_SEQ, so with no drops it matches srl_calls in tmr_srl mode.
func (s *Stream) Cost(r model.CostReport) {
	s.line(kindCost, "[COST ] protect_mode=%08X tmr_calls=%08X srl_calls=%08X srl_clamps=%08X sat_total=%08X",
		uint32(r.Mode), uint32(r.TMRCalls), uint32(r.SRLCalls), uint32(r.SRLClamps), r.SatTotal)
}

func (s *Stream) End() {
	s.line(kindEnd, "[END]")
}

// Flip records one injected bit flip in the format the GDB harness used.
func (s *Stream) Flip(seq uint32, target string, bit uint, flips uint64) {
	s.line(kindSEU, "[GDB-SEU] seq=%d %s flip bit=%d flips=%d", seq, target, bit, flips)
}
