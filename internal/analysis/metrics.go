package analysis

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	DefaultWindow       = 1000
	DefaultSpikeThresh  = 500
	DefaultPercentile   = 95.0
	DefaultHold         = 20
	DefaultSearchCap    = 50
	DefaultSampleMillis = 10
)

// ErrNoSamples is returned when a log holds no ACT lines.
var ErrNoSamples = errors.New("no ACT samples in log")

// WindowCount is the number of matching samples in the window ending at End.
type WindowCount struct {
	End   uint32
	Count int
}

func windowEnd(seq, win uint32) uint32 {
	return uint32((uint64(seq) + uint64(win) - 1) / uint64(win) * uint64(win))
}

// CountWindows bins samples into windows of size win and counts those
// matching pred. Seq 0 is skipped.
func CountWindows(l *Log, win uint32, pred func(ActSample) bool) []WindowCount {
	bins := map[uint32]int{}
	for seq, s := range l.Acts {
		if seq == 0 {
			continue
		}
		end := windowEnd(seq, win)
		n := bins[end]
		if pred(s) {
			n++
		}
		bins[end] = n
	}
	return sortedBins(bins)
}

func sortedBins(bins map[uint32]int) []WindowCount {
	out := make([]WindowCount, 0, len(bins))
	for end, n := range bins {
		out = append(out, WindowCount{End: end, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].End < out[j].End })
	return out
}

// SaturationWindows counts saturated commands per window.
func SaturationWindows(l *Log, win uint32) []WindowCount {
	return CountWindows(l, win, func(s ActSample) bool { return s.SatFlags != 0 })
}

// SpikeWindows counts commands whose step exceeds thresh per window.
func SpikeWindows(l *Log, win, thresh uint32) []WindowCount {
	return CountWindows(l, win, func(s ActSample) bool { return s.DM > thresh })
}

// MismatchWindows counts, per window, commands of run that differ from the
// baseline command with the same seq. Seqs missing from the baseline are
// skipped.
func MismatchWindows(baseline, run *Log, win uint32) []WindowCount {
	bins := map[uint32]int{}
	for seq, a := range run.Acts {
		b, ok := baseline.Acts[seq]
		if seq == 0 || !ok {
			continue
		}
		end := windowEnd(seq, win)
		n := bins[end]
		if a.Mx != b.Mx || a.My != b.My || a.Mz != b.Mz {
			n++
		}
		bins[end] = n
	}
	return sortedBins(bins)
}

// AmaxThreshold returns the given percentile (0-100) of baseline amax.
func AmaxThreshold(baseline *Log, percentile float64) (uint32, error) {
	if len(baseline.Acts) == 0 {
		return 0, ErrNoSamples
	}
	h := hdrhistogram.New(1, math.MaxUint32, 3)
	for _, s := range baseline.Acts {
		if err := h.RecordValue(int64(s.Amax)); err != nil {
			return 0, fmt.Errorf("record amax %d: %w", s.Amax, err)
		}
	}
	return uint32(h.ValueAtQuantile(percentile)), nil
}

// Recovery is the outcome for one flip: Samples is the distance from the
// flip to the first run of hold in-threshold samples.
type Recovery struct {
	FlipSeq   uint32
	Samples   int
	Recovered bool
}

// RecoveryTimes searches, for every flip, the first start in
// [flip, flip+searchCap) from which hold consecutive samples all exist and
// stay at or below threshold.
func RecoveryTimes(run *Log, flipSeqs []uint32, threshold uint32, hold, searchCap int) []Recovery {
	okFrom := func(start uint64) bool {
		for k := uint64(0); k < uint64(hold); k++ {
			s, found := run.Acts[uint32(start+k)]
			if !found || s.Amax > threshold {
				return false
			}
		}
		return true
	}

	out := make([]Recovery, 0, len(flipSeqs))
	for _, f := range flipSeqs {
		r := Recovery{FlipSeq: f}
		for d := 0; d < searchCap; d++ {
			if okFrom(uint64(f) + uint64(d)) {
				r.Samples = d
				r.Recovered = true
				break
			}
		}
		out = append(out, r)
	}
	return out
}

// RecoverySummary aggregates the recovered flips.
type RecoverySummary struct {
	Flips     int
	Recovered int
	Median    int
	P90       int
	Worst     int
}

func SummarizeRecovery(rs []Recovery) RecoverySummary {
	sum := RecoverySummary{Flips: len(rs)}
	var good []int
	for _, r := range rs {
		if r.Recovered {
			good = append(good, r.Samples)
		}
	}
	sum.Recovered = len(good)
	if len(good) == 0 {
		return sum
	}
	sort.Ints(good)
	sum.Median = good[len(good)/2]
	sum.P90 = good[int(math.Ceil(0.9*float64(len(good))))-1]
	sum.Worst = good[len(good)-1]
	return sum
}

// CostRow is one line of the protection cost table.
type CostRow struct {
	Name             string
	ProtectMode      uint32
	Samples          uint32
	SEUs             int
	TMRCalls         uint32
	SRLCalls         uint32
	SRLClamps        uint32
	TMRRate          float64
	SRLClampsPerCall float64
	SRLClampsPerSEU  float64
}

// ComputeCost derives the cost rates for a run. Logs without a COST line
// yield an error.
func ComputeCost(name string, l *Log) (CostRow, error) {
	if l.Cost == nil {
		return CostRow{}, fmt.Errorf("%s: no COST line", name)
	}
	c := l.Cost
	row := CostRow{
		Name:        name,
		ProtectMode: c.ProtectMode,
		Samples:     l.MaxSeq(),
		SEUs:        len(l.Flips),
		TMRCalls:    c.TMRCalls,
		SRLCalls:    c.SRLCalls,
		SRLClamps:   c.SRLClamps,
	}
	if row.Samples > 0 {
		row.TMRRate = float64(c.TMRCalls) / float64(row.Samples)
	}
	if c.SRLCalls > 0 {
		row.SRLClampsPerCall = float64(c.SRLClamps) / float64(c.SRLCalls)
	}
	if row.SEUs > 0 {
		row.SRLClampsPerSEU = float64(c.SRLClamps) / float64(row.SEUs)
	}
	return row, nil
}

var costHeader = []string{
	"name", "protect_mode", "N_samples", "N_seu", "tmr_calls", "srl_calls",
	"srl_clamps", "tmr_rate", "srl_clamps_per_call", "srl_clamps_per_seu",
}

func ratio(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }

func u32s(v uint32) string { return strconv.FormatUint(uint64(v), 10) }

// WriteCostCSV writes the cost table with a header row.
func WriteCostCSV(w io.Writer, rows []CostRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(costHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Name, u32s(r.ProtectMode), u32s(r.Samples), strconv.Itoa(r.SEUs),
			u32s(r.TMRCalls), u32s(r.SRLCalls), u32s(r.SRLClamps),
			ratio(r.TMRRate), ratio(r.SRLClampsPerCall), ratio(r.SRLClampsPerSEU),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteWindowsCSV writes "end,count" rows.
func WriteWindowsCSV(w io.Writer, column string, rows []WindowCount) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"window_end", column}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{u32s(r.End), strconv.Itoa(r.Count)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRecoveryCSV writes one row per flip; unrecovered flips have an
// empty recovery column.
func WriteRecoveryCSV(w io.Writer, rs []Recovery, sampleMillis int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"flip_seq", "recovery_samples", "recovery_ms"}); err != nil {
		return err
	}
	for _, r := range rs {
		rec := []string{u32s(r.FlipSeq), "", ""}
		if r.Recovered {
			rec[1] = strconv.Itoa(r.Samples)
			rec[2] = strconv.Itoa(r.Samples * sampleMillis)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
