// Package analysis reads diagnostic logs produced by experiment runs and
// derives the comparison metrics used to judge each protection mode.
package analysis

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
)

var (
	reHex8 = regexp.MustCompile(`[0-9A-Fa-f]{8}`)
	reAct  = regexp.MustCompile(`^\[ACT\s+\]`)
	reStat = regexp.MustCompile(`^\[STAT\s+\]\s+seq=([0-9A-Fa-f]{8})\s+sat_win=([0-9A-Fa-f]{8})\s+avg\|m\|=([0-9A-Fa-f]{8})`)
	reCost = regexp.MustCompile(`^\[COST\s+\]\s+protect_mode=([0-9A-Fa-f]{8})\s+tmr_calls=([0-9A-Fa-f]{8})\s+srl_calls=([0-9A-Fa-f]{8})\s+srl_clamps=([0-9A-Fa-f]{8})`)
	reSatT = regexp.MustCompile(`sat_total=([0-9A-Fa-f]{8})`)
	reFlip = regexp.MustCompile(`^\[GDB-SEU\]\s+seq=(\d+)\s+(\S+)\s+flip\s+bit=(\d+)\s+flips=(\d+)`)
)

// ActSample is one applied command as recorded by an ACT line.
type ActSample struct {
	Seq      uint32
	Mx       int32
	My       int32
	Mz       int32
	SatFlags uint32
	// Amax is max(|mx|,|my|,|mz|).
	Amax uint32
	// DM is the largest per-axis step from the previous ACT line.
	DM uint32
}

type StatLine struct {
	Seq         uint32
	SatInWindow uint32
	AvgAmax     uint32
}

type CostLine struct {
	ProtectMode uint32
	TMRCalls    uint32
	SRLCalls    uint32
	SRLClamps   uint32
	// SatTotal is zero for logs that predate the field.
	SatTotal uint32
}

type FlipLine struct {
	Seq    uint32
	Target string
	Bit    uint
	Flips  uint64
}

// Log is everything extracted from one diagnostic log.
type Log struct {
	Acts  map[uint32]ActSample
	Stats []StatLine
	Flips []FlipLine
	Cost  *CostLine
}

// Seqs returns the ACT sequence numbers in ascending order.
func (l *Log) Seqs() []uint32 {
	seqs := make([]uint32, 0, len(l.Acts))
	for s := range l.Acts {
		seqs = append(seqs, s)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs
}

// MaxSeq is the sample count proxy used for cost rates.
func (l *Log) MaxSeq() uint32 {
	var m uint32
	for s := range l.Acts {
		if s > m {
			m = s
		}
	}
	return m
}

// FlipSeqs returns the sequence numbers of all recorded flips.
func (l *Log) FlipSeqs() []uint32 {
	out := make([]uint32, len(l.Flips))
	for i, f := range l.Flips {
		out[i] = f.Seq
	}
	return out
}

func hex32(s string) uint32 {
	v, _ := strconv.ParseUint(s, 16, 32)
	return uint32(v)
}

func absDiff(a, b int32) uint32 {
	d := int64(a) - int64(b)
	if d < 0 {
		d = -d
	}
	return uint32(d)
}

func abs32(v int32) uint32 {
	if v < 0 {
		return uint32(-int64(v))
	}
	return uint32(v)
}

// Parse reads a diagnostic log. Unknown lines are ignored; both "\n" and
// "\r\n" line endings are accepted.
func Parse(r io.Reader) (*Log, error) {
	l := &Log{Acts: make(map[uint32]ActSample)}
	var prev *ActSample

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}

		switch {
		case reAct.MatchString(line):
			nums := reHex8.FindAllString(line, -1)
			if len(nums) < 5 {
				continue
			}
			s := ActSample{
				Seq:      hex32(nums[0]),
				Mx:       int32(hex32(nums[1])),
				My:       int32(hex32(nums[2])),
				Mz:       int32(hex32(nums[3])),
				SatFlags: hex32(nums[4]),
			}
			s.Amax = max(abs32(s.Mx), abs32(s.My), abs32(s.Mz))
			if prev != nil {
				s.DM = max(absDiff(s.Mx, prev.Mx), absDiff(s.My, prev.My), absDiff(s.Mz, prev.Mz))
			}
			l.Acts[s.Seq] = s
			prev = &s

		case reStat.MatchString(line):
			m := reStat.FindStringSubmatch(line)
			l.Stats = append(l.Stats, StatLine{Seq: hex32(m[1]), SatInWindow: hex32(m[2]), AvgAmax: hex32(m[3])})

		case reCost.MatchString(line):
			m := reCost.FindStringSubmatch(line)
			l.Cost = &CostLine{
				ProtectMode: hex32(m[1]),
				TMRCalls:    hex32(m[2]),
				SRLCalls:    hex32(m[3]),
				SRLClamps:   hex32(m[4]),
			}
			if st := reSatT.FindStringSubmatch(line); st != nil {
				l.Cost.SatTotal = hex32(st[1])
			}

		case reFlip.MatchString(line):
			m := reFlip.FindStringSubmatch(line)
			seq, err := strconv.ParseUint(m[1], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("parse flip seq %q: %w", m[1], err)
			}
			bit, _ := strconv.ParseUint(m[3], 10, 8)
			flips, _ := strconv.ParseUint(m[4], 10, 64)
			l.Flips = append(l.Flips, FlipLine{Seq: uint32(seq), Target: m[2], Bit: uint(bit), Flips: flips})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read diag log: %w", err)
	}
	return l, nil
}

// ParseFile opens and parses path.
func ParseFile(path string) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open diag log: %w", err)
	}
	defer f.Close()
	l, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}
