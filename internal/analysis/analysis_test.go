package analysis

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func actLine(seq uint32, mx, my, mz int32, sat uint32) string {
	return fmt.Sprintf("[ACT  ] seq=%08X m=(%08X,%08X,%08X) sat=%08X sat_cnt=%08X\n",
		seq, uint32(mx), uint32(my), uint32(mz), sat, 0)
}

func mustParse(t *testing.T, text string) *Log {
	t.Helper()
	l, err := Parse(strings.NewReader(text))
	require.NoError(t, err)
	return l
}

func TestParse_AllLineKinds(t *testing.T) {
	var b strings.Builder
	b.WriteString("[BOOT ] run=abc mode=tmr\n")
	b.WriteString("[MAG  ] seq=00000001 Bx=00004E20 By=FFFFEC78 Bz=00002EE0\n")
	b.WriteString(actLine(1, -8, 2000, 0, 2))
	b.WriteString("[GDB-SEU] seq=2 replica1.bx flip bit=7 flips=1\r\n")
	b.WriteString(actLine(2, -100, 1990, 5, 0))
	b.WriteString("[STAT ] seq=00000002 sat_win=00000001 avg|m|=000007D0\n")
	b.WriteString("[COST ] protect_mode=00000001 tmr_calls=00000002 srl_calls=00000000 srl_clamps=00000000 sat_total=00000001\n")
	b.WriteString("[END]\n")

	l := mustParse(t, b.String())

	require.Len(t, l.Acts, 2)
	first := l.Acts[1]
	assert.Equal(t, int32(-8), first.Mx)
	assert.Equal(t, int32(2000), first.My)
	assert.Equal(t, uint32(2), first.SatFlags)
	assert.Equal(t, uint32(2000), first.Amax)
	assert.Equal(t, uint32(0), first.DM)

	second := l.Acts[2]
	assert.Equal(t, uint32(92), second.DM)

	require.Len(t, l.Stats, 1)
	assert.Equal(t, StatLine{Seq: 2, SatInWindow: 1, AvgAmax: 2000}, l.Stats[0])

	require.Len(t, l.Flips, 1)
	assert.Equal(t, FlipLine{Seq: 2, Target: "replica1.bx", Bit: 7, Flips: 1}, l.Flips[0])

	require.NotNil(t, l.Cost)
	assert.Equal(t, CostLine{ProtectMode: 1, TMRCalls: 2, SatTotal: 1}, *l.Cost)
	assert.Equal(t, []uint32{1, 2}, l.Seqs())
	assert.Equal(t, uint32(2), l.MaxSeq())
}

func TestParse_CostWithoutSatTotal(t *testing.T) {
	l := mustParse(t, "[COST ] protect_mode=00000002 tmr_calls=00000000 srl_calls=0000000A srl_clamps=00000003\n")
	require.NotNil(t, l.Cost)
	assert.Equal(t, uint32(10), l.Cost.SRLCalls)
	assert.Equal(t, uint32(3), l.Cost.SRLClamps)
	assert.Zero(t, l.Cost.SatTotal)
}

func TestSaturationWindows(t *testing.T) {
	var b strings.Builder
	for seq := uint32(0); seq <= 25; seq++ {
		var sat uint32
		if seq%5 == 0 {
			sat = 1
		}
		b.WriteString(actLine(seq, 0, 0, 0, sat))
	}
	l := mustParse(t, b.String())

	got := SaturationWindows(l, 10)
	assert.Equal(t, []WindowCount{
		{End: 10, Count: 2},
		{End: 20, Count: 2},
		{End: 30, Count: 1},
	}, got)
}

func TestSpikeWindows(t *testing.T) {
	var b strings.Builder
	b.WriteString(actLine(1, 0, 0, 0, 0))
	b.WriteString(actLine(2, 600, 0, 0, 0))
	b.WriteString(actLine(3, 600, 0, 0, 0))
	b.WriteString(actLine(4, 0, 0, -501, 0))
	l := mustParse(t, b.String())

	assert.Equal(t, []WindowCount{{End: 4, Count: 2}}, SpikeWindows(l, 4, DefaultSpikeThresh))
}

func TestMismatchWindows(t *testing.T) {
	var base, run strings.Builder
	for seq := uint32(0); seq <= 8; seq++ {
		base.WriteString(actLine(seq, int32(seq), 0, 0, 0))
		mx := int32(seq)
		if seq == 0 || seq == 3 || seq == 7 {
			mx = -1
		}
		run.WriteString(actLine(seq, mx, 0, 0, 0))
	}
	run.WriteString(actLine(9, 5, 5, 5, 0))

	got := MismatchWindows(mustParse(t, base.String()), mustParse(t, run.String()), 4)
	assert.Equal(t, []WindowCount{{End: 4, Count: 1}, {End: 8, Count: 1}}, got)
}

func TestAmaxThreshold(t *testing.T) {
	var b strings.Builder
	for seq := uint32(1); seq <= 100; seq++ {
		b.WriteString(actLine(seq, int32(seq*10), 0, 0, 0))
	}
	thr, err := AmaxThreshold(mustParse(t, b.String()), DefaultPercentile)
	require.NoError(t, err)
	assert.Equal(t, uint32(950), thr)

	_, err = AmaxThreshold(&Log{Acts: map[uint32]ActSample{}}, DefaultPercentile)
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestRecoveryTimes(t *testing.T) {
	var b strings.Builder
	for seq := uint32(1); seq <= 200; seq++ {
		amp := int32(100)
		switch {
		case seq >= 50 && seq < 55:
			amp = 2000
		case seq >= 120 && seq < 190:
			amp = 2000
		}
		b.WriteString(actLine(seq, amp, 0, 0, 0))
	}
	l := mustParse(t, b.String())

	got := RecoveryTimes(l, []uint32{10, 50, 120, 195}, 500, DefaultHold, DefaultSearchCap)
	assert.Equal(t, []Recovery{
		{FlipSeq: 10, Samples: 0, Recovered: true},
		{FlipSeq: 50, Samples: 5, Recovered: true},
		{FlipSeq: 120},
		{FlipSeq: 195},
	}, got)

	sum := SummarizeRecovery(got)
	assert.Equal(t, RecoverySummary{Flips: 4, Recovered: 2, Median: 5, P90: 5, Worst: 5}, sum)
}

func TestComputeCostAndCSV(t *testing.T) {
	var b strings.Builder
	for seq := uint32(0); seq <= 100; seq++ {
		b.WriteString(actLine(seq, 0, 0, 0, 0))
	}
	b.WriteString("[GDB-SEU] seq=10 cmd.mx flip bit=3 flips=1\n")
	b.WriteString("[GDB-SEU] seq=20 cmd.my flip bit=4 flips=2\n")
	b.WriteString("[COST ] protect_mode=00000003 tmr_calls=00000064 srl_calls=00000064 srl_clamps=00000004 sat_total=00000000\n")

	row, err := ComputeCost("tmr_srl", mustParse(t, b.String()))
	require.NoError(t, err)
	assert.Equal(t, uint32(100), row.Samples)
	assert.Equal(t, 2, row.SEUs)
	assert.InDelta(t, 1.0, row.TMRRate, 1e-9)
	assert.InDelta(t, 0.04, row.SRLClampsPerCall, 1e-9)
	assert.InDelta(t, 2.0, row.SRLClampsPerSEU, 1e-9)

	var out bytes.Buffer
	require.NoError(t, WriteCostCSV(&out, []CostRow{row}))
	assert.Equal(t,
		"name,protect_mode,N_samples,N_seu,tmr_calls,srl_calls,srl_clamps,tmr_rate,srl_clamps_per_call,srl_clamps_per_seu\n"+
			"tmr_srl,3,100,2,100,100,4,1.000000,0.040000,2.000000\n",
		out.String())

	_, err = ComputeCost("missing", &Log{Acts: map[uint32]ActSample{}})
	assert.Error(t, err)
}

func TestWriteRecoveryCSV(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, WriteRecoveryCSV(&out, []Recovery{
		{FlipSeq: 5, Samples: 3, Recovered: true},
		{FlipSeq: 9},
	}, DefaultSampleMillis))
	assert.Equal(t, "flip_seq,recovery_samples,recovery_ms\n5,3,30\n9,,\n", out.String())
}
