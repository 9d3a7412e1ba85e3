package controller

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/B-Borecki/seu-injection-lab/internal/diag"
	"github.com/B-Borecki/seu-injection-lab/internal/domain/model"
	"github.com/B-Borecki/seu-injection-lab/internal/pipeline/queue"
	"github.com/B-Borecki/seu-injection-lab/internal/pipeline/sensor"
	"github.com/B-Borecki/seu-injection-lab/internal/seu"
	seumocks "github.com/B-Borecki/seu-injection-lab/internal/seu/mocks"
)

func newLaw(mode model.ProtectMode, opts ...Option) *Law {
	return NewLaw(mode, diag.New(io.Discard), slog.Default(), opts...)
}

func TestVote_MasksSingleReplica(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 1000; i++ {
		v := int32(rng.Uint32())
		bad := int32(rng.Uint32())
		assert.Equal(t, v, Vote(bad, v, v))
		assert.Equal(t, v, Vote(v, bad, v))
		assert.Equal(t, v, Vote(v, v, bad))
	}
}

func TestLaw_FirstSampleSeedsPrev(t *testing.T) {
	var buf bytes.Buffer
	l := NewLaw(model.ProtectBaseline, diag.New(&buf), slog.Default())

	_, ok := l.Step(sensor.Sample(0, sensor.DefaultBaseField))
	assert.False(t, ok)
	assert.Equal(t, "[CTRL ] seq=00000000 init prev\n", buf.String())
}

func TestLaw_BaseFieldScenario(t *testing.T) {
	l := newLaw(model.ProtectBaseline)

	_, ok := l.Step(sensor.Sample(0, sensor.DefaultBaseField))
	require.False(t, ok)

	cmd, ok := l.Step(sensor.Sample(1, sensor.DefaultBaseField))
	require.True(t, ok)
	assert.Equal(t, model.CoilCommand{Seq: 1, Mx: -8, My: 0, Mz: 0}, cmd)

	for seq := uint32(2); seq < 256; seq++ {
		_, ok = l.Step(sensor.Sample(seq, sensor.DefaultBaseField))
		require.True(t, ok)
	}

	// x wraps from +127 back to -128.
	cmd, ok = l.Step(sensor.Sample(256, sensor.DefaultBaseField))
	require.True(t, ok)
	assert.Equal(t, model.CoilCommand{Seq: 256, Mx: 2000, My: -8, Mz: -8, SatFlags: model.SatX}, cmd)
}

func TestLaw_SaturationBound(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	const limit = 2000

	extremes := []int32{math.MinInt32, math.MaxInt32, 0, -1, 1, 250, -250, 251}
	randField := func() int32 {
		if rng.IntN(4) == 0 {
			return extremes[rng.IntN(len(extremes))]
		}
		return int32(rng.Uint32())
	}

	l := newLaw(model.ProtectBaseline)
	prev := model.MagSample{Seq: 0, Bx: randField(), By: randField(), Bz: randField()}
	l.Step(prev)

	for seq := uint32(1); seq < 5000; seq++ {
		s := model.MagSample{Seq: seq, Bx: randField(), By: randField(), Bz: randField()}
		cmd, ok := l.Step(s)
		require.True(t, ok)

		cur, old, m := s.Field(), prev.Field(), cmd.Moment()
		for axis := 0; axis < 3; axis++ {
			raw := -8 * (int64(cur[axis]) - int64(old[axis]))
			assert.LessOrEqual(t, model.AbsInt32(m[axis]), uint32(limit))
			exceeded := raw > limit || raw < -limit
			assert.Equal(t, exceeded, cmd.SatFlags.Has(model.SatAxes[axis]), "seq=%d axis=%d", seq, axis)
			if !exceeded {
				assert.Equal(t, raw, int64(m[axis]))
			}
		}
		prev = s
	}
}

func TestLaw_CustomGainAndLimit(t *testing.T) {
	l := newLaw(model.ProtectBaseline, WithGain(2), WithLimit(10))
	l.Step(model.MagSample{Seq: 0})

	cmd, ok := l.Step(model.MagSample{Seq: 1, Bx: 3, By: -6, Bz: 5})
	require.True(t, ok)
	assert.Equal(t, int32(-6), cmd.Mx)
	assert.Equal(t, int32(10), cmd.My)
	assert.Equal(t, int32(-10), cmd.Mz, "a command equal to the limit is not clamped")
	assert.Equal(t, model.SatY, cmd.SatFlags)
}

func TestLaw_GapDetection(t *testing.T) {
	var buf bytes.Buffer
	l := NewLaw(model.ProtectBaseline, diag.New(&buf), slog.Default())

	l.Step(model.MagSample{Seq: 10})
	l.Step(model.MagSample{Seq: 11})
	_, ok := l.Step(model.MagSample{Seq: 14})
	assert.True(t, ok, "gaps do not affect the computation")
	l.Step(model.MagSample{Seq: 15})

	assert.Equal(t, uint64(1), l.Gaps())
	assert.Contains(t, buf.String(), "[GAP  ] last=0000000B curr=0000000E\n")
	assert.Equal(t, 1, strings.Count(buf.String(), "[GAP  ]"))
}

type replicaCorrupter struct {
	seu.Noop
	rng *rand.Rand
}

func (c *replicaCorrupter) CurrentReplicas(c0, c1, c2 *model.MagSample) {
	target := [3]*model.MagSample{c0, c1, c2}[c.rng.IntN(3)]
	target.Bx ^= int32(c.rng.Uint32())
	target.By ^= int32(c.rng.Uint32())
	target.Bz ^= int32(c.rng.Uint32())
}

func TestLaw_TMRMasksSingleReplicaCorruption(t *testing.T) {
	clean := newLaw(model.ProtectTmrOnly)
	faulty := newLaw(model.ProtectTmrOnly, WithHooks(&replicaCorrupter{rng: rand.New(rand.NewPCG(3, 4))}))

	for seq := uint32(0); seq < 3000; seq++ {
		s := sensor.Sample(seq, sensor.DefaultBaseField)
		want, wantOK := clean.Step(s)
		got, gotOK := faulty.Step(s)
		require.Equal(t, wantOK, gotOK)
		require.Equal(t, want, got, "seq=%d", seq)
	}
	assert.Equal(t, uint64(2999), faulty.TMRCalls())
}

func TestLaw_InjectorThroughTMR(t *testing.T) {
	plan := &seu.Plan{Flips: []seu.Flip{
		{Seq: 5, Site: seu.SiteReplica, Replica: 1, Field: "bx", Bit: 30},
	}}
	in := seu.NewInjector(plan, nil, slog.Default())

	protected := newLaw(model.ProtectTmrOnly, WithHooks(in))
	reference := newLaw(model.ProtectTmrOnly)
	for seq := uint32(0); seq < 10; seq++ {
		s := sensor.Sample(seq, sensor.DefaultBaseField)
		got, _ := protected.Step(s)
		want, _ := reference.Step(s)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, uint64(1), in.Applied())
}

func TestLaw_CurrentFlipWithoutTMRPropagates(t *testing.T) {
	plan := &seu.Plan{Flips: []seu.Flip{
		{Seq: 5, Site: seu.SiteCurrent, Field: "by", Bit: 12},
	}}
	in := seu.NewInjector(plan, nil, slog.Default())
	l := newLaw(model.ProtectBaseline, WithHooks(in))

	var cmds []model.CoilCommand
	for seq := uint32(0); seq < 7; seq++ {
		cmd, ok := l.Step(sensor.Sample(seq, sensor.DefaultBaseField))
		if ok {
			cmds = append(cmds, cmd)
		}
	}
	// seq 5: working copy By jumps by 4096, seq 6 sees it as prev.
	assert.Equal(t, model.SatY, cmds[4].SatFlags&model.SatY)
	assert.Equal(t, int32(-2000), cmds[4].My)
	assert.Equal(t, int32(2000), cmds[5].My)
	assert.Equal(t, uint64(0), l.TMRCalls())
}

func TestLaw_PrevFlipAffectsOneCommand(t *testing.T) {
	plan := &seu.Plan{Flips: []seu.Flip{
		{Seq: 3, Site: seu.SitePrev, Field: "bz", Bit: 4},
	}}
	faulty := newLaw(model.ProtectBaseline, WithHooks(seu.NewInjector(plan, nil, slog.Default())))
	clean := newLaw(model.ProtectBaseline)

	for seq := uint32(0); seq < 6; seq++ {
		s := sensor.Sample(seq, sensor.DefaultBaseField)
		got, _ := faulty.Step(s)
		want, _ := clean.Step(s)
		if seq == 3 {
			assert.NotEqual(t, want, got)
			continue
		}
		assert.Equal(t, want, got, "seq=%d", seq)
	}
}

// referenceCommand computes -K*(curr-prev) clamped to the limit, without
// going through Law.
func referenceCommand(prev, curr model.MagSample) model.CoilCommand {
	cmd := model.CoilCommand{Seq: curr.Seq}
	d := [3]int64{
		int64(curr.Bx) - int64(prev.Bx),
		int64(curr.By) - int64(prev.By),
		int64(curr.Bz) - int64(prev.Bz),
	}
	var m [3]int32
	for axis := range d {
		raw := -int64(DefaultGain) * d[axis]
		switch {
		case raw > DefaultLimit:
			raw = DefaultLimit
			cmd.SatFlags |= model.SatAxes[axis]
		case raw < -DefaultLimit:
			raw = -DefaultLimit
			cmd.SatFlags |= model.SatAxes[axis]
		}
		m[axis] = int32(raw)
	}
	cmd.Mx, cmd.My, cmd.Mz = m[0], m[1], m[2]
	return cmd
}

func TestLaw_NoInjectionMatchesReference(t *testing.T) {
	for _, mode := range model.AllProtectModes {
		t.Run(mode.String(), func(t *testing.T) {
			noop := newLaw(mode, WithHooks(seu.Noop{}))
			emptyPlan := newLaw(mode, WithHooks(seu.NewInjector(&seu.Plan{}, nil, slog.Default())))

			_, ok := noop.Step(sensor.Sample(0, sensor.DefaultBaseField))
			require.False(t, ok)
			_, ok = emptyPlan.Step(sensor.Sample(0, sensor.DefaultBaseField))
			require.False(t, ok)

			for seq := uint32(1); seq < 1200; seq++ {
				prev := sensor.Sample(seq-1, sensor.DefaultBaseField)
				curr := sensor.Sample(seq, sensor.DefaultBaseField)
				want := referenceCommand(prev, curr)

				a, ok := noop.Step(curr)
				require.True(t, ok)
				b, ok := emptyPlan.Step(curr)
				require.True(t, ok)
				require.Equal(t, want, a, "seq=%d", seq)
				require.Equal(t, want, b, "seq=%d", seq)
			}
		})
	}
}

func TestLaw_CountBelowExcludesUnappliedVotes(t *testing.T) {
	bounded := newLaw(model.ProtectTmrOnly, WithCountBelow(5))
	unbounded := newLaw(model.ProtectTmrOnly)
	for seq := uint32(0); seq <= 8; seq++ {
		s := sensor.Sample(seq, sensor.DefaultBaseField)
		a, _ := bounded.Step(s)
		b, _ := unbounded.Step(s)
		require.Equal(t, b, a, "counting never changes the command")
	}
	assert.Equal(t, uint64(4), bounded.TMRCalls(), "votes for seqs 1..4")
	assert.Equal(t, uint64(8), unbounded.TMRCalls())
}

func TestStage_Run(t *testing.T) {
	in := queue.New[model.MagSample](queue.DefaultCapacity)
	out := queue.New[model.CoilCommand](2)
	st := New(newLaw(model.ProtectBaseline), in, out, diag.New(io.Discard), slog.Default())

	for seq := uint32(0); seq < 5; seq++ {
		require.True(t, in.TrySend(sensor.Sample(seq, sensor.DefaultBaseField)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- st.Run(ctx) }()

	require.Eventually(t, func() bool { return in.Len() == 0 && st.Drops() == 2 }, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	first, err := out.Recv(context.Background())
	require.NoError(t, err)
	second, err := out.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(1), first.Seq)
	assert.Equal(t, uint32(2), second.Seq)
}

func TestLaw_PrevPairReceivesVotedSample(t *testing.T) {
	ctrl := gomock.NewController(t)
	hooks := seumocks.NewMockHooks(ctrl)

	seed := model.MagSample{Seq: 0, Bx: 100, By: -50, Bz: 7}
	clean := model.MagSample{Seq: 1, Bx: 110, By: -40, Bz: 9}

	hooks.EXPECT().CurrentReplicas(gomock.Any(), gomock.Any(), gomock.Any()).
		Do(func(c0, c1, c2 *model.MagSample) {
			assert.Equal(t, clean, *c0)
			c1.Bx ^= 1 << 20
			c2.Bz ^= 1 << 3
		}).Times(1)
	hooks.EXPECT().CurrentSample(gomock.Any()).Times(0)
	hooks.EXPECT().PrevPair(gomock.Any(), gomock.Any()).
		Do(func(prev, curr *model.MagSample) {
			assert.Equal(t, seed, *prev)
			assert.Equal(t, clean, *curr, "the vote masks a corrupted replica per axis")
		}).Times(1)

	l := newLaw(model.ProtectTmrOnly, WithHooks(hooks))
	_, ok := l.Step(seed)
	require.False(t, ok)

	cmd, ok := l.Step(clean)
	require.True(t, ok)
	assert.Equal(t, int32(-80), cmd.Mx)
	assert.Equal(t, int32(-80), cmd.My)
	assert.Equal(t, int32(-16), cmd.Mz)
	assert.Equal(t, uint64(1), l.TMRCalls())
}

func TestLaw_PrevPairSeesSingleCopyWithoutTMR(t *testing.T) {
	ctrl := gomock.NewController(t)
	hooks := seumocks.NewMockHooks(ctrl)

	seed := model.MagSample{Seq: 0, Bx: 1}
	next := model.MagSample{Seq: 1, Bx: 2}

	hooks.EXPECT().CurrentReplicas(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	gomock.InOrder(
		hooks.EXPECT().CurrentSample(gomock.Any()).
			Do(func(curr *model.MagSample) { curr.By = 5 }),
		hooks.EXPECT().PrevPair(gomock.Any(), gomock.Any()).
			Do(func(_, curr *model.MagSample) {
				assert.Equal(t, model.MagSample{Seq: 1, Bx: 2, By: 5}, *curr)
			}),
	)

	l := newLaw(model.ProtectSrlOnly, WithHooks(hooks))
	l.Step(seed)
	cmd, ok := l.Step(next)
	require.True(t, ok)
	assert.Equal(t, int32(-8), cmd.Mx)
	assert.Equal(t, int32(-40), cmd.My)
	assert.Equal(t, uint64(0), l.TMRCalls())
}
