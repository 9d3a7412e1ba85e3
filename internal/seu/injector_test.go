package seu

import (
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/B-Borecki/seu-injection-lab/internal/domain/model"
)

type recordedFlip struct {
	seq    uint32
	target string
	bit    uint
	flips  uint64
}

type flipLog struct{ flips []recordedFlip }

func (l *flipLog) Flip(seq uint32, target string, bit uint, flips uint64) {
	l.flips = append(l.flips, recordedFlip{seq, target, bit, flips})
}

func newTestInjector(t *testing.T, flips ...Flip) (*Injector, *flipLog) {
	t.Helper()
	plan := &Plan{Name: "test", Flips: flips}
	require.NoError(t, plan.Validate())
	rec := &flipLog{}
	return NewInjector(plan, rec, slog.Default()), rec
}

func TestInjector_CommandFlip(t *testing.T) {
	in, rec := newTestInjector(t, Flip{Seq: 5, Site: SiteCommand, Field: "my", Bit: 31})

	other := model.CoilCommand{Seq: 4, My: 10}
	in.Command(&other)
	assert.Equal(t, int32(10), other.My, "other seqs untouched")

	cmd := model.CoilCommand{Seq: 5, My: 10}
	in.Command(&cmd)
	assert.Equal(t, int32(10)^math.MinInt32, cmd.My)
	assert.Equal(t, uint32(5), cmd.Seq, "seq is never a target")

	again := model.CoilCommand{Seq: 5, My: 10}
	in.Command(&again)
	assert.Equal(t, int32(10), again.My, "a flip applies once")

	require.Len(t, rec.flips, 1)
	assert.Equal(t, recordedFlip{5, "cmd.my", 31, 1}, rec.flips[0])
	assert.Equal(t, uint64(1), in.Applied())
}

func TestInjector_ReplicaAndPrevSites(t *testing.T) {
	in, rec := newTestInjector(t,
		Flip{Seq: 9, Site: SiteReplica, Replica: 1, Field: "bx", Bit: 0},
		Flip{Seq: 9, Site: SitePrev, Field: "bz", Bit: 4},
		Flip{Seq: 9, Site: SiteCurrent, Field: "by", Bit: 2},
	)

	c0 := model.MagSample{Seq: 9, Bx: 100}
	c1, c2 := c0, c0
	in.CurrentReplicas(&c0, &c1, &c2)
	assert.Equal(t, int32(100), c0.Bx)
	assert.Equal(t, int32(101), c1.Bx)
	assert.Equal(t, int32(100), c2.Bx)

	prev := model.MagSample{Seq: 8, Bz: 0}
	curr := model.MagSample{Seq: 9}
	in.PrevPair(&prev, &curr)
	assert.Equal(t, int32(16), prev.Bz)

	work := model.MagSample{Seq: 9, By: 0}
	in.CurrentSample(&work)
	assert.Equal(t, int32(4), work.By)

	require.Len(t, rec.flips, 3)
	assert.Equal(t, "replica1.bx", rec.flips[0].target)
	assert.Equal(t, "prev.bz", rec.flips[1].target)
	assert.Equal(t, "curr.by", rec.flips[2].target)
	assert.Equal(t, uint64(3), rec.flips[2].flips)

	assert.NotPanics(t, in.End)
}

func TestNoop_LeavesDataUntouched(t *testing.T) {
	var h Hooks = Noop{}
	s := model.MagSample{Seq: 1, Bx: 1, By: 2, Bz: 3}
	orig := s
	c1, c2 := s, s
	h.CurrentReplicas(&s, &c1, &c2)
	h.CurrentSample(&s)
	h.PrevPair(&s, &c1)
	cmd := model.CoilCommand{Seq: 1, Mx: 7}
	h.Command(&cmd)
	h.End()

	assert.Equal(t, orig, s)
	assert.Equal(t, int32(7), cmd.Mx)
}
