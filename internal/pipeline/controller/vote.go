package controller

import "github.com/B-Borecki/seu-injection-lab/internal/domain/model"

// Vote is the bitwise two-of-three majority. Each output bit takes the
// value held by at least two inputs, so any corruption confined to a
// single input is masked.
func Vote(a, b, c int32) int32 {
	return (a & b) | (a & c) | (b & c)
}

// voteSample votes each axis independently and reports which axes had
// at least one dissenting replica.
func voteSample(c0, c1, c2 model.MagSample) (model.MagSample, [3]bool) {
	f0, f1, f2 := c0.Field(), c1.Field(), c2.Field()
	var out [3]int32
	var disagreed [3]bool
	for i := range out {
		out[i] = Vote(f0[i], f1[i], f2[i])
		disagreed[i] = f0[i] != f1[i] || f1[i] != f2[i]
	}
	return model.MagSample{Seq: c0.Seq, Bx: out[0], By: out[1], Bz: out[2]}, disagreed
}
