package model

// SatFlags marks which axes of a CoilCommand were clamped to the actuator
// limit. Flags are recomputed for every command, never accumulated.
type SatFlags uint32

const (
	SatX SatFlags = 1 << iota
	SatY
	SatZ
)

// SatAxes lists the per-axis flags in X, Y, Z order.
var SatAxes = [3]SatFlags{SatX, SatY, SatZ}

func (f SatFlags) Any() bool { return f&(SatX|SatY|SatZ) != 0 }

func (f SatFlags) Has(axis SatFlags) bool { return f&axis != 0 }

// CoilCommand is the magnetic dipole command for the sample with the same
// Seq.
type CoilCommand struct {
	Seq      uint32
	Mx       int32
	My       int32
	Mz       int32
	SatFlags SatFlags
}

// Moment returns the command's components in X, Y, Z order.
func (c CoilCommand) Moment() [3]int32 {
	return [3]int32{c.Mx, c.My, c.Mz}
}

// MaxAbs returns max(|mx|,|my|,|mz|). It is computed as uint32 so that
// math.MinInt32 has a representable magnitude.
func (c CoilCommand) MaxAbs() uint32 {
	amax := AbsInt32(c.Mx)
	if v := AbsInt32(c.My); v > amax {
		amax = v
	}
	if v := AbsInt32(c.Mz); v > amax {
		amax = v
	}
	return amax
}

// AbsInt32 returns |x| as an unsigned value.
func AbsInt32(x int32) uint32 {
	if x < 0 {
		return uint32(-int64(x))
	}
	return uint32(x)
}
