package actuator

// limitStep moves prev towards target by at most maxStep. The difference
// is taken in 64 bits so it cannot wrap for extreme inputs.
func limitStep(target, prev int32, maxStep int64) (int32, bool) {
	d := int64(target) - int64(prev)
	switch {
	case d > maxStep:
		return int32(int64(prev) + maxStep), true
	case d < -maxStep:
		return int32(int64(prev) - maxStep), true
	default:
		return target, false
	}
}

// slewLimiter remembers the last issued moment per axis.
type slewLimiter struct {
	maxStep int64
	last    [3]int32
	have    bool
}

// apply clamps m in place and returns which axes were clamped. The first
// command after a reset only seeds the history.
func (s *slewLimiter) apply(m *[3]int32) [3]bool {
	var clamped [3]bool
	if s.have {
		for axis := range m {
			m[axis], clamped[axis] = limitStep(m[axis], s.last[axis], s.maxStep)
		}
	}
	s.last = *m
	s.have = true
	return clamped
}

func (s *slewLimiter) reset() {
	s.have = false
	s.last = [3]int32{}
}
