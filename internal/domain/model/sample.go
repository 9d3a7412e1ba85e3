package model

// MagSample is one synthetic magnetic-field vector reading. Seq is assigned
// by the generator and is never a target for fault injection.
type MagSample struct {
	Seq uint32
	Bx  int32
	By  int32
	Bz  int32
}

// Field returns the sample's vector components in X, Y, Z order.
func (s MagSample) Field() [3]int32 {
	return [3]int32{s.Bx, s.By, s.Bz}
}
