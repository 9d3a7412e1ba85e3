package model

import (
	"fmt"
	"strconv"
	"strings"
)

// ProtectMode selects which protection mechanisms run for the lifetime of
// a process. The numeric values match the firmware's SEFI_MODE selector.
type ProtectMode int

const (
	ProtectBaseline  ProtectMode = 0
	ProtectTmrOnly   ProtectMode = 1
	ProtectSrlOnly   ProtectMode = 2
	ProtectTmrAndSrl ProtectMode = 3
)

// AllProtectModes lists every recognized mode in selector order.
var AllProtectModes = []ProtectMode{
	ProtectBaseline,
	ProtectTmrOnly,
	ProtectSrlOnly,
	ProtectTmrAndSrl,
}

// TMR reports whether the control stage votes over sample replicas.
func (m ProtectMode) TMR() bool {
	return m == ProtectTmrOnly || m == ProtectTmrAndSrl
}

// SRL reports whether the actuator stage limits the command slew rate.
func (m ProtectMode) SRL() bool {
	return m == ProtectSrlOnly || m == ProtectTmrAndSrl
}

func (m ProtectMode) Valid() bool {
	return m >= ProtectBaseline && m <= ProtectTmrAndSrl
}

func (m ProtectMode) String() string {
	switch m {
	case ProtectBaseline:
		return "baseline"
	case ProtectTmrOnly:
		return "tmr"
	case ProtectSrlOnly:
		return "srl"
	case ProtectTmrAndSrl:
		return "tmr_srl"
	default:
		return "unknown(" + strconv.Itoa(int(m)) + ")"
	}
}

// ParseProtectMode accepts a mode name ("baseline", "tmr", "srl",
// "tmr_srl" and a few spellings of each) or the numeric selector 0-3.
func ParseProtectMode(raw string) (ProtectMode, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "0", "baseline", "none":
		return ProtectBaseline, nil
	case "1", "tmr", "tmr_only", "tmronly":
		return ProtectTmrOnly, nil
	case "2", "srl", "srl_only", "srlonly":
		return ProtectSrlOnly, nil
	case "3", "tmr_srl", "tmr+srl", "tmrandsrl", "tmr_and_srl", "both":
		return ProtectTmrAndSrl, nil
	}
	return ProtectBaseline, fmt.Errorf("unknown protect mode %q", raw)
}

// UnmarshalText lets env and yaml decoders parse a ProtectMode directly.
func (m *ProtectMode) UnmarshalText(text []byte) error {
	parsed, err := ParseProtectMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m ProtectMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid protect mode %d", int(m))
	}
	return []byte(m.String()), nil
}
