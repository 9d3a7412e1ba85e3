package actuator

// State is the sink lifecycle. Transitions only move forward and each
// fires at most once.
type State int32

const (
	StateRunning State = iota
	StateTerminating
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateTerminating:
		return "TERMINATING"
	case StateHalted:
		return "HALTED"
	default:
		return "UNKNOWN"
	}
}
