// Package seu defines the fault-injection surface of the control pipeline.
//
// Each Hooks method is called at the exact point where the data it
// receives is about to be consumed. Implementations may mutate the data
// in place; they never alter control flow. Production runs use Noop.
package seu

//go:generate mockgen -source=hooks.go -destination=mocks/hooks_mock.go -package=mocks

import "github.com/B-Borecki/seu-injection-lab/internal/domain/model"

// Hooks is the enumerated set of injection sites.
type Hooks interface {
	// CurrentReplicas runs before the TMR vote, on three copies of the
	// incoming sample.
	CurrentReplicas(c0, c1, c2 *model.MagSample)
	// CurrentSample runs on the single working copy when TMR is off.
	CurrentSample(curr *model.MagSample)
	// PrevPair runs on the stored reference sample and the used value
	// just before differencing.
	PrevPair(prev, curr *model.MagSample)
	// Command runs on a received command before any protection.
	Command(cmd *model.CoilCommand)
	// End runs once when the experiment-complete condition fires.
	End()
}

// Noop is the production hook set.
type Noop struct{}

func (Noop) CurrentReplicas(_, _, _ *model.MagSample) {}
func (Noop) CurrentSample(_ *model.MagSample)         {}
func (Noop) PrevPair(_, _ *model.MagSample)           {}
func (Noop) Command(_ *model.CoilCommand)             {}
func (Noop) End()                                     {}

var _ Hooks = Noop{}
