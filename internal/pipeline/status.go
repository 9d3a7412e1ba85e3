package pipeline

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/B-Borecki/seu-injection-lab/internal/domain/model"
	"github.com/B-Borecki/seu-injection-lab/internal/pipeline/actuator"
)

// RunStatus tracks the progress of one experiment run. The actuator
// updates it through the actuator.Observer methods; the depth sampler
// refreshes the drop and gap counters.
type RunStatus struct {
	mu           sync.RWMutex
	runID        string
	mode         model.ProtectMode
	state        actuator.State
	startedAt    time.Time
	haltedAt     *time.Time
	lastSeq      uint32
	applied      uint64
	satTotal     uint32
	sampleDrops  uint64
	commandDrops uint64
	gaps         uint64
	lastWindow   *model.WindowReport
	cost         *model.CostReport
}

func NewRunStatus(runID string, mode model.ProtectMode) *RunStatus {
	return &RunStatus{
		runID:     runID,
		mode:      mode,
		state:     actuator.StateRunning,
		startedAt: time.Now(),
	}
}

func (s *RunStatus) CommandApplied(cmd model.CoilCommand, satTotal uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeq = cmd.Seq
	s.applied++
	s.satTotal = satTotal
}

func (s *RunStatus) WindowClosed(r model.WindowReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastWindow = &r
}

func (s *RunStatus) StateChanged(st actuator.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	if st == actuator.StateHalted && s.haltedAt == nil {
		now := time.Now()
		s.haltedAt = &now
	}
}

// RecordCounters stores the latest drop and gap totals.
func (s *RunStatus) RecordCounters(sampleDrops, commandDrops, gaps uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sampleDrops = sampleDrops
	s.commandDrops = commandDrops
	s.gaps = gaps
}

func (s *RunStatus) SetCost(c model.CostReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cost = &c
}

// Halted reports whether the run has reached its final state.
func (s *RunStatus) Halted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == actuator.StateHalted
}

func (s *RunStatus) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := StatusSnapshot{
		RunID:        s.runID,
		Mode:         s.mode.String(),
		State:        s.state.String(),
		StartedAt:    s.startedAt,
		HaltedAt:     s.haltedAt,
		LastSeq:      s.lastSeq,
		Applied:      s.applied,
		SatTotal:     s.satTotal,
		SampleDrops:  s.sampleDrops,
		CommandDrops: s.commandDrops,
		Gaps:         s.gaps,
	}
	if s.lastWindow != nil {
		w := *s.lastWindow
		snap.LastWindow = &w
	}
	if s.cost != nil {
		c := *s.cost
		snap.Cost = &c
	}
	return snap
}

// ServeHTTP writes the snapshot as JSON.
func (s *RunStatus) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Snapshot()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// StatusSnapshot is a point-in-time view of a run (JSON-safe).
type StatusSnapshot struct {
	RunID        string              `json:"run_id"`
	Mode         string              `json:"mode"`
	State        string              `json:"state"`
	StartedAt    time.Time           `json:"started_at"`
	HaltedAt     *time.Time          `json:"halted_at,omitempty"`
	LastSeq      uint32              `json:"last_seq"`
	Applied      uint64              `json:"applied"`
	SatTotal     uint32              `json:"sat_total"`
	SampleDrops  uint64              `json:"sample_drops"`
	CommandDrops uint64              `json:"command_drops"`
	Gaps         uint64              `json:"gaps"`
	LastWindow   *model.WindowReport `json:"last_window,omitempty"`
	Cost         *model.CostReport   `json:"cost,omitempty"`
}

var _ actuator.Observer = (*RunStatus)(nil)
