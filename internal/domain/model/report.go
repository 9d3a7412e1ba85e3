package model

// WindowReport summarizes one statistics window closed by the actuator.
type WindowReport struct {
	RunID       string `json:"run_id"`
	Mode        string `json:"mode"`
	Seq         uint32 `json:"seq"`
	SatInWindow uint32 `json:"sat_in_window"`
	AvgAmax     uint32 `json:"avg_amax"`
	Samples     uint32 `json:"samples"`
}

// CostReport is the final cost/benefit summary emitted once per run.
type CostReport struct {
	RunID     string      `json:"run_id"`
	Mode      ProtectMode `json:"mode"`
	TMRCalls  uint64      `json:"tmr_calls"`
	SRLCalls  uint64      `json:"srl_calls"`
	SRLClamps uint64      `json:"srl_clamps"`
	SatTotal  uint32      `json:"sat_total"`
	SatX      uint32      `json:"sat_x"`
	SatY      uint32      `json:"sat_y"`
	SatZ      uint32      `json:"sat_z"`
	Processed uint64      `json:"processed"`
	FinalSeq  uint32      `json:"final_seq"`
}
