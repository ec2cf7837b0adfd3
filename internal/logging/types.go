package logging

import "time"

// #region provenance-entry
// ProvenanceEntry is a single row in the provenance_log table.
type ProvenanceEntry struct {
	RunID       string
	Epoch       int
	TriggerType string // "epoch" | "replay" | "simulate"
	RecordJSON  string
	Decision    string // "commit" | "gate_reject" | "eval_rollback" | "evaluate"
	Reason      string
	CreatedAt   time.Time
}

// #endregion provenance-entry

// #region epoch-record
// EpochRecord captures the complete decision inputs of one planner epoch.
// Serialized as JSON into provenance_log.record_json for later inspection.
type EpochRecord struct {
	Epoch int `json:"epoch"`

	CandidateReturn float64 `json:"candidate_return"`
	CandidateStd    float64 `json:"candidate_std"`
	BestReturn      float64 `json:"best_return"`
	MeanLogProb     float64 `json:"mean_log_prob"`

	// Proposal metrics
	DeltaNorm float64 `json:"delta_norm"`
	ParamNorm float64 `json:"param_norm"`
	BlocksHit []int   `json:"blocks_hit"`

	// Gate/eval thresholds active at decision time
	Thresholds EpochThresholds `json:"thresholds"`

	// Gate and eval output
	EvalPassed    bool    `json:"eval_passed"`
	GateAction    string  `json:"gate_action,omitempty"`
	GateSoftScore float64 `json:"gate_soft_score"`
	GateVetoed    bool    `json:"gate_vetoed"`
	GateReason    string  `json:"gate_reason,omitempty"`
}

// EpochThresholds captures the gate/eval config active at decision time.
type EpochThresholds struct {
	MaxDeltaNorm   float64 `json:"max_delta_norm"`
	MaxParamNorm   float64 `json:"max_param_norm"`
	MinImprovement float64 `json:"min_improvement"`
	ReturnFloor    float64 `json:"return_floor"`
}

// #endregion epoch-record
