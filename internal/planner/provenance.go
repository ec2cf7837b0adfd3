package planner

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/danielpatrickdp/mrm-sim/internal/logging"
)

// #region provenance
// Record flattens an epoch result into the JSON record kept in the provenance log.
func Record(cfg Config, r EpochResult) logging.EpochRecord {
	rec := logging.EpochRecord{
		Epoch:           r.Epoch,
		CandidateReturn: finite(r.Candidate.MeanReturn),
		CandidateStd:    finite(r.Candidate.StdReturn),
		BestReturn:      finite(r.Best.MeanReturn),
		MeanLogProb:     finite(r.Candidate.MeanLogProb),
		BlocksHit:       []int{},
		Thresholds: logging.EpochThresholds{
			MaxDeltaNorm:   cfg.Gate.MaxDeltaNorm,
			MaxParamNorm:   cfg.Gate.MaxParamNorm,
			MinImprovement: cfg.Gate.MinImprovement,
			ReturnFloor:    cfg.Eval.ReturnFloor,
		},
	}
	if r.UpdateMetrics != nil {
		rec.DeltaNorm = finite(r.UpdateMetrics.DeltaNorm)
		rec.ParamNorm = finite(r.UpdateMetrics.ParamNorm)
		rec.BlocksHit = r.UpdateMetrics.BlocksHit
	}
	if r.EvalResult != nil {
		rec.EvalPassed = r.EvalResult.Passed
	}
	if r.GateDecision != nil {
		rec.GateAction = r.GateDecision.Action
		rec.GateSoftScore = r.GateDecision.SoftScore
		rec.GateVetoed = r.GateDecision.Vetoed
		rec.GateReason = r.GateDecision.Reason
	}
	return rec
}

// Provenance builds the provenance_log row for an epoch of run runID.
func Provenance(runID string, cfg Config, r EpochResult) (logging.ProvenanceEntry, error) {
	data, err := json.Marshal(Record(cfg, r))
	if err != nil {
		return logging.ProvenanceEntry{}, fmt.Errorf("marshal epoch record: %w", err)
	}
	return logging.ProvenanceEntry{
		RunID:       runID,
		Epoch:       r.Epoch,
		TriggerType: "epoch",
		RecordJSON:  string(data),
		Decision:    r.Action,
		Reason:      r.Reason,
	}, nil
}

// finite maps NaN and ±Inf to 0, which JSON cannot encode.
func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

// #endregion provenance
