package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a run or epoch does not exist.
var ErrNotFound = errors.New("store: not found")

// Run statuses.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// #region run-record
// Run is one planner invocation together with the configuration needed to
// reproduce it.
type Run struct {
	RunID          string
	Kind           string
	ConfigJSON     string // planner config
	NavigationJSON string
	PolicyJSON     string
	InitialParams  []float64
	Status         string
	CreatedAt      time.Time
	FinishedAt     time.Time // zero while running
}

// #endregion run-record

// #region epoch-record
// Epoch is the persisted outcome of one planner epoch.
type Epoch struct {
	RunID           string
	Epoch           int
	Action          string
	Reason          string
	CandidateReturn float64
	BestReturn      float64
	MeanLogProb     float64
	DeltaNorm       float64
	Params          []float64 // incumbent parameters after the epoch
	ElapsedMs       int64
	CreatedAt       time.Time
}

// #endregion epoch-record
