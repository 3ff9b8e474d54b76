package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/xhad/greenlens/internal/faults"
	"github.com/xhad/greenlens/internal/models"
)

type Stage string

const (
	StageIngested         Stage = "ingested"
	StageExtracting       Stage = "extracting"
	StageChunked          Stage = "chunked"
	StageIndexing         Stage = "indexing"
	StageRetrieving       Stage = "retrieving"
	StageClaimExtraction  Stage = "claim_extraction"
	StageCrossReferencing Stage = "cross_referencing"
	StageAggregating      Stage = "aggregating"
	StageDone             Stage = "done"
	StageFailed           Stage = "failed"
)

// stageOrder is the fixed forward path of a run; StageFailed is reachable
// from any non-terminal stage.
func stageOrder() []Stage {
	return []Stage{
		StageExtracting,
		StageChunked,
		StageIndexing,
		StageRetrieving,
		StageClaimExtraction,
		StageCrossReferencing,
		StageAggregating,
	}
}

type StageStatus string

const (
	StatusPending   StageStatus = "pending"
	StatusRunning   StageStatus = "running"
	StatusSucceeded StageStatus = "succeeded"
	StatusFailed    StageStatus = "failed"
	StatusRetrying  StageStatus = "retrying"
)

type StageState struct {
	Status   StageStatus `json:"status"`
	Attempts int         `json:"attempts"`
}

// ErrorSummary is the structured failure record a caller needs to decide
// whether a retry is worth submitting.
type ErrorSummary struct {
	Stage    Stage       `json:"stage"`
	Kind     faults.Kind `json:"kind"`
	Attempts int         `json:"attempts"`
	Message  string      `json:"message"`
}

// Run tracks one workflow execution for one document. It owns only its own
// stage and attempt bookkeeping; documents and claims are referenced by id.
type Run struct {
	ID         string
	DocumentID string
	CompanyID  string
	CreatedAt  time.Time

	cancel context.CancelFunc

	mu         sync.RWMutex
	stage      Stage
	stages     map[Stage]*StageState
	assessment *models.Assessment
	errSummary *ErrorSummary
}

func newRun(id, documentID, companyID string, cancel context.CancelFunc) *Run {
	stages := make(map[Stage]*StageState, len(stageOrder()))
	for _, s := range stageOrder() {
		stages[s] = &StageState{Status: StatusPending}
	}
	return &Run{
		ID:         id,
		DocumentID: documentID,
		CompanyID:  companyID,
		CreatedAt:  time.Now(),
		cancel:     cancel,
		stage:      StageIngested,
		stages:     stages,
	}
}

func (r *Run) Stage() Stage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stage
}

func (r *Run) Terminal() bool {
	s := r.Stage()
	return s == StageDone || s == StageFailed
}

// Status is the read-side view of a run handed across the API boundary.
type Status struct {
	RunID      string               `json:"run_id"`
	DocumentID string               `json:"document_id"`
	Stage      Stage                `json:"stage"`
	Stages     map[Stage]StageState `json:"stages"`
	Error      *ErrorSummary        `json:"error,omitempty"`
}

func (r *Run) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stages := make(map[Stage]StageState, len(r.stages))
	for s, st := range r.stages {
		stages[s] = *st
	}

	var errSummary *ErrorSummary
	if r.errSummary != nil {
		copied := *r.errSummary
		errSummary = &copied
	}

	return Status{
		RunID:      r.ID,
		DocumentID: r.DocumentID,
		Stage:      r.stage,
		Stages:     stages,
		Error:      errSummary,
	}
}

func (r *Run) Assessment() (*models.Assessment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch r.stage {
	case StageDone:
		return r.assessment, nil
	case StageFailed:
		return nil, faults.Stagef(string(r.errSummary.Stage), faults.ErrNotReady)
	default:
		return nil, faults.ErrNotReady
	}
}

func (r *Run) enterStage(s Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stage = s
	r.stages[s].Status = StatusRunning
}

func (r *Run) markRetrying(s Stage, attempts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.stages[s]
	st.Status = StatusRetrying
	st.Attempts = attempts
}

func (r *Run) succeedStage(s Stage, attempts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.stages[s]
	st.Status = StatusSucceeded
	st.Attempts = attempts
}

func (r *Run) fail(s Stage, attempts int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.stages[s]; ok {
		st.Status = StatusFailed
		st.Attempts = attempts
	}
	r.stage = StageFailed
	r.errSummary = &ErrorSummary{
		Stage:    s,
		Kind:     faults.KindOf(err),
		Attempts: attempts,
		Message:  err.Error(),
	}
}

func (r *Run) complete(a *models.Assessment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stage = StageDone
	r.assessment = a
}
