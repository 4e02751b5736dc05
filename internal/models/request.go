package models

import "errors"

// AnalysisRequest is the body of POST /api/v1/analysis. Exactly one of
// Question or SQL must be set; tenant scoping is derived from the
// authenticated identity, never from Params.
type AnalysisRequest struct {
	Question *string        `json:"question,omitempty"`
	SQL      *string        `json:"sql,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
	RowLimit int            `json:"row_limit,omitempty"`
	TimeoutS float64        `json:"timeout_s,omitempty"`
	DryRun   bool           `json:"dry_run,omitempty"`
	Trace    bool           `json:"trace,omitempty"`
	Hints    []string       `json:"hints,omitempty"`
}

// Validate checks request shape only; policy checks happen in the guard.
func (r *AnalysisRequest) Validate() error {
	hasQuestion := r.Question != nil && *r.Question != ""
	hasSQL := r.SQL != nil && *r.SQL != ""
	if hasQuestion && hasSQL {
		return errors.New("provide either 'question' or 'sql', not both")
	}
	if !hasQuestion && !hasSQL {
		return errors.New("either 'question' or 'sql' must be provided")
	}
	if r.RowLimit < 0 {
		return errors.New("'row_limit' must be a positive integer")
	}
	if r.TimeoutS < 0 {
		return errors.New("'timeout_s' must be a positive number")
	}
	return nil
}

// SetDefaults fills and clamps row limit and timeout.
func (r *AnalysisRequest) SetDefaults(defRowLimit, maxRowLimit int, defTimeoutS, maxTimeoutS float64) {
	if r.RowLimit == 0 {
		r.RowLimit = defRowLimit
	}
	if r.RowLimit > maxRowLimit {
		r.RowLimit = maxRowLimit
	}
	if r.TimeoutS == 0 {
		r.TimeoutS = defTimeoutS
	}
	if r.TimeoutS > maxTimeoutS {
		r.TimeoutS = maxTimeoutS
	}
}

// Identity is the verified caller resolved by the auth middleware.
type Identity struct {
	BusinessID int64
	UserID     int64
}
