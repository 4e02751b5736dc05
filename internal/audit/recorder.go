// Package audit persists one record per guarded call into query_audit.
// Auditing is observation, not enforcement: a failed insert is logged and
// the response proceeds, but enabled auditing that cannot write at startup
// is a boot failure.
package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Record is one audited guarded call. Failed calls have empty RewrittenSQL
// and carry the violation codes or error text instead. Executed is false
// whenever the statement never reached the database: dry runs and every
// rejection before the executor. HTTPStatus is the status the error kind
// maps to, independent of the always-200 response mode.
type Record struct {
	TraceID      string
	BusinessID   int64
	UserID       int64
	Question     string
	InputSQL     string
	RewrittenSQL string
	Outcome      string // "ok", "guard_rejected", "validation_failed", "generation_failed", "timeout", "execution_failed"
	Executed     bool
	HTTPStatus   int
	Violations   []string
	GuardNotes   []string
	RowCount     int
	Truncated    bool
	ExecutionMs  int64
	ErrorText    string
	CreatedAt    time.Time
}

// normalize fills the fields the insert cannot accept as zero values. The
// array columns are NOT NULL, and pgx encodes a nil slice as SQL NULL.
func (rec *Record) normalize() {
	if rec.Violations == nil {
		rec.Violations = []string{}
	}
	if rec.GuardNotes == nil {
		rec.GuardNotes = []string{}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
}

type Recorder struct {
	pool *pgxpool.Pool
}

func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

const insertSQL = `
INSERT INTO query_audit (
    trace_id, business_id, user_id, question, input_sql, rewritten_sql,
    outcome, executed, http_status, violations, guard_notes, row_count,
    truncated, execution_ms, error_text, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

// Write inserts rec. It detaches from the request context so a cancelled
// request still leaves its audit trail.
func (r *Recorder) Write(ctx context.Context, rec Record) {
	if r == nil || r.pool == nil {
		return
	}
	rec.normalize()

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	_, err := r.pool.Exec(wctx, insertSQL,
		rec.TraceID, rec.BusinessID, rec.UserID, rec.Question, rec.InputSQL,
		rec.RewrittenSQL, rec.Outcome, rec.Executed, rec.HTTPStatus,
		rec.Violations, rec.GuardNotes, rec.RowCount, rec.Truncated,
		rec.ExecutionMs, rec.ErrorText, rec.CreatedAt,
	)
	if err != nil {
		log.Error().Err(err).Str("trace_id", rec.TraceID).Msg("audit insert failed")
	}
}

// Ping verifies the audit table is writable by round-tripping a count. Used
// at startup when auditing is enabled.
func (r *Recorder) Ping(ctx context.Context) error {
	var n int64
	return r.pool.QueryRow(ctx, "SELECT count(*) FROM query_audit").Scan(&n)
}
