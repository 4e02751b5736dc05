// Package executor runs guarded statements against Postgres. Every query
// executes inside a read-only transaction with transaction-local timeouts,
// so even a statement that slipped past validation cannot write, lock, or
// occupy a backend past its budget.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/queryguard/queryguard/internal/serialize"
)

// ErrTimeout marks a query cancelled by statement_timeout or the client
// deadline. The service maps it to a 504.
var ErrTimeout = errors.New("query timed out")

// Config carries the session guards applied to every transaction.
type Config struct {
	SearchPath      string
	LockTimeoutMs   int
	IdleInTxMs      int
	WorkMem         string        // e.g. "64MB", empty leaves the server default
	Grace           time.Duration // client deadline slack beyond statement_timeout
}

// Result is one executed statement's output before serialization.
type Result struct {
	Columns   []serialize.ColumnDesc
	Rows      [][]any
	Truncated bool // the overfetch row was present and stripped
	Elapsed   time.Duration
}

type Executor struct {
	pool *pgxpool.Pool
	cfg  Config
}

func New(pool *pgxpool.Pool, cfg Config) *Executor {
	if cfg.SearchPath == "" {
		cfg.SearchPath = "public"
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 2 * time.Second
	}
	return &Executor{pool: pool, cfg: cfg}
}

// Run executes sql with positional args under a read-only transaction.
// rowLimit is the caller-visible cap; when overfetch is set the statement
// carries LIMIT rowLimit+1 and Run strips the sentinel row, reporting
// Truncated instead.
func (e *Executor) Run(ctx context.Context, sql string, args []any, timeout time.Duration, rowLimit int, overfetch bool) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout+e.cfg.Grace)
	defer cancel()

	tx, err := e.pool.BeginTx(runCtx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin read-only tx: %w", err)
	}
	defer rollback(ctx, tx)

	if err := e.applyGuards(runCtx, tx, timeout); err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := tx.Query(runCtx, sql, args...)
	if err != nil {
		return nil, mapError(err)
	}

	descs := columnDescs(rows.FieldDescriptions())

	var collected [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			rows.Close()
			return nil, mapError(err)
		}
		collected = append(collected, values)
		if overfetch && len(collected) > rowLimit {
			break
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	elapsed := time.Since(start)

	truncated := false
	if overfetch && len(collected) > rowLimit {
		collected = collected[:rowLimit]
		truncated = true
	}

	return &Result{
		Columns:   descs,
		Rows:      collected,
		Truncated: truncated,
		Elapsed:   elapsed,
	}, nil
}

// applyGuards sets the transaction-local session state. SET LOCAL reverts
// at transaction end, so pooled connections never leak guard settings.
func (e *Executor) applyGuards(ctx context.Context, tx pgx.Tx, timeout time.Duration) error {
	stmts := []string{
		fmt.Sprintf("SET LOCAL search_path = %s", quoteIdent(e.cfg.SearchPath)),
		fmt.Sprintf("SET LOCAL statement_timeout = %d", timeout.Milliseconds()),
		fmt.Sprintf("SET LOCAL lock_timeout = %d", e.cfg.LockTimeoutMs),
		fmt.Sprintf("SET LOCAL idle_in_transaction_session_timeout = %d", e.cfg.IdleInTxMs),
	}
	if e.cfg.WorkMem != "" {
		stmts = append(stmts, fmt.Sprintf("SET LOCAL work_mem = %s", quoteLiteral(e.cfg.WorkMem)))
	}
	for _, s := range stmts {
		if _, err := tx.Exec(ctx, s); err != nil {
			return fmt.Errorf("apply session guard: %w", err)
		}
	}
	return nil
}

// rollback releases the transaction even when the request context is
// already dead, otherwise the pooled connection would be abandoned mid-tx.
func rollback(ctx context.Context, tx pgx.Tx) {
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := tx.Rollback(rbCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		log.Warn().Err(err).Msg("rollback after guarded query failed")
	}
}

func columnDescs(fields []pgconn.FieldDescription) []serialize.ColumnDesc {
	descs := make([]serialize.ColumnDesc, len(fields))
	for i, f := range fields {
		descs[i] = serialize.ColumnDesc{Name: f.Name, OID: f.DataTypeOID}
	}
	return descs
}

// mapError folds driver errors into the service's error kinds. SQLSTATE
// 57014 is query_canceled, raised by statement_timeout.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "57014" {
		return fmt.Errorf("%w: %s", ErrTimeout, pgErr.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: client deadline exceeded", ErrTimeout)
	}
	return err
}

// quoteIdent is intentionally strict: search_path comes from operator
// configuration, not from requests.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}
