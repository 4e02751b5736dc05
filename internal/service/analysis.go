// Package service orchestrates the guarded analysis pipeline: generate or
// accept SQL, parse, validate, rewrite, execute, serialize, audit. Handlers
// stay thin; every decision about a statement's fate is made here.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/queryguard/queryguard/internal/audit"
	"github.com/queryguard/queryguard/internal/config"
	"github.com/queryguard/queryguard/internal/executor"
	"github.com/queryguard/queryguard/internal/generator"
	"github.com/queryguard/queryguard/internal/guard"
	"github.com/queryguard/queryguard/internal/models"
	"github.com/queryguard/queryguard/internal/serialize"
	"github.com/queryguard/queryguard/internal/sqlparse"
)

// Runner abstracts the executor so tests can run the pipeline without a
// database.
type Runner interface {
	Run(ctx context.Context, sql string, args []any, timeout time.Duration, rowLimit int, overfetch bool) (*executor.Result, error)
}

// Auditor receives exactly one record per guarded call. *audit.Recorder
// satisfies it; tests capture records with fakes.
type Auditor interface {
	Write(ctx context.Context, rec audit.Record)
}

// Analysis drives one guarded call end to end.
type Analysis struct {
	cfg       *config.Config
	policy    *guard.Policy
	parser    sqlparse.Parser
	validator *guard.Validator
	rewriter  *guard.Rewriter
	columns   guard.ColumnSource
	runner    Runner
	recorder  Auditor
	generator generator.Generator
}

func NewAnalysis(cfg *config.Config, parser sqlparse.Parser, columns guard.ColumnSource, runner Runner, recorder Auditor, gen generator.Generator) (*Analysis, error) {
	policy, err := guard.NewPolicy(cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	return &Analysis{
		cfg:       cfg,
		policy:    policy,
		parser:    parser,
		validator: guard.NewValidator(policy),
		rewriter:  guard.NewRewriter(policy, columns),
		columns:   columns,
		runner:    runner,
		recorder:  recorder,
		generator: gen,
	}, nil
}

// Analyze runs one request for the authenticated identity. The returned
// AppError, if any, is already classified for status mapping; the returned
// data may carry the rewritten SQL even on failure so clients can see what
// would have run.
func (s *Analysis) Analyze(ctx context.Context, identity models.Identity, req *models.AnalysisRequest, traceID string) (*models.AnalysisData, *models.AppError) {
	req.SetDefaults(s.cfg.Policy.DefaultRowLimit, s.cfg.Policy.MaxRowLimit,
		s.cfg.Policy.DefaultTimeoutS, s.cfg.Policy.MaxTimeoutS)

	rec := audit.Record{
		TraceID:    traceID,
		BusinessID: identity.BusinessID,
		UserID:     identity.UserID,
	}
	if req.Question != nil {
		rec.Question = *req.Question
	}
	defer func() {
		if s.recorder != nil {
			s.recorder.Write(ctx, rec)
		}
	}()

	inputSQL, appErr := s.resolveSQL(ctx, req)
	if appErr != nil {
		recordFailure(&rec, appErr)
		return nil, appErr
	}
	rec.InputSQL = inputSQL

	stmt, err := s.parser.Parse(inputSQL)
	if err != nil {
		appErr := parseFailure(err)
		recordFailure(&rec, appErr)
		rec.Violations = violationList(appErr)
		return nil, appErr
	}

	if out := s.validator.Validate(stmt, req.Params); !out.OK() {
		appErr := models.NewGuardError("query violates policy", out.Violations)
		recordFailure(&rec, appErr)
		rec.Violations = out.Violations
		return nil, appErr
	}

	rewritten, err := s.rewriter.Rewrite(ctx, stmt, req.RowLimit)
	if err != nil {
		log.Error().Err(err).Str("trace_id", traceID).Msg("rewrite failed")
		appErr := models.NewExecutionError("query rewriting failed: " + err.Error())
		recordFailure(&rec, appErr)
		return nil, appErr
	}
	rec.RewrittenSQL = rewritten.SQL
	rec.GuardNotes = rewritten.Notes

	args, appErr := s.bindArgs(rewritten.Statement.ParamNames, identity, req.Params)
	if appErr != nil {
		recordFailure(&rec, appErr)
		return nil, appErr
	}

	finalSQL := traceComment(traceID) + rewritten.SQL
	data := &models.AnalysisData{
		SQL:        finalSQL,
		Columns:    []string{},
		Rows:       [][]any{},
		TraceID:    traceID,
		GuardNotes: rewritten.Notes,
	}

	if req.DryRun {
		rec.Outcome, rec.HTTPStatus = "ok", http.StatusOK
		return data, nil
	}

	timeout := time.Duration(req.TimeoutS * float64(time.Second))
	rec.Executed = true
	result, err := s.runner.Run(ctx, finalSQL, args, timeout, req.RowLimit, rewritten.Overfetch)
	if err != nil {
		appErr := execFailure(err)
		recordFailure(&rec, appErr)
		return data, appErr
	}

	rows, metas := serialize.Rows(result.Columns, result.Rows)
	data.Columns = columnNames(result.Columns)
	data.Rows = rows
	data.RowCount = len(rows)
	data.Truncated = result.Truncated
	data.ExecutionMs = result.Elapsed.Milliseconds()
	if data.Truncated {
		data.Warnings = append(data.Warnings,
			fmt.Sprintf("results truncated to %d rows", req.RowLimit))
	}
	if req.Trace {
		data.Meta = resultMeta(metas)
	}

	rec.Outcome, rec.HTTPStatus = "ok", http.StatusOK
	rec.RowCount = data.RowCount
	rec.Truncated = data.Truncated
	rec.ExecutionMs = data.ExecutionMs
	return data, nil
}

// TrustedRun executes pre-trusted SQL for an internal caller. The statement
// still passes the entire guard; "trusted" only means the tenant binding is
// provided programmatically instead of being resolved from an API key. The
// caller must name the tenant parameter in params so the binding is explicit;
// its value is discarded in favor of businessID before the guard sees the
// params.
func (s *Analysis) TrustedRun(ctx context.Context, businessID int64, sql string, params map[string]any, rowLimit int, timeout time.Duration) (*models.AnalysisData, *models.AppError) {
	tenant := s.cfg.Policy.TenantParam
	rest := make(map[string]any, len(params))
	found := false
	for k, v := range params {
		if strings.EqualFold(k, tenant) {
			found = true
			continue
		}
		rest[k] = v
	}
	if !found {
		return nil, models.NewValidationError("missing_parameter:" + tenant)
	}

	req := &models.AnalysisRequest{
		SQL:      &sql,
		Params:   rest,
		RowLimit: rowLimit,
		TimeoutS: timeout.Seconds(),
	}
	identity := models.Identity{BusinessID: businessID}
	return s.Analyze(ctx, identity, req, newInternalTraceID())
}

// ListTables returns the allow-listed tables with their visible columns.
// The same exclusion rules as star expansion apply, so a client can never
// learn about a column the guard would refuse to return.
func (s *Analysis) ListTables(ctx context.Context, includeColumns bool) ([]models.TableInfo, error) {
	names := make([]string, 0, len(s.cfg.Policy.AllowedTables))
	names = append(names, s.cfg.Policy.AllowedTables...)
	sort.Strings(names)

	infos := make([]models.TableInfo, 0, len(names))
	for _, fq := range names {
		schema, table, ok := splitQualified(fq)
		if !ok {
			continue
		}
		info := models.TableInfo{
			Schema:       schema,
			Table:        table,
			TenantScoped: s.policy.TenantRequiredTables[strings.ToLower(fq)],
		}
		if includeColumns {
			cols, err := s.columns.Columns(ctx, schema, table)
			if err != nil {
				return nil, fmt.Errorf("list columns for %s: %w", fq, err)
			}
			for _, c := range cols {
				if s.policy.ColumnExcluded(schema, table, c.Name, c.DataType) {
					continue
				}
				info.Columns = append(info.Columns, models.TableColumn{Name: c.Name, DataType: c.DataType})
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// resolveSQL returns the statement to guard: the request's own SQL, or a
// generated draft for a question.
func (s *Analysis) resolveSQL(ctx context.Context, req *models.AnalysisRequest) (string, *models.AppError) {
	if req.SQL != nil && *req.SQL != "" {
		return *req.SQL, nil
	}

	question := *req.Question
	if err := generator.ScreenQuestion(question); err != nil {
		return "", models.NewValidationError(err.Error())
	}
	if s.generator == nil {
		return "", models.NewGenerationError("SQL generation is not configured")
	}

	schema, err := s.promptSchema(ctx)
	if err != nil {
		return "", models.NewGenerationError("schema lookup failed: " + err.Error())
	}

	sql, err := s.generator.GenerateSQL(ctx, question, req.Hints, schema)
	if err != nil {
		return "", models.NewGenerationError(err.Error())
	}
	return sql, nil
}

// promptSchema builds the table descriptions shown to the model, with
// excluded columns already removed.
func (s *Analysis) promptSchema(ctx context.Context) ([]generator.SchemaTable, error) {
	tables, err := s.ListTables(ctx, true)
	if err != nil {
		return nil, err
	}
	schema := make([]generator.SchemaTable, 0, len(tables))
	for _, t := range tables {
		st := generator.SchemaTable{Schema: t.Schema, Table: t.Table}
		for _, c := range t.Columns {
			st.Columns = append(st.Columns, c.Name)
		}
		schema = append(schema, st)
	}
	return schema, nil
}

// bindArgs produces positional args in ParamNames order. The tenant
// parameter always binds to the authenticated identity; everything else
// must be present in the client params.
func (s *Analysis) bindArgs(names []string, identity models.Identity, params map[string]any) ([]any, *models.AppError) {
	args := make([]any, len(names))
	for i, name := range names {
		if strings.EqualFold(name, s.cfg.Policy.TenantParam) {
			args[i] = identity.BusinessID
			continue
		}
		v, ok := lookupParam(params, name)
		if !ok {
			return nil, models.NewValidationError("missing_parameter:" + name)
		}
		args[i] = v
	}
	return args, nil
}

func lookupParam(params map[string]any, name string) (any, bool) {
	if v, ok := params[name]; ok {
		return v, true
	}
	for k, v := range params {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

func parseFailure(err error) *models.AppError {
	var perr *sqlparse.ParseError
	if errors.As(err, &perr) {
		return models.NewGuardError("query violates policy", []string{"sql_parse_error: " + perr.Msg})
	}
	return models.NewGuardError("query violates policy", []string{"failed_to_parse_sql"})
}

func execFailure(err error) *models.AppError {
	if errors.Is(err, executor.ErrTimeout) {
		return models.NewTimeoutError("query timed out")
	}
	return models.NewExecutionError(err.Error())
}

func recordFailure(rec *audit.Record, e *models.AppError) {
	rec.Outcome = auditOutcome(e)
	rec.ErrorText = e.Message
	rec.HTTPStatus = e.Status()
}

func auditOutcome(e *models.AppError) string {
	switch e.Kind {
	case models.ErrGuard:
		return "guard_rejected"
	case models.ErrValidation:
		return "validation_failed"
	case models.ErrGeneration:
		return "generation_failed"
	case models.ErrTimeout:
		return "timeout"
	default:
		return "execution_failed"
	}
}

func violationList(e *models.AppError) []string {
	if e.Details == nil {
		return nil
	}
	if vs, ok := e.Details["violations"].([]string); ok {
		return vs
	}
	return nil
}

func columnNames(descs []serialize.ColumnDesc) []string {
	names := make([]string, len(descs))
	for i, d := range descs {
		names[i] = d.Name
	}
	return names
}

func resultMeta(metas []serialize.Meta) *models.ResultMeta {
	out := &models.ResultMeta{Columns: make([]models.ColumnMeta, len(metas))}
	for i, m := range metas {
		out.Columns[i] = models.ColumnMeta{
			Name:         m.Name,
			DBType:       m.DBType,
			GoType:       m.GoType,
			Nullable:     m.Nullable,
			SerializedAs: m.SerializedAs,
		}
	}
	return out
}

func newInternalTraceID() string {
	return uuid.NewString()
}

func traceComment(traceID string) string {
	return "/* queryguard trace_id=" + traceID + " */ "
}

func splitQualified(fq string) (schema, table string, ok bool) {
	parts := strings.SplitN(fq, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
