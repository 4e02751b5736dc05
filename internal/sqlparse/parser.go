// Package sqlparse turns raw SQL text into an inspectable statement using
// PostgreSQL's own parser (via pg_query). Parsing is pure: identical input
// yields a structurally identical ParsedStatement, and nothing here touches
// the database.
package sqlparse

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/proto"
)

// StatementKind is the coarse classification driving the statement-kind
// policy check.
type StatementKind int

const (
	KindSelect StatementKind = iota
	KindSetOperation
	KindDML
	KindDDL
	KindOther
)

func (k StatementKind) String() string {
	switch k {
	case KindSelect:
		return "select"
	case KindSetOperation:
		return "set_operation"
	case KindDML:
		return "dml"
	case KindDDL:
		return "ddl"
	default:
		return "other"
	}
}

// ParseError reports unparsable SQL. The message carries the parser's own
// diagnostic, which names the offending fragment when available.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string { return e.Msg }

// TableRef is one physical table reference. Alias defaults to the table
// name when the statement gives none.
type TableRef struct {
	Schema string
	Table  string
	Alias  string
}

// Qualified returns the schema-qualified name.
func (t TableRef) Qualified() string { return t.Schema + "." + t.Table }

// ClauseFlags are structural facts about the top-level statement.
type ClauseFlags struct {
	HasGroupBy       bool
	HasDistinct      bool
	HasOrderBy       bool
	HasLimit         bool
	UsesLateral      bool
	UsesRecursiveCTE bool
	HasLockingClause bool
	HasSelectInto    bool
}

// ParsedStatement is the immutable product of parsing one request's SQL.
// The rewriter clones the underlying tree rather than mutating it.
type ParsedStatement struct {
	Source         string   // original text with :name parameters
	SQL            string   // positional ($n) text that was parsed
	ParamNames     []string // $i binds ParamNames[i-1]
	Kind           StatementKind
	MultiStatement bool
	Tables         []TableRef // physical tables only, in encounter order
	Functions      []string   // lower-cased function names, in encounter order
	CTENames       []string
	Flags          ClauseFlags

	result *pg_query.ParseResult
}

// Parser is the pluggable parsing capability; the Postgres implementation
// is the only one shipped.
type Parser interface {
	Parse(sql string) (*ParsedStatement, error)
}

// PostgresParser parses the PostgreSQL dialect.
type PostgresParser struct{}

func (PostgresParser) Parse(sql string) (*ParsedStatement, error) {
	return Parse(sql)
}

// Parse binds :name parameters to positional form and parses the result.
func Parse(sql string) (*ParsedStatement, error) {
	bound, names, err := BindNamedParams(sql)
	if err != nil {
		return nil, &ParseError{Msg: fmt.Sprintf("sql_parse_error: %v", err)}
	}
	return ParseBound(sql, bound, names)
}

// ParseBound parses already-bound ($n) SQL while retaining the original
// source text and parameter names. The rewriter uses it to re-analyze its
// own deparsed output.
func ParseBound(source, bound string, names []string) (*ParsedStatement, error) {
	if strings.TrimSpace(bound) == "" {
		return nil, &ParseError{Msg: "failed_to_parse_sql"}
	}

	res, err := pg_query.Parse(bound)
	if err != nil {
		return nil, &ParseError{Msg: fmt.Sprintf("sql_parse_error: %v", err)}
	}
	if len(res.Stmts) == 0 || res.Stmts[0].Stmt == nil {
		return nil, &ParseError{Msg: "failed_to_parse_sql"}
	}

	ps := &ParsedStatement{
		Source:         source,
		SQL:            bound,
		ParamNames:     names,
		MultiStatement: len(res.Stmts) > 1,
		result:         res,
	}
	ps.Kind = classify(res.Stmts[0].Stmt)

	if sel := ps.Select(); sel != nil {
		ps.Flags.HasGroupBy = len(sel.GroupClause) > 0
		ps.Flags.HasDistinct = len(sel.DistinctClause) > 0
		ps.Flags.HasOrderBy = len(sel.SortClause) > 0
		ps.Flags.HasLimit = sel.LimitCount != nil
		ps.Flags.HasLockingClause = len(sel.LockingClause) > 0
		ps.Flags.HasSelectInto = sel.IntoClause != nil
	}

	ps.collectCTENames()
	ps.collectReferences()
	return ps, nil
}

// Select returns the top-level SELECT node, or nil for non-SELECT input.
func (ps *ParsedStatement) Select() *pg_query.SelectStmt {
	return ps.result.Stmts[0].Stmt.GetSelectStmt()
}

// Tree exposes the parse tree for AST-level analysis.
func (ps *ParsedStatement) Tree() *pg_query.ParseResult { return ps.result }

// CloneTree deep-copies the parse tree so rewrites never alias the original.
func (ps *ParsedStatement) CloneTree() *pg_query.ParseResult {
	return proto.Clone(ps.result).(*pg_query.ParseResult)
}

// Deparse renders the parse tree back to SQL text.
func (ps *ParsedStatement) Deparse() (string, error) {
	return pg_query.Deparse(ps.result)
}

func (ps *ParsedStatement) collectCTENames() {
	Walk(ps.result, func(m proto.Message) bool {
		if w, ok := m.(*pg_query.WithClause); ok {
			if w.Recursive {
				ps.Flags.UsesRecursiveCTE = true
			}
			for _, cte := range w.Ctes {
				if c := cte.GetCommonTableExpr(); c != nil {
					ps.CTENames = append(ps.CTENames, c.Ctename)
				}
			}
		}
		return true
	})
}

func (ps *ParsedStatement) collectReferences() {
	cte := make(map[string]bool, len(ps.CTENames))
	for _, n := range ps.CTENames {
		cte[n] = true
	}

	Walk(ps.result, func(m proto.Message) bool {
		switch n := m.(type) {
		case *pg_query.RangeVar:
			if n.Relname == "" {
				return true
			}
			// unqualified references to CTE names are not physical tables
			if n.Schemaname == "" && cte[n.Relname] {
				return true
			}
			ref := TableRef{Schema: n.Schemaname, Table: n.Relname, Alias: n.Relname}
			if ref.Schema == "" {
				ref.Schema = "public"
			}
			if n.Alias != nil && n.Alias.Aliasname != "" {
				ref.Alias = n.Alias.Aliasname
			}
			ps.Tables = append(ps.Tables, ref)
		case *pg_query.FuncCall:
			if name := funcName(n); name != "" {
				ps.Functions = append(ps.Functions, name)
			}
		case *pg_query.RangeSubselect:
			if n.Lateral {
				ps.Flags.UsesLateral = true
			}
		case *pg_query.RangeFunction:
			if n.Lateral {
				ps.Flags.UsesLateral = true
			}
		}
		return true
	})
}

// funcName returns the unqualified, lower-cased function name.
func funcName(fc *pg_query.FuncCall) string {
	if len(fc.Funcname) == 0 {
		return ""
	}
	last := fc.Funcname[len(fc.Funcname)-1].GetString_()
	if last == nil {
		return ""
	}
	return strings.ToLower(last.Sval)
}

func classify(stmt *pg_query.Node) StatementKind {
	switch n := stmt.Node.(type) {
	case *pg_query.Node_SelectStmt:
		if n.SelectStmt.Op != pg_query.SetOperation_SETOP_NONE {
			return KindSetOperation
		}
		return KindSelect
	case *pg_query.Node_InsertStmt, *pg_query.Node_UpdateStmt,
		*pg_query.Node_DeleteStmt, *pg_query.Node_MergeStmt:
		return KindDML
	case *pg_query.Node_CreateStmt, *pg_query.Node_CreateTableAsStmt,
		*pg_query.Node_AlterTableStmt, *pg_query.Node_DropStmt,
		*pg_query.Node_TruncateStmt, *pg_query.Node_IndexStmt,
		*pg_query.Node_ViewStmt:
		return KindDDL
	default:
		return KindOther
	}
}
