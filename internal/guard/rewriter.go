package guard

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/proto"

	"github.com/queryguard/queryguard/internal/catalog"
	"github.com/queryguard/queryguard/internal/sqlparse"
)

// ColumnSource supplies table column metadata for star expansion and the
// ordering heuristic. The catalog satisfies it; tests use fakes.
type ColumnSource interface {
	Columns(ctx context.Context, schema, table string) ([]catalog.Column, error)
}

// Rewritten is the product of one rewrite pass.
type Rewritten struct {
	Statement *sqlparse.ParsedStatement
	SQL       string // final positional ($n) text
	Notes     []string
	Overfetch bool // LIMIT row_limit+1 was injected; executor strips the extra row
}

// Rewriter performs the deterministic structural rewrites on an accepted
// statement: star expansion, ordering injection, and limit injection. The
// input statement is never mutated; the rewriter clones the tree, deparses
// it, and re-validates its own output. Tenant predicates are verified by the
// validator and must survive rewriting unchanged; the rewriter never injects
// them.
type Rewriter struct {
	policy    *Policy
	columns   ColumnSource
	validator *Validator
}

func NewRewriter(policy *Policy, columns ColumnSource) *Rewriter {
	return &Rewriter{
		policy:    policy,
		columns:   columns,
		validator: NewValidator(policy),
	}
}

// Rewrite transforms stmt for execution under rowLimit. Applying Rewrite to
// its own output is a no-op: expanded statements contain no stars and
// already carry ORDER BY and LIMIT clauses.
func (rw *Rewriter) Rewrite(ctx context.Context, stmt *sqlparse.ParsedStatement, rowLimit int) (*Rewritten, error) {
	tree := stmt.CloneTree()
	sel := tree.Stmts[0].Stmt.GetSelectStmt()
	if sel == nil {
		return nil, fmt.Errorf("rewrite: statement is not a SELECT")
	}

	out := &Outcome{}
	scope := topLevelTables(sel.FromClause, stmt.CTENames)

	if rw.policy.ExpandSelectStar {
		rw.expandStars(ctx, sel, scope, out)
	}
	rw.injectOrdering(ctx, sel, scope, out)

	overfetch := false
	if sel.LimitCount == nil {
		sel.LimitCount = intConstNode(rowLimit + 1)
		sel.LimitOption = pg_query.LimitOption_LIMIT_OPTION_COUNT
		out.note("limit_injected")
		overfetch = true
	}

	finalSQL, err := pg_query.Deparse(tree)
	if err != nil {
		return nil, fmt.Errorf("deparse rewritten statement: %w", err)
	}

	rewritten, err := sqlparse.ParseBound(stmt.Source, finalSQL, stmt.ParamNames)
	if err != nil {
		return nil, fmt.Errorf("re-parse rewritten statement: %w", err)
	}

	// The rewrite must not have weakened any policy guarantee.
	if recheck := rw.validator.Validate(rewritten, nil); !recheck.OK() {
		return nil, fmt.Errorf("rewritten statement failed re-validation: %s",
			strings.Join(recheck.Violations, ", "))
	}

	return &Rewritten{
		Statement: rewritten,
		SQL:       finalSQL,
		Notes:     out.Notes,
		Overfetch: overfetch,
	}, nil
}

// expandStars replaces `*` and `alias.*` targets with explicit, aliased
// column lists. Exclusion rules apply here only; explicitly named columns
// are never filtered.
func (rw *Rewriter) expandStars(ctx context.Context, sel *pg_query.SelectStmt, scope []sqlparse.TableRef, out *Outcome) {
	var targets []*pg_query.Node
	expanded := false

	for _, target := range sel.TargetList {
		rt := target.GetResTarget()
		alias, isStar := starTarget(rt)
		if !isStar {
			targets = append(targets, target)
			continue
		}

		var refs []sqlparse.TableRef
		if alias == "" {
			refs = scope
		} else {
			for _, t := range scope {
				if strings.EqualFold(t.Alias, alias) {
					refs = append(refs, t)
					break
				}
			}
			if len(refs) == 0 {
				// subquery or CTE alias: no catalog entry to expand from
				targets = append(targets, target)
				out.note("star_expansion_skipped:" + alias)
				continue
			}
		}

		// Expansion is all or nothing per star target: a partial result
		// would duplicate columns against the retained star and re-expose
		// excluded columns through it.
		var replacements []*pg_query.Node
		failed := false
		for _, t := range refs {
			cols, err := rw.columns.Columns(ctx, t.Schema, t.Table)
			if err != nil {
				failed = true
				out.note("star_expansion_skipped:" + t.Alias)
				continue
			}
			for _, col := range cols {
				if rw.policy.ColumnExcluded(t.Schema, t.Table, col.Name, col.DataType) {
					continue
				}
				replacements = append(replacements, resTargetNode(
					columnAlias(t.Alias, col.Name),
					columnRefNode(t.Alias, col.Name),
				))
			}
		}
		if failed || len(replacements) == 0 {
			targets = append(targets, target)
			continue
		}
		targets = append(targets, replacements...)
		expanded = true
	}

	if expanded {
		sel.TargetList = targets
		out.note("star_expanded")
	}
}

// injectOrdering applies the default ordering heuristic when the author
// supplied no ORDER BY. This only makes top-N style questions deterministic;
// ties keep the database's natural order.
func (rw *Rewriter) injectOrdering(ctx context.Context, sel *pg_query.SelectStmt, scope []sqlparse.TableRef, out *Outcome) {
	if len(sel.SortClause) > 0 {
		return
	}

	if len(sel.GroupClause) > 0 {
		expr := proto.Clone(sel.GroupClause[0]).(*pg_query.Node)
		sel.SortClause = []*pg_query.Node{sortByNode(expr, false)}
		out.note("order_by_group_first")
		return
	}

	if len(sel.DistinctClause) > 0 {
		sel.SortClause = []*pg_query.Node{sortByNode(intConstNode(1), false)}
		out.note("order_by_ordinal_1")
		return
	}

	for _, t := range scope {
		if !rw.policy.TenantRequiredTables[strings.ToLower(t.Qualified())] {
			continue
		}
		cols, err := rw.columns.Columns(ctx, t.Schema, t.Table)
		if err != nil {
			break
		}
		present := make(map[string]bool, len(cols))
		for _, c := range cols {
			present[strings.ToLower(c.Name)] = true
		}
		for _, candidate := range rw.policy.OrderFallbackColumns {
			if !present[candidate] {
				continue
			}
			desc := candidate != "id"
			sel.SortClause = []*pg_query.Node{sortByNode(columnRefNode(t.Alias, candidate), desc)}
			out.note("order_by_" + candidate)
			return
		}
		break
	}

	sel.SortClause = []*pg_query.Node{sortByNode(intConstNode(1), false)}
	out.note("order_by_ordinal_1")
}

// starTarget reports whether rt projects `*` (alias "") or `alias.*`.
func starTarget(rt *pg_query.ResTarget) (alias string, ok bool) {
	if rt == nil || rt.Val == nil {
		return "", false
	}
	ref := rt.Val.GetColumnRef()
	if ref == nil || len(ref.Fields) == 0 {
		return "", false
	}
	last := ref.Fields[len(ref.Fields)-1]
	if last.GetAStar() == nil {
		return "", false
	}
	if len(ref.Fields) == 1 {
		return "", true
	}
	if len(ref.Fields) == 2 {
		if s := ref.Fields[0].GetString_(); s != nil {
			return s.Sval, true
		}
	}
	return "", false
}

// topLevelTables lists the physical tables of the statement's own FROM
// clause, in order, without descending into subqueries.
func topLevelTables(from []*pg_query.Node, cteNames []string) []sqlparse.TableRef {
	cte := make(map[string]bool, len(cteNames))
	for _, n := range cteNames {
		cte[n] = true
	}

	var refs []sqlparse.TableRef
	var visit func(n *pg_query.Node)
	visit = func(n *pg_query.Node) {
		if n == nil {
			return
		}
		if rv := n.GetRangeVar(); rv != nil {
			if rv.Relname == "" || (rv.Schemaname == "" && cte[rv.Relname]) {
				return
			}
			ref := sqlparse.TableRef{Schema: rv.Schemaname, Table: rv.Relname, Alias: rv.Relname}
			if ref.Schema == "" {
				ref.Schema = "public"
			}
			if rv.Alias != nil && rv.Alias.Aliasname != "" {
				ref.Alias = rv.Alias.Aliasname
			}
			refs = append(refs, ref)
			return
		}
		if j := n.GetJoinExpr(); j != nil {
			visit(j.Larg)
			visit(j.Rarg)
		}
	}
	for _, n := range from {
		visit(n)
	}
	return refs
}

var (
	aliasNonIdent   = regexp.MustCompile(`[^a-z0-9_]+`)
	aliasUnderscore = regexp.MustCompile(`_+`)
)

// columnAlias builds the lower snake_case output name <alias>_<column>.
func columnAlias(tableAlias, column string) string {
	a := strings.ToLower(tableAlias + "_" + column)
	a = aliasNonIdent.ReplaceAllString(a, "_")
	a = aliasUnderscore.ReplaceAllString(a, "_")
	return strings.Trim(a, "_")
}

func strNode(s string) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_String_{String_: &pg_query.String{Sval: s}}}
}

func columnRefNode(names ...string) *pg_query.Node {
	fields := make([]*pg_query.Node, len(names))
	for i, n := range names {
		fields[i] = strNode(n)
	}
	return &pg_query.Node{Node: &pg_query.Node_ColumnRef{
		ColumnRef: &pg_query.ColumnRef{Fields: fields},
	}}
}

func resTargetNode(name string, val *pg_query.Node) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_ResTarget{
		ResTarget: &pg_query.ResTarget{Name: name, Val: val},
	}}
}

func sortByNode(expr *pg_query.Node, desc bool) *pg_query.Node {
	dir := pg_query.SortByDir_SORTBY_ASC
	if desc {
		dir = pg_query.SortByDir_SORTBY_DESC
	}
	return &pg_query.Node{Node: &pg_query.Node_SortBy{
		SortBy: &pg_query.SortBy{
			Node:        expr,
			SortbyDir:   dir,
			SortbyNulls: pg_query.SortByNulls_SORTBY_NULLS_DEFAULT,
		},
	}}
}

func intConstNode(v int) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_AConst{
		AConst: &pg_query.A_Const{
			Val: &pg_query.A_Const_Ival{Ival: &pg_query.Integer{Ival: int32(v)}},
		},
	}}
}
