package guard

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/proto"

	"github.com/queryguard/queryguard/internal/sqlparse"
)

// Validator applies the full policy to a parsed statement. It never mutates
// the statement and collects every applicable violation in one pass so the
// caller gets an actionable list, not just the first failure.
type Validator struct {
	policy *Policy
}

func NewValidator(policy *Policy) *Validator {
	return &Validator{policy: policy}
}

// Validate checks stmt against the policy. clientParams are the caller's
// named bindings; supplying the tenant parameter there is itself a
// violation, since tenant binding is server-derived only.
func (v *Validator) Validate(stmt *sqlparse.ParsedStatement, clientParams map[string]any) *Outcome {
	out := &Outcome{}

	if stmt.MultiStatement {
		out.violate("multiple_statements")
	}

	switch stmt.Kind {
	case sqlparse.KindSetOperation:
		out.violate("set_operations_disallowed")
	case sqlparse.KindSelect:
		if stmt.Flags.HasSelectInto {
			out.violate("non_select_statement")
		}
		if stmt.Flags.HasLockingClause {
			out.violate("locking_clause_disallowed")
		}
	default:
		out.violate("non_select_statement")
	}

	if stmt.Flags.UsesRecursiveCTE {
		out.violate("with_recursive_disallowed")
	}
	if stmt.Flags.UsesLateral {
		out.violate("lateral_joins_disallowed")
	}

	v.checkObjects(stmt, out)
	v.checkFunctions(stmt, out)

	if stmt.Kind == sqlparse.KindSelect {
		v.checkTenant(stmt, out)
	}

	for name := range clientParams {
		if strings.ToLower(name) == v.policy.TenantParam {
			out.violate("tenant_param_not_allowed:" + v.policy.TenantParam)
		}
	}

	return out
}

func (v *Validator) checkObjects(stmt *sqlparse.ParsedStatement, out *Outcome) {
	schemas := make(map[string]bool)
	for _, t := range stmt.Tables {
		schemas[strings.ToLower(t.Schema)] = true
	}
	if len(schemas) > 1 {
		out.violate("cross_schema_join")
	}

	for _, t := range stmt.Tables {
		schema := strings.ToLower(t.Schema)
		if !v.policy.AllowedSchemas[schema] {
			out.violate("schema_not_allowed:" + schema)
			continue
		}
		fq := strings.ToLower(t.Qualified())
		if !v.policy.AllowedTables[fq] {
			out.violate("table_not_allowed:" + fq)
		}
	}
}

func (v *Validator) checkFunctions(stmt *sqlparse.ParsedStatement, out *Outcome) {
	for _, fn := range stmt.Functions {
		for _, re := range v.policy.DeniedFunctions {
			if re.MatchString(fn) {
				out.violate("function_denied:" + fn)
				break
			}
		}
	}
}

// checkTenant enforces the global and per-alias tenant predicates. A
// predicate only counts when it is unconditionally ANDed: a top-level WHERE
// conjunct or a JOIN ON conjunct. OR-combined or negated occurrences do not
// satisfy the requirement.
func (v *Validator) checkTenant(stmt *sqlparse.ParsedStatement, out *Outcome) {
	pos := sqlparse.ParamPosition(stmt.ParamNames, v.policy.TenantParam)

	conjuncts := collectConjuncts(stmt)

	global := false
	if pos > 0 {
		for _, c := range conjuncts {
			if tenantEquality(c, v.policy.TenantColumn, int32(pos), "") {
				global = true
				break
			}
		}
	}
	if !global {
		out.violate("missing_tenant_scope")
	}

	required := 0
	satisfied := 0
	seen := make(map[string]bool)
	for _, t := range stmt.Tables {
		fq := strings.ToLower(t.Qualified())
		if !v.policy.TenantRequiredTables[fq] {
			continue
		}
		alias := strings.ToLower(t.Alias)
		if seen[alias] {
			continue
		}
		seen[alias] = true
		required++

		ok := false
		if pos > 0 {
			for _, c := range conjuncts {
				if tenantEquality(c, v.policy.TenantColumn, int32(pos), alias) {
					ok = true
					break
				}
			}
		}
		if ok {
			satisfied++
		} else {
			out.violate("missing_tenant_scope_for_alias:" + t.Alias)
		}
	}
	if required > 0 && required == satisfied {
		out.note("tenant_per_alias_ok")
	}
}

// collectConjuncts flattens every WHERE clause's top-level AND chain and
// every JOIN condition's AND chain across all SELECT scopes, including CTE
// bodies and subqueries.
func collectConjuncts(stmt *sqlparse.ParsedStatement) []*pg_query.Node {
	var conjuncts []*pg_query.Node
	sqlparse.Walk(stmt.Tree(), func(m proto.Message) bool {
		switch n := m.(type) {
		case *pg_query.SelectStmt:
			conjuncts = append(conjuncts, flattenAnd(n.WhereClause)...)
		case *pg_query.JoinExpr:
			conjuncts = append(conjuncts, flattenAnd(n.Quals)...)
		}
		return true
	})
	return conjuncts
}

func flattenAnd(node *pg_query.Node) []*pg_query.Node {
	if node == nil {
		return nil
	}
	if b := node.GetBoolExpr(); b != nil && b.Boolop == pg_query.BoolExprType_AND_EXPR {
		var out []*pg_query.Node
		for _, arg := range b.Args {
			out = append(out, flattenAnd(arg)...)
		}
		return out
	}
	return []*pg_query.Node{node}
}

// tenantEquality reports whether node is `<col> = $pos` (alias == "") or
// `<alias>.<col> = $pos`, in either operand order, case-insensitively.
func tenantEquality(node *pg_query.Node, col string, pos int32, alias string) bool {
	a := node.GetAExpr()
	if a == nil || a.Kind != pg_query.A_Expr_Kind_AEXPR_OP {
		return false
	}
	if len(a.Name) != 1 {
		return false
	}
	op := a.Name[0].GetString_()
	if op == nil || op.Sval != "=" {
		return false
	}
	if isTenantColumn(a.Lexpr, col, alias) && isParamRef(a.Rexpr, pos) {
		return true
	}
	return isTenantColumn(a.Rexpr, col, alias) && isParamRef(a.Lexpr, pos)
}

func isTenantColumn(node *pg_query.Node, col, alias string) bool {
	if node == nil {
		return false
	}
	ref := node.GetColumnRef()
	if ref == nil || len(ref.Fields) == 0 {
		return false
	}
	last := ref.Fields[len(ref.Fields)-1].GetString_()
	if last == nil || !strings.EqualFold(last.Sval, col) {
		return false
	}
	if alias == "" {
		return true
	}
	if len(ref.Fields) != 2 {
		return false
	}
	first := ref.Fields[0].GetString_()
	return first != nil && strings.EqualFold(first.Sval, alias)
}

func isParamRef(node *pg_query.Node, pos int32) bool {
	if node == nil {
		return false
	}
	p := node.GetParamRef()
	return p != nil && p.Number == pos
}
