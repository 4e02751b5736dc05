// Package guard holds the policy validator and the deterministic rewriter
// that together make an untrusted SELECT safe to execute: statement-kind and
// feature checks, object and function allow/deny lists, tenant scoping, star
// expansion, ordering and limit injection. All analysis runs on the
// PostgreSQL parse tree produced by sqlparse; nothing here executes SQL.
package guard

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/queryguard/queryguard/internal/config"
)

// Policy is the compiled, immutable form of config.PolicyConfig. Construct
// one per process (or per test) and share it read-only.
type Policy struct {
	AllowedSchemas       map[string]bool
	AllowedTables        map[string]bool
	TenantRequiredTables map[string]bool
	TenantColumn         string
	TenantParam          string

	DeniedFunctions []*regexp.Regexp

	ExpandSelectStar    bool
	ExcludeTypes        map[string]bool
	ExcludeNamePatterns []*regexp.Regexp
	ExcludeColumns      map[string]bool

	OrderFallbackColumns []string
}

// NewPolicy compiles the configured policy. Deny-list and name-pattern
// entries are case-insensitive regular expressions.
func NewPolicy(cfg config.PolicyConfig) (*Policy, error) {
	p := &Policy{
		AllowedSchemas:       toLowerSet(cfg.AllowedSchemas),
		AllowedTables:        toLowerSet(cfg.AllowedTables),
		TenantRequiredTables: toLowerSet(cfg.TenantRequiredTables),
		TenantColumn:         strings.ToLower(cfg.TenantColumn),
		TenantParam:          strings.ToLower(cfg.TenantParam),
		ExpandSelectStar:     cfg.ExpandSelectStar,
		ExcludeTypes:         toLowerSet(cfg.ExpandExcludeTypes),
		ExcludeColumns:       toLowerSet(cfg.ExpandExcludeColumns),
		OrderFallbackColumns: cfg.OrderFallbackColumns,
	}

	for _, pat := range cfg.FunctionDenylist {
		re, err := regexp.Compile("(?i)" + pat)
		if err != nil {
			return nil, fmt.Errorf("compile function denylist pattern %q: %w", pat, err)
		}
		p.DeniedFunctions = append(p.DeniedFunctions, re)
	}
	for _, pat := range cfg.ExpandExcludeNamePatterns {
		re, err := regexp.Compile("(?i)" + pat)
		if err != nil {
			return nil, fmt.Errorf("compile exclusion pattern %q: %w", pat, err)
		}
		p.ExcludeNamePatterns = append(p.ExcludeNamePatterns, re)
	}
	return p, nil
}

// ColumnExcluded reports whether a column is withheld from star expansion.
// Explicitly named columns are never subject to these rules.
func (p *Policy) ColumnExcluded(schema, table, column, dataType string) bool {
	if p.ExcludeTypes[strings.ToLower(dataType)] {
		return true
	}
	for _, re := range p.ExcludeNamePatterns {
		if re.MatchString(column) {
			return true
		}
	}
	fq := strings.ToLower(schema + "." + table + "." + column)
	return p.ExcludeColumns[fq]
}

func toLowerSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[strings.ToLower(it)] = true
	}
	return set
}
