// Package generator turns natural-language questions into candidate SQL.
// Generated text is untrusted input: everything produced here still goes
// through the full parse, validate, and rewrite pipeline.
package generator

import "context"

// SchemaTable describes one allow-listed table surfaced in the prompt.
type SchemaTable struct {
	Schema  string
	Table   string
	Columns []string
}

// Generator produces a single SELECT statement for a question. Hints are
// caller-supplied steering lines shown to the model alongside the question.
// The statement uses :name parameters and must reference the tenant
// parameter where the schema demands it; the guard verifies both.
type Generator interface {
	GenerateSQL(ctx context.Context, question string, hints []string, schema []SchemaTable) (string, error)
}
