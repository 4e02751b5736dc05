package sqlparse_test

import (
	"reflect"
	"testing"

	"github.com/queryguard/queryguard/internal/sqlparse"
)

// ─── Named Parameter Binding ──────────────────────────────────────────────────

func TestBindNamedParams(t *testing.T) {
	tests := []struct {
		name      string
		sql       string
		wantSQL   string
		wantNames []string
	}{
		{
			name:      "single param",
			sql:       "SELECT id FROM documents WHERE business_id = :business_id",
			wantSQL:   "SELECT id FROM documents WHERE business_id = $1",
			wantNames: []string{"business_id"},
		},
		{
			name:      "repeated param shares position",
			sql:       "SELECT :a + :b + :a",
			wantSQL:   "SELECT $1 + $2 + $1",
			wantNames: []string{"a", "b"},
		},
		{
			name:      "names ordered by first occurrence",
			sql:       "SELECT 1 WHERE x = :second_seen_first AND y = :other",
			wantSQL:   "SELECT 1 WHERE x = $1 AND y = $2",
			wantNames: []string{"second_seen_first", "other"},
		},
		{
			name:      "param names lowercased",
			sql:       "SELECT 1 WHERE a = :Business_ID AND b = :business_id",
			wantSQL:   "SELECT 1 WHERE a = $1 AND b = $1",
			wantNames: []string{"business_id"},
		},
		{
			name:      "colon in string literal untouched",
			sql:       "SELECT ':not_a_param' WHERE a = :real",
			wantSQL:   "SELECT ':not_a_param' WHERE a = $1",
			wantNames: []string{"real"},
		},
		{
			name:      "colon in quoted identifier untouched",
			sql:       `SELECT ":weird col" FROM t WHERE a = :p`,
			wantSQL:   `SELECT ":weird col" FROM t WHERE a = $1`,
			wantNames: []string{"p"},
		},
		{
			name:      "type cast untouched",
			sql:       "SELECT a::text FROM t WHERE b = :p",
			wantSQL:   "SELECT a::text FROM t WHERE b = $1",
			wantNames: []string{"p"},
		},
		{
			name:      "line comment untouched",
			sql:       "SELECT 1 -- :nope\nWHERE a = :p",
			wantSQL:   "SELECT 1 -- :nope\nWHERE a = $1",
			wantNames: []string{"p"},
		},
		{
			name:      "block comment untouched",
			sql:       "SELECT 1 /* :nope */ WHERE a = :p",
			wantSQL:   "SELECT 1 /* :nope */ WHERE a = $1",
			wantNames: []string{"p"},
		},
		{
			name:      "dollar quoted body untouched",
			sql:       "SELECT $tag$ :nope $tag$ WHERE a = :p",
			wantSQL:   "SELECT $tag$ :nope $tag$ WHERE a = $1",
			wantNames: []string{"p"},
		},
		{
			name:      "no params",
			sql:       "SELECT 1",
			wantSQL:   "SELECT 1",
			wantNames: nil,
		},
		{
			name:      "escaped quote inside literal",
			sql:       "SELECT 'it''s :fine' WHERE a = :p",
			wantSQL:   "SELECT 'it''s :fine' WHERE a = $1",
			wantNames: []string{"p"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, names, err := sqlparse.BindNamedParams(tt.sql)
			if err != nil {
				t.Fatalf("BindNamedParams(%q) error: %v", tt.sql, err)
			}
			if got != tt.wantSQL {
				t.Errorf("bound SQL = %q, want %q", got, tt.wantSQL)
			}
			if !reflect.DeepEqual(names, tt.wantNames) {
				t.Errorf("names = %v, want %v", names, tt.wantNames)
			}
		})
	}
}

func TestBindNamedParamsUnterminated(t *testing.T) {
	for _, sql := range []string{
		"SELECT 'unterminated",
		"SELECT /* unterminated",
	} {
		if _, _, err := sqlparse.BindNamedParams(sql); err == nil {
			t.Errorf("BindNamedParams(%q) expected error", sql)
		}
	}
}

// ─── Parameter Position ───────────────────────────────────────────────────────

func TestParamPosition(t *testing.T) {
	names := []string{"business_id", "since"}
	if got := sqlparse.ParamPosition(names, "since"); got != 2 {
		t.Errorf("ParamPosition(since) = %d, want 2", got)
	}
	if got := sqlparse.ParamPosition(names, "Business_ID"); got != 1 {
		t.Errorf("ParamPosition(Business_ID) = %d, want 1", got)
	}
	if got := sqlparse.ParamPosition(names, "missing"); got != 0 {
		t.Errorf("ParamPosition(missing) = %d, want 0", got)
	}
}
