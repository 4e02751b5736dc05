package models

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// ColumnMeta describes one result column when tracing is requested.
type ColumnMeta struct {
	Name         string  `json:"name"`
	DBType       *string `json:"db_type"`
	GoType       string  `json:"go_type"`
	Nullable     bool    `json:"nullable"`
	SerializedAs string  `json:"serialized_as"`
}

// ResultMeta carries per-column metadata under data.meta.
type ResultMeta struct {
	Columns []ColumnMeta `json:"columns"`
}

// AnalysisData is the data section of a successful analysis response.
type AnalysisData struct {
	SQL         string      `json:"sql"`
	Columns     []string    `json:"columns"`
	Rows        [][]any     `json:"rows"`
	RowCount    int         `json:"row_count"`
	Truncated   bool        `json:"truncated"`
	ExecutionMs int64       `json:"execution_ms"`
	TraceID     string      `json:"trace_id"`
	GuardNotes  []string    `json:"guard_notes,omitempty"`
	Warnings    []string    `json:"warnings,omitempty"`
	Meta        *ResultMeta `json:"meta,omitempty"`
}

// AnalysisResponse is the envelope for POST /api/v1/analysis. On errors SQL
// holds the guarded statement when rewriting completed before the failure.
type AnalysisResponse struct {
	OK        bool           `json:"ok"`
	Data      *AnalysisData  `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorType string         `json:"error_type,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	SQL       string         `json:"sql,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
}

// TableInfo describes one allow-listed table for GET /api/v1/tables.
type TableInfo struct {
	Schema       string        `json:"schema"`
	Table        string        `json:"table"`
	TenantScoped bool          `json:"tenant_scoped"`
	Columns      []TableColumn `json:"columns,omitempty"`
}

// TableColumn is a single catalog column surfaced to clients. Columns the
// star-expansion rules exclude are omitted from listings as well.
type TableColumn struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
}
