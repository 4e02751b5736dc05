package config

const (
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8000
	DefaultEnvironment = "development"
	DefaultAPIPrefix   = "/api/v1"
	DefaultLogLevel    = "info"

	DefaultRateLimitPerMinute = 60

	DefaultDBMaxConns = 10
	DefaultDBMinConns = 2

	DefaultAnthropicModel = "claude-sonnet-4-6"
)

var DefaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:8080",
}

// DefaultPolicy returns the built-in query policy. Everything not listed is
// denied by default.
func DefaultPolicy() PolicyConfig {
	return PolicyConfig{
		AllowedSchemas: []string{"public"},
		AllowedTables: []string{
			"public.documents",
			"public.clients",
			"public.projects",
			"public.line_items",
			"public.extracted_fields",
			"public.categories",
		},
		TenantRequiredTables: []string{
			"public.documents",
			"public.clients",
			"public.projects",
			"public.line_items",
			"public.extracted_fields",
		},
		TenantColumn: "business_id",
		TenantParam:  "business_id",

		FunctionDenylist: []string{
			"^pg_sleep",
			"^pg_read_file",
			"^pg_read_binary_file",
			"^pg_ls_dir",
			"^pg_stat_file",
			"^dblink",
			"^set_config",
			"^pg_terminate_backend",
			"^pg_cancel_backend",
			"^pg_reload_conf",
			"^lo_import",
			"^lo_export",
		},

		ExpandSelectStar:          true,
		ExpandExcludeTypes:        []string{"bytea"},
		ExpandExcludeNamePatterns: []string{"password", "secret", "api[_-]?key", "token"},
		ExpandExcludeColumns:      []string{"public.documents.file_url"},

		OrderFallbackColumns: []string{"created_at", "issued_on", "updated_at", "date", "id"},

		DefaultRowLimit: 500,
		MaxRowLimit:     5000,
		DefaultTimeoutS: 5,
		MaxTimeoutS:     30,

		LockTimeoutMs:     1000,
		IdleInTxTimeoutMs: 5000,
	}
}
