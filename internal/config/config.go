package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Credential maps an API key to a verified tenant and caller.
type Credential struct {
	APIKey     string `json:"api_key"`
	BusinessID int64  `json:"business_id"`
	UserID     int64  `json:"user_id"`
}

// PolicyConfig is the process-wide query policy. It is loaded once at
// startup and treated as immutable for the process lifetime; components
// receive it explicitly so tests can substitute alternate policies.
type PolicyConfig struct {
	AllowedSchemas       []string `json:"allowed_schemas"`
	AllowedTables        []string `json:"allowed_tables"`
	TenantRequiredTables []string `json:"tenant_required_tables"`
	TenantColumn         string   `json:"tenant_column"`
	TenantParam          string   `json:"tenant_param"`

	FunctionDenylist []string `json:"function_denylist"`

	ExpandSelectStar          bool     `json:"expand_select_star"`
	ExpandExcludeTypes        []string `json:"expand_exclude_types"`
	ExpandExcludeNamePatterns []string `json:"expand_exclude_name_patterns"`
	ExpandExcludeColumns      []string `json:"expand_exclude_columns"`

	OrderFallbackColumns []string `json:"order_fallback_columns"`

	DefaultRowLimit int     `json:"default_row_limit"`
	MaxRowLimit     int     `json:"max_row_limit"`
	DefaultTimeoutS float64 `json:"default_timeout_s"`
	MaxTimeoutS     float64 `json:"max_timeout_s"`

	LockTimeoutMs     int    `json:"lock_timeout_ms"`
	IdleInTxTimeoutMs int    `json:"idle_in_tx_timeout_ms"`
	WorkMem           string `json:"work_mem"`
}

type Config struct {
	// Server
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Environment string `json:"environment"`
	APIPrefix   string `json:"api_prefix"`
	LogLevel    string `json:"log_level"`

	// CORS
	CORSOrigins []string `json:"cors_origins"`

	// Auth
	APIKeyHeader string       `json:"api_key_header"`
	Credentials  []Credential `json:"credentials"`
	EnableAuth   bool         `json:"enable_auth"`

	// Rate Limiting
	RateLimitPerMinute int `json:"rate_limit_per_minute"`

	// Database
	DatabaseURL string `json:"database_url"`
	DBMaxConns  int    `json:"db_max_conns"`
	DBMinConns  int    `json:"db_min_conns"`

	// Audit
	EnableAuditLogging bool `json:"enable_audit_logging"`

	// AI / LLM (NL -> draft SQL generator)
	AnthropicAPIKey  string `json:"anthropic_api_key"`
	AnthropicBaseURL string `json:"anthropic_base_url"` // override for custom proxy
	AnthropicModel   string `json:"anthropic_model"`

	// Error surface
	Always200OnErrors bool `json:"always_200_on_errors"`

	// Query policy
	Policy PolicyConfig `json:"policy"`
}

// Production reports whether client-facing error sanitization applies.
func (c *Config) Production() bool {
	return c.Environment == "production"
}

func Load() (*Config, error) {
	cfg := &Config{
		Host:               DefaultHost,
		Port:               DefaultPort,
		Environment:        DefaultEnvironment,
		APIPrefix:          DefaultAPIPrefix,
		LogLevel:           DefaultLogLevel,
		CORSOrigins:        DefaultCORSOrigins,
		APIKeyHeader:       "X-API-Key",
		EnableAuth:         true,
		RateLimitPerMinute: DefaultRateLimitPerMinute,
		DBMaxConns:         DefaultDBMaxConns,
		DBMinConns:         DefaultDBMinConns,
		EnableAuditLogging: true,
		AnthropicModel:     DefaultAnthropicModel,
		Policy:             DefaultPolicy(),
	}

	// Load from JSON config file if specified
	if path := getEnv("QUERYGUARD_CONFIG", ""); path != "" {
		if err := loadJSON(path, cfg); err != nil {
			return nil, err
		}
	}

	// Environment overrides
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func loadJSON(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) error {
	if v := getEnv("QUERYGUARD_HOST", ""); v != "" {
		cfg.Host = v
	}
	if v := getEnv("QUERYGUARD_PORT", ""); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := getEnv("QUERYGUARD_ENV", ""); v != "" {
		cfg.Environment = v
	}
	if v := getEnv("QUERYGUARD_LOG_LEVEL", ""); v != "" {
		cfg.LogLevel = v
	}
	if v := getEnv("DATABASE_URL", ""); v != "" {
		cfg.DatabaseURL = v
	}
	if v := getEnv("ANTHROPIC_API_KEY", ""); v != "" {
		cfg.AnthropicAPIKey = v
	}
	if v := getEnv("ANTHROPIC_BASE_URL", ""); v != "" {
		cfg.AnthropicBaseURL = v
	}
	if v := getEnv("ANTHROPIC_MODEL", ""); v != "" {
		cfg.AnthropicModel = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		if r, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitPerMinute = r
		}
	}
	if v := getEnv("ENABLE_AUTH", ""); v != "" {
		cfg.EnableAuth = v == "true" || v == "1"
	}
	if v := getEnv("QUERYGUARD_ALWAYS_200", ""); v != "" {
		cfg.Always200OnErrors = v == "true" || v == "1"
	}
	if v := getEnv("QUERYGUARD_CREDENTIALS", ""); v != "" {
		creds, err := parseCredentials(v)
		if err != nil {
			return err
		}
		cfg.Credentials = creds
	}
	return nil
}

// parseCredentials accepts "key:business_id:user_id" entries separated by
// commas, e.g. "k1:12:34,k2:7:9".
func parseCredentials(raw string) ([]Credential, error) {
	var creds []Credential
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed credential entry %q: want key:business_id:user_id", entry)
		}
		businessID, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed business_id in credential entry %q", entry)
		}
		userID, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed user_id in credential entry %q", entry)
		}
		creds = append(creds, Credential{APIKey: parts[0], BusinessID: businessID, UserID: userID})
	}
	return creds, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
