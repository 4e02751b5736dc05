package guard_test

import (
	"testing"

	"github.com/queryguard/queryguard/internal/config"
	"github.com/queryguard/queryguard/internal/guard"
)

// ─── Policy Compilation ───────────────────────────────────────────────────────

func TestNewPolicyRejectsBadDenylistPattern(t *testing.T) {
	cfg := config.DefaultPolicy()
	cfg.FunctionDenylist = append(cfg.FunctionDenylist, "(unclosed")
	if _, err := guard.NewPolicy(cfg); err == nil {
		t.Fatal("NewPolicy accepted an invalid denylist pattern")
	}
}

func TestNewPolicyRejectsBadExclusionPattern(t *testing.T) {
	cfg := config.DefaultPolicy()
	cfg.ExpandExcludeNamePatterns = []string{"[broken"}
	if _, err := guard.NewPolicy(cfg); err == nil {
		t.Fatal("NewPolicy accepted an invalid exclusion pattern")
	}
}
