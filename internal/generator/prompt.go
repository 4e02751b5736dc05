package generator

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxQuestionLength caps the question before it reaches the model.
const MaxQuestionLength = 2000

// injectionPatterns flag prompt injection and shell or code execution
// attempts inside a question. The question never executes anything itself;
// rejecting early just keeps garbage out of the model and the audit log.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?previous\s+instructions`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?previous\s+instructions`),
	regexp.MustCompile(`(?i)override\s+(all\s+)?previous\s+instructions`),
	regexp.MustCompile(`(?i)new\s+context\s*:`),
	regexp.MustCompile(`(?i)change\s+context\s*:`),
	regexp.MustCompile(`(?i)instead\s+of\s+the\s+above`),
	regexp.MustCompile(`(?i)\bsudo\s+`),
	regexp.MustCompile(`(?i)\brm\s+-`),
	regexp.MustCompile(`(?i)\bcurl\s+`),
	regexp.MustCompile(`(?i)\bwget\s+`),
	regexp.MustCompile(`(?i)eval\s*\(`),
	regexp.MustCompile(`(?i)exec\s*\(`),
	regexp.MustCompile(`(?i)__import__\s*\(`),
	regexp.MustCompile(`(?i)subprocess`),
	regexp.MustCompile(`(?i)os\.system`),
	regexp.MustCompile(`\.\./`),
	regexp.MustCompile(`/etc/passwd`),
	regexp.MustCompile(`/etc/shadow`),
	regexp.MustCompile(`id_rsa`),
	regexp.MustCompile(`\.ssh/`),
}

// ScreenQuestion rejects questions that are empty, oversized, or carry
// injection markers. It deliberately has no keyword allow-list: any topic
// is fine, the SQL guard decides what actually runs.
func ScreenQuestion(question string) error {
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("question cannot be empty")
	}
	if len(question) > MaxQuestionLength {
		return fmt.Errorf("question too long: %d chars (max %d)", len(question), MaxQuestionLength)
	}
	for _, pattern := range injectionPatterns {
		if pattern.MatchString(question) {
			return fmt.Errorf("question contains a disallowed pattern")
		}
	}
	return nil
}
