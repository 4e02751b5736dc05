package generator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"
)

// AnthropicGenerator produces SQL with a single Claude call. No tool loop:
// the model sees the allow-listed schema and answers with one statement.
type AnthropicGenerator struct {
	client      *anthropic.Client
	model       string
	maxTokens   int
	tenantParam string
}

func NewAnthropicGenerator(apiKey, model, baseURL, tenantParam string) *AnthropicGenerator {
	if model == "" {
		model = "claude-sonnet-4-6"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicGenerator{
		client:      anthropic.NewClient(opts...),
		model:       model,
		maxTokens:   1024,
		tenantParam: tenantParam,
	}
}

func (g *AnthropicGenerator) GenerateSQL(ctx context.Context, question string, hints []string, schema []SchemaTable) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.F(anthropic.Model(g.model)),
		MaxTokens: anthropic.F(int64(g.maxTokens)),
		System: anthropic.F([]anthropic.TextBlockParam{
			anthropic.NewTextBlock(g.systemPrompt(schema)),
		}),
		Messages: anthropic.F([]anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(question, hints))),
		}),
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("LLM call failed: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if b, ok := block.AsUnion().(anthropic.TextBlock); ok {
			text += b.Text
		}
	}

	sql := ExtractSQL(text)
	if sql == "" {
		log.Warn().Str("model", g.model).Msg("model reply contained no SQL")
		return "", fmt.Errorf("model produced no SQL statement")
	}
	return sql, nil
}

func (g *AnthropicGenerator) systemPrompt(schema []SchemaTable) string {
	var b strings.Builder
	b.WriteString("You translate analytics questions into a single PostgreSQL SELECT statement.\n\n")
	b.WriteString("Available tables:\n")
	for _, t := range schema {
		b.WriteString(fmt.Sprintf("- %s.%s (%s)\n", t.Schema, t.Table, strings.Join(t.Columns, ", ")))
	}
	b.WriteString("\nRules:\n")
	b.WriteString("- Output exactly one SELECT statement inside a ```sql code block.\n")
	b.WriteString("- Use :name placeholders for every runtime value.\n")
	fmt.Fprintf(&b, "- Every table must be filtered by its %s column using the :%s placeholder, including each side of every join.\n",
		g.tenantParam, g.tenantParam)
	b.WriteString("- Never use INSERT, UPDATE, DELETE, DDL, set operations, or locking clauses.\n")
	b.WriteString("- Prefer explicit column lists over SELECT *.\n")
	return b.String()
}

func userPrompt(question string, hints []string) string {
	if len(hints) == 0 {
		return question
	}
	var b strings.Builder
	b.WriteString(question)
	b.WriteString("\n\nHints:\n")
	for _, h := range hints {
		b.WriteString("- ")
		b.WriteString(h)
		b.WriteString("\n")
	}
	return b.String()
}

var sqlBlockRE = regexp.MustCompile("(?s)```sql\\s*(.*?)```")

// ExtractSQL pulls the statement out of a model reply: the first ```sql
// fenced block, or the whole reply when it already starts with SELECT or
// WITH.
func ExtractSQL(text string) string {
	if m := sqlBlockRE.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	trimmed := strings.TrimSpace(text)
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH") {
		return trimmed
	}
	return ""
}
