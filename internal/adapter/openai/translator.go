package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"nlsql/internal/core/port"
)

// Options configures the translator.
type Options struct {
	APIKey  string
	Model   string
	BaseURL string
}

const (
	defaultModel = "gpt-4o-mini"

	// Low temperature keeps identical questions translating to the same SQL.
	translateTemperature = 0.1
	translateMaxTokens   = 500
)

// Translator implements port.Translator on top of an OpenAI-compatible
// chat completion API. It builds the prompt from the schema snapshot and
// post-processes the completion into a single bare SQL statement.
type Translator struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

func NewTranslator(opts Options, logger *slog.Logger) *Translator {
	if opts.Model == "" {
		opts.Model = defaultModel
	}

	t := &Translator{model: opts.Model, logger: logger}
	if opts.APIKey == "" {
		return t
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	t.client = openai.NewClientWithConfig(cfg)
	return t
}

// Available implements port.Translator.
func (t *Translator) Available() bool { return t.client != nil }

// Translate implements port.Translator. Failures are folded into the
// result; the translation is attempted exactly once.
func (t *Translator) Translate(ctx context.Context, req port.TranslationRequest) *port.TranslationResult {
	if t.client == nil {
		return &port.TranslationResult{Err: "translator is not configured (missing API key)"}
	}

	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(req.Schemas, req.Backend, req.Kind)},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(req.Text, req.Kind)},
		},
		Temperature: translateTemperature,
		MaxTokens:   translateMaxTokens,
	})
	if err != nil {
		t.logger.Warn("translation request failed", slog.String("error", err.Error()))
		return &port.TranslationResult{Err: err.Error()}
	}
	if len(resp.Choices) == 0 {
		return &port.TranslationResult{Err: "model returned no completion"}
	}

	sql := cleanSQL(resp.Choices[0].Message.Content)
	if !strings.HasPrefix(strings.ToUpper(sql), string(req.Kind)) {
		return &port.TranslationResult{
			Err: fmt.Sprintf("generated statement is not a %s statement", req.Kind),
		}
	}

	t.logger.Info("translated natural language to SQL",
		slog.String("kind", string(req.Kind)),
		slog.String("model", t.model),
	)
	return &port.TranslationResult{Success: true, SQL: sql, Model: t.model}
}

func systemPrompt(schemas []*port.TableSchema, backend port.Backend, kind port.StatementKind) string {
	var b strings.Builder
	for _, table := range schemas {
		fmt.Fprintf(&b, "\nTable: %s\nColumns:\n", table.TableName)
		for _, col := range table.Columns {
			nullable := "NOT NULL"
			if col.IsNullable {
				nullable = "NULL"
			}
			fmt.Fprintf(&b, "  - %s (%s) %s\n", col.Name, col.DataType, nullable)
		}
		if len(table.PrimaryKeys) > 0 {
			fmt.Fprintf(&b, "Primary Keys: %s\n", strings.Join(table.PrimaryKeys, ", "))
		}
		if len(table.ForeignKeys) > 0 {
			refs := make([]string, 0, len(table.ForeignKeys))
			for _, fk := range table.ForeignKeys {
				refs = append(refs, fmt.Sprintf("%s -> %s.%s", fk.Column, fk.ReferencedTable, fk.ReferencedColumn))
			}
			fmt.Fprintf(&b, "Foreign Keys: %s\n", strings.Join(refs, ", "))
		}
		b.WriteString("\n")
	}

	return fmt.Sprintf(`You are an expert SQL translator for %s databases.
Your task is to convert natural language queries into valid %s SQL statements.

Database Schema:
%s
Guidelines:
1. Generate only valid %s SQL syntax
2. Use appropriate table and column names from the schema
3. For %s queries, ensure proper syntax and safety measures
4. Do not include explanations, only return the SQL statement
5. Use double quotes for identifiers if needed
6. Be precise with data types and constraints
`, backend, kind, b.String(), backend, kind)
}

func userPrompt(text string, kind port.StatementKind) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Please convert this natural language request to a %s SQL statement:\n\n%q\n\n", kind, text)
	b.WriteString("Return ONLY the SQL statement, without any explanation or additional text.\n")
	switch kind {
	case port.StatementUpdate:
		b.WriteString("IMPORTANT: Always include a WHERE clause to prevent accidental bulk updates.\n")
	case port.StatementDelete:
		b.WriteString("CRITICAL: Always include a WHERE clause to prevent accidental bulk deletions.\n")
	}
	return b.String()
}

// cleanSQL strips markdown fences and trailing semicolons from a model
// completion, leaving one bare statement.
func cleanSQL(raw string) string {
	sql := strings.TrimSpace(raw)
	if strings.HasPrefix(sql, "```") {
		sql = strings.TrimPrefix(sql, "```sql")
		sql = strings.TrimPrefix(sql, "```")
		sql = strings.TrimSuffix(strings.TrimSpace(sql), "```")
	}
	sql = strings.TrimSpace(sql)
	sql = strings.TrimSuffix(sql, ";")
	return strings.TrimSpace(sql)
}
