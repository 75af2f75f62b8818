package service

import (
	"fmt"
	"strings"

	"research-chat/backend/conversation/models"

	"github.com/google/cel-go/cel"
)

// Filter is a compiled export predicate. The zero value matches every row.
type Filter struct {
	expr    string
	program cel.Program
}

var filterEnv, filterEnvErr = cel.NewEnv(
	cel.Variable("session_id", cel.StringType),
	cel.Variable("conversation_id", cel.StringType),
	cel.Variable("message", cel.StringType),
	cel.Variable("role", cel.StringType),
	cel.Variable("created_at", cel.StringType),
	cel.Variable("created_ts", cel.TimestampType),
)

// CompileFilter parses a CEL boolean expression over the chat_messages columns.
// created_at is exposed in TimestampLayout so it compares as text against
// date prefixes; created_ts is the same instant as a CEL timestamp.
func CompileFilter(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return &Filter{}, nil
	}
	if filterEnvErr != nil {
		return nil, fmt.Errorf("filter environment: %w", filterEnvErr)
	}

	ast, issues := filterEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	program, err := filterEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", expr, err)
	}
	return &Filter{expr: expr, program: program}, nil
}

// Match evaluates the predicate against one message
func (f *Filter) Match(m models.ChatMessage) (bool, error) {
	if f == nil || f.program == nil {
		return true, nil
	}

	out, _, err := f.program.Eval(map[string]any{
		"session_id":      m.SessionID,
		"conversation_id": m.ConversationID,
		"message":         m.Content,
		"role":            string(m.Role),
		"created_at":      m.CreatedAt.UTC().Format(models.TimestampLayout),
		"created_ts":      m.CreatedAt.UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("evaluate filter %q: %w", f.expr, err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned %T", f.expr, out.Value())
	}
	return matched, nil
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}
