// Package filter evaluates CEL expressions against memory records,
// letting API callers narrow search results with expressions such as
// `category == "work" && "Alice" in people`.
package filter

import (
	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"github.com/infoagent/infoagent/store"
)

// Engine holds the CEL environment shared by all compiled filters.
type Engine struct {
	env *cel.Env
}

// NewEngine creates the CEL environment with the memory field vocabulary.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("title", cel.StringType),
		cel.Variable("content", cel.StringType),
		cel.Variable("summary", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("priority", cel.StringType),
		cel.Variable("status", cel.StringType),
		cel.Variable("source", cel.StringType),
		cel.Variable("categories", cel.ListType(cel.StringType)),
		cel.Variable("people", cel.ListType(cel.StringType)),
		cel.Variable("places", cel.ListType(cel.StringType)),
		cel.Variable("organizations", cel.ListType(cel.StringType)),
		cel.Variable("tags", cel.ListType(cel.StringType)),
		cel.Variable("word_count", cel.IntType),
		cel.Variable("created_ts", cel.IntType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create filter environment")
	}
	return &Engine{env: env}, nil
}

// Filter is a compiled, reusable filter expression.
type Filter struct {
	expression string
	program    cel.Program
}

// Compile parses and type-checks a filter expression. The expression must
// evaluate to a boolean.
func (e *Engine) Compile(expression string) (*Filter, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(issues.Err(), "invalid filter %q", expression)
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, errors.Errorf("filter %q must evaluate to a boolean, got %s", expression, ast.OutputType())
	}
	program, err := e.env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "compile filter %q", expression)
	}
	return &Filter{expression: expression, program: program}, nil
}

// Expression returns the original filter expression.
func (f *Filter) Expression() string {
	return f.expression
}

// Matches evaluates the filter against a single memory.
func (f *Filter) Matches(memory *store.Memory) (bool, error) {
	out, _, err := f.program.Eval(activation(memory))
	if err != nil {
		return false, errors.Wrapf(err, "evaluate filter %q", f.expression)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("filter %q returned non-boolean %v", f.expression, out.Value())
	}
	return matched, nil
}

func activation(memory *store.Memory) map[string]any {
	attrs := memory.Attributes
	return map[string]any{
		"title":         memory.Title,
		"content":       memory.Content,
		"summary":       memory.Summary,
		"category":      attrs.GetString("category"),
		"priority":      attrs.GetString("priority"),
		"status":        attrs.GetString("status"),
		"source":        attrs.GetString("source"),
		"categories":    stringList(attrs.GetList("categories")),
		"people":        stringList(attrs.GetList("people")),
		"places":        stringList(attrs.GetList("places")),
		"organizations": stringList(attrs.GetList("organizations")),
		"tags":          stringList(attrs.GetList("tags")),
		"word_count":    int64(memory.WordCount),
		"created_ts":    memory.CreatedTs,
	}
}

// stringList never returns nil so CEL list operations see an empty list
// instead of a missing value.
func stringList(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
