package tabular

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/poiesic/colloquy/ai"
	"github.com/poiesic/colloquy/core"
)

// ToolName is the name the model uses to call the tool.
const ToolName = "query_dataset"

const defaultMaxResultChars = 4000

// Tool evaluates expressions against one immutable Dataset.
type Tool struct {
	dataset        *core.Dataset
	env            map[string]any
	functions      []expr.Option
	maxResultChars int
	logger         *slog.Logger
}

// Option configures a Tool.
type Option func(*Tool)

// WithMaxResultChars bounds the length of the text returned to the model.
func WithMaxResultChars(n int) Option {
	return func(t *Tool) {
		if n > 0 {
			t.maxResultChars = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tool) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTool binds a tool to dataset. The dataset must not be modified afterwards.
func NewTool(dataset *core.Dataset, opts ...Option) (*Tool, error) {
	if dataset == nil {
		return nil, ErrNoDataset
	}
	if len(dataset.Columns) == 0 {
		return nil, ErrNoColumns
	}
	for i, row := range dataset.Rows {
		if len(row) != len(dataset.Columns) {
			return nil, fmt.Errorf("row %d has %d cells, want %d", i+1, len(row), len(dataset.Columns))
		}
	}

	t := &Tool{
		dataset:        dataset,
		maxResultChars: defaultMaxResultChars,
		logger:         slog.Default().With("component", "tabular"),
	}
	for _, opt := range opts {
		opt(t)
	}

	h := &helpers{ds: dataset}
	t.env = map[string]any{
		"rows":    len(dataset.Rows),
		"columns": append([]string(nil), dataset.Columns...),
		"data":    h.records(),
	}
	t.functions = h.options()
	return t, nil
}

// Dataset returns the bound dataset.
func (t *Tool) Dataset() *core.Dataset {
	return t.dataset
}

// Definition describes the tool for the model.
func (t *Tool) Definition() ai.ToolDefinition {
	return ai.ToolDefinition{
		Name: ToolName,
		Description: fmt.Sprintf(
			"Evaluate an expression over the dataset %q (%d rows). Columns: %s. "+
				"Variables: rows, columns, data (list of row maps). "+
				"Functions: count(col), column(col), mean(x), sum(x), min(x), max(x), median(x), std(x), "+
				"unique(col), nunique(col), value_counts(col), head(n), describe(). "+
				"x is a column name or a list of numbers. Filtering uses filter(data, .col == value).",
			t.dataset.Name, len(t.dataset.Rows), strings.Join(t.dataset.Columns, ", ")),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"description": "Expression to evaluate, for example mean(\"price\").",
				},
			},
			"required": []string{"expression"},
		},
	}
}

// Run evaluates the expression carried by arguments. Evaluation failures are
// returned as text starting with "error:"; an error is returned only for
// cancellation or an internal failure.
func (t *Tool) Run(ctx context.Context, arguments string) (out string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	code, err := parseExpression(arguments)
	if err != nil {
		return "error: " + err.Error(), nil
	}

	defer func() {
		if p := recover(); p != nil {
			t.logger.Error("expression evaluation panicked", "expression", code, "panic", p)
			out = ""
			err = fmt.Errorf("evaluating %q: %v", code, p)
		}
	}()

	opts := append([]expr.Option{expr.Env(t.env)}, t.functions...)
	program, err := expr.Compile(code, opts...)
	if err != nil {
		t.logger.Debug("expression rejected", "expression", code, "err", err)
		return "error: " + err.Error(), nil
	}

	result, err := expr.Run(program, t.env)
	if err != nil {
		t.logger.Debug("expression failed", "expression", code, "err", err)
		return "error: " + err.Error(), nil
	}

	return t.truncate(formatValue(result)), nil
}

func (t *Tool) truncate(s string) string {
	r := []rune(s)
	if len(r) <= t.maxResultChars {
		return s
	}
	return string(r[:t.maxResultChars]) + "\n... (truncated)"
}

// parseExpression extracts the expression from tool arguments. Arguments may
// be a JSON object, optionally fenced, or the bare expression.
func parseExpression(arguments string) (string, error) {
	s := strings.TrimSpace(arguments)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "{") {
		var args map[string]any
		if err := json.Unmarshal([]byte(s), &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		if v, ok := args["expression"].(string); ok {
			s = v
		} else {
			s = ""
			for _, v := range args {
				if str, ok := v.(string); ok && len(args) == 1 {
					s = str
				}
			}
		}
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty expression")
	}
	return s, nil
}
