package tabular

import (
	"context"
	"strings"
	"testing"

	"github.com/poiesic/colloquy/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func salesDataset() *core.Dataset {
	return &core.Dataset{
		Name:    "sales.csv",
		Columns: []string{"region", "product", "units", "price"},
		Rows: [][]string{
			{"north", "tea", "10", "2.5"},
			{"south", "coffee", "20", "3,5"},
			{"north", "coffee", "30", "4"},
			{"east", "tea", "", "2"},
		},
	}
}

func newTestTool(t *testing.T, opts ...Option) *Tool {
	t.Helper()
	tool, err := NewTool(salesDataset(), opts...)
	require.NoError(t, err)
	return tool
}

func TestNewTool_Validation(t *testing.T) {
	_, err := NewTool(nil)
	assert.ErrorIs(t, err, ErrNoDataset)

	_, err = NewTool(&core.Dataset{Name: "x.csv"})
	assert.ErrorIs(t, err, ErrNoColumns)

	_, err = NewTool(&core.Dataset{Name: "x.csv", Columns: []string{"a", "b"}, Rows: [][]string{{"1"}}})
	assert.Error(t, err)
}

func TestDefinition(t *testing.T) {
	def := newTestTool(t).Definition()

	assert.Equal(t, ToolName, def.Name)
	assert.Contains(t, def.Description, "sales.csv")
	assert.Contains(t, def.Description, "region, product, units, price")
	props, ok := def.Parameters["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "expression")
	assert.Equal(t, []string{"expression"}, def.Parameters["required"])
}

func TestRun_Expressions(t *testing.T) {
	tool := newTestTool(t)

	tests := []struct {
		name string
		args string
		want string
	}{
		{"row count", `{"expression": "rows"}`, "4"},
		{"columns", `{"expression": "columns"}`, "[region, product, units, price]"},
		{"count skips blanks", `{"expression": "count(\"units\")"}`, "3"},
		{"sum", `{"expression": "sum(\"units\")"}`, "60"},
		{"mean", `{"expression": "mean(\"units\")"}`, "20"},
		{"mean with decimal comma", `{"expression": "mean(\"price\")"}`, "3"},
		{"min", `{"expression": "min(\"price\")"}`, "2"},
		{"max", `{"expression": "max(\"units\")"}`, "30"},
		{"median", `{"expression": "median(\"units\")"}`, "20"},
		{"std", `{"expression": "std(\"units\")"}`, "10"},
		{"unique", `{"expression": "unique(\"region\")"}`, "[north, south, east]"},
		{"nunique", `{"expression": "nunique(\"product\")"}`, "2"},
		{"value counts", `{"expression": "value_counts(\"region\")"}`, "north: 2\neast: 1\nsouth: 1"},
		{"filter", `{"expression": "len(filter(data, .region == \"north\"))"}`, "2"},
		{"aggregate over filter", `{"expression": "sum(map(filter(data, .region == \"north\"), .units))"}`, "40"},
		{"arithmetic", `{"expression": "sum(\"units\") / rows"}`, "15"},
		{"fenced", "```json\n{\"expression\": \"rows\"}\n```", "4"},
		{"bare expression", `nunique("region")`, "3"},
		{"single other key", `{"query": "rows"}`, "4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tool.Run(context.Background(), tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRun_HeadAndDescribe(t *testing.T) {
	tool := newTestTool(t)

	got, err := tool.Run(context.Background(), `{"expression": "head(2)"}`)
	require.NoError(t, err)
	assert.Equal(t, "region | product | units | price\nnorth | tea | 10 | 2.5\nsouth | coffee | 20 | 3,5", got)

	got, err = tool.Run(context.Background(), `{"expression": "describe()"}`)
	require.NoError(t, err)
	assert.Contains(t, got, "4 rows, 4 columns")
	assert.Contains(t, got, "region: text, 3 unique")
	assert.Contains(t, got, "units: count=3 mean=20 min=10 median=20 max=30 std=10")
}

func TestRun_ErrorsAreText(t *testing.T) {
	tool := newTestTool(t)

	tests := []struct {
		name     string
		args     string
		contains string
	}{
		{"unknown column", `{"expression": "mean(\"weight\")"}`, "unknown column"},
		{"non numeric", `{"expression": "mean(\"region\")"}`, "not numeric"},
		{"syntax", `{"expression": "mean(("}`, "error:"},
		{"empty", `{"expression": ""}`, "empty expression"},
		{"bad json", `{"expression": `, "invalid arguments"},
		{"unknown name", `{"expression": "os.Exit(1)"}`, "error:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tool.Run(context.Background(), tt.args)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(got, "error:"), got)
			assert.Contains(t, got, tt.contains)
		})
	}
}

func TestRun_Truncates(t *testing.T) {
	tool := newTestTool(t, WithMaxResultChars(10))

	got, err := tool.Run(context.Background(), `{"expression": "head(4)"}`)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(got, "... (truncated)"))
	assert.Equal(t, "region | p", strings.SplitN(got, "\n", 2)[0])
}

func TestRun_Cancelled(t *testing.T) {
	tool := newTestTool(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tool.Run(ctx, `{"expression": "rows"}`)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_DatasetUntouched(t *testing.T) {
	ds := salesDataset()
	tool, err := NewTool(ds)
	require.NoError(t, err)

	_, err = tool.Run(context.Background(), `{"expression": "column(\"region\")"}`)
	require.NoError(t, err)
	assert.Equal(t, salesDataset(), ds)
	assert.Same(t, ds, tool.Dataset())
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "null", formatValue(nil))
	assert.Equal(t, "2.333333", formatValue(7.0/3.0))
	assert.Equal(t, "true", formatValue(true))
	assert.Equal(t, "{a: 1, b: x}", formatValue(map[string]any{"b": "x", "a": 1}))
}
