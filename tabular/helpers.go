package tabular

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/poiesic/colloquy/core"
)

const defaultHeadRows = 5

type helpers struct {
	ds *core.Dataset
}

func (h *helpers) options() []expr.Option {
	return []expr.Option{
		expr.Function("count", h.count),
		expr.Function("column", h.column),
		expr.Function("mean", h.aggregate("mean", mean)),
		expr.Function("sum", h.aggregate("sum", sum)),
		expr.Function("min", h.aggregate("min", minimum)),
		expr.Function("max", h.aggregate("max", maximum)),
		expr.Function("median", h.aggregate("median", median)),
		expr.Function("std", h.aggregate("std", stddev)),
		expr.Function("unique", h.unique),
		expr.Function("nunique", h.nunique),
		expr.Function("value_counts", h.valueCounts),
		expr.Function("head", h.head),
		expr.Function("describe", h.describe),
	}
}

// records returns one map per row, numeric cells parsed to float64 and
// blank cells as nil.
func (h *helpers) records() []map[string]any {
	out := make([]map[string]any, len(h.ds.Rows))
	for i, row := range h.ds.Rows {
		rec := make(map[string]any, len(row))
		for j, cell := range row {
			cell = strings.TrimSpace(cell)
			switch f, ok := parseNumber(cell); {
			case cell == "":
				rec[h.ds.Columns[j]] = nil
			case ok:
				rec[h.ds.Columns[j]] = f
			default:
				rec[h.ds.Columns[j]] = cell
			}
		}
		out[i] = rec
	}
	return out
}

func (h *helpers) columnIndex(params []any, fn string) (int, error) {
	if len(params) != 1 {
		return -1, fmt.Errorf("%s expects one column name, got %d arguments", fn, len(params))
	}
	name, ok := params[0].(string)
	if !ok {
		return -1, fmt.Errorf("%s expects a column name, got %T", fn, params[0])
	}
	idx := h.ds.ColumnIndex(name)
	if idx < 0 {
		return -1, fmt.Errorf("%w %q; available: %s", ErrUnknownColumn, name, strings.Join(h.ds.Columns, ", "))
	}
	return idx, nil
}

func (h *helpers) cells(idx int) []string {
	out := make([]string, len(h.ds.Rows))
	for i, row := range h.ds.Rows {
		out[i] = strings.TrimSpace(row[idx])
	}
	return out
}

func (h *helpers) count(params ...any) (any, error) {
	idx, err := h.columnIndex(params, "count")
	if err != nil {
		return nil, err
	}
	n := 0
	for _, c := range h.cells(idx) {
		if c != "" {
			n++
		}
	}
	return n, nil
}

func (h *helpers) column(params ...any) (any, error) {
	idx, err := h.columnIndex(params, "column")
	if err != nil {
		return nil, err
	}
	return h.cells(idx), nil
}

func (h *helpers) uniqueValues(params []any, fn string) ([]string, error) {
	idx, err := h.columnIndex(params, fn)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, c := range h.cells(idx) {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}

func (h *helpers) unique(params ...any) (any, error) {
	return h.uniqueValues(params, "unique")
}

func (h *helpers) nunique(params ...any) (any, error) {
	vals, err := h.uniqueValues(params, "nunique")
	if err != nil {
		return nil, err
	}
	return len(vals), nil
}

func (h *helpers) valueCounts(params ...any) (any, error) {
	idx, err := h.columnIndex(params, "value_counts")
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, c := range h.cells(idx) {
		if c != "" {
			counts[c]++
		}
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %d\n", k, counts[k])
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (h *helpers) head(params ...any) (any, error) {
	n := defaultHeadRows
	if len(params) > 1 {
		return nil, fmt.Errorf("head expects at most one argument")
	}
	if len(params) == 1 {
		f, ok := toFloat(params[0])
		if !ok || f < 0 {
			return nil, fmt.Errorf("head expects a non-negative row count, got %v", params[0])
		}
		n = int(f)
	}
	if n > len(h.ds.Rows) {
		n = len(h.ds.Rows)
	}
	var b strings.Builder
	b.WriteString(strings.Join(h.ds.Columns, " | "))
	for _, row := range h.ds.Rows[:n] {
		b.WriteString("\n")
		b.WriteString(strings.Join(row, " | "))
	}
	return b.String(), nil
}

func (h *helpers) describe(params ...any) (any, error) {
	if len(params) != 0 {
		return nil, fmt.Errorf("describe takes no arguments")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d rows, %d columns", len(h.ds.Rows), len(h.ds.Columns))
	for idx, name := range h.ds.Columns {
		vals, err := numericCells(name, h.cells(idx))
		if err != nil || len(vals) == 0 {
			u, _ := h.uniqueValues([]any{name}, "describe")
			fmt.Fprintf(&b, "\n%s: text, %d unique", name, len(u))
			continue
		}
		m, _ := mean(vals)
		lo, _ := minimum(vals)
		hi, _ := maximum(vals)
		med, _ := median(vals)
		fmt.Fprintf(&b, "\n%s: count=%d mean=%s min=%s median=%s max=%s",
			name, len(vals), formatFloat(m), formatFloat(lo), formatFloat(med), formatFloat(hi))
		if sd, err := stddev(vals); err == nil {
			fmt.Fprintf(&b, " std=%s", formatFloat(sd))
		}
	}
	return b.String(), nil
}

// aggregate adapts a numeric reduction to accept a column name, a list of
// numbers or several numbers.
func (h *helpers) aggregate(fn string, reduce func([]float64) (float64, error)) func(params ...any) (any, error) {
	return func(params ...any) (any, error) {
		vals, err := h.numbers(fn, params)
		if err != nil {
			return nil, err
		}
		if len(vals) == 0 {
			return nil, fmt.Errorf("%s: no numeric values", fn)
		}
		r, err := reduce(vals)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		return r, nil
	}
}

func (h *helpers) numbers(fn string, params []any) ([]float64, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("%s expects a column name or numbers", fn)
	}
	if len(params) > 1 {
		return toFloats(fn, params)
	}
	switch v := params[0].(type) {
	case string:
		idx, err := h.columnIndex(params, fn)
		if err != nil {
			return nil, err
		}
		return numericCells(v, h.cells(idx))
	case []float64:
		return v, nil
	case []any:
		return toFloats(fn, v)
	default:
		if f, ok := toFloat(v); ok {
			return []float64{f}, nil
		}
		return nil, fmt.Errorf("%s expects a column name or numbers, got %T", fn, v)
	}
}

func numericCells(name string, cells []string) ([]float64, error) {
	out := make([]float64, 0, len(cells))
	for i, c := range cells {
		if c == "" {
			continue
		}
		f, ok := parseNumber(c)
		if !ok {
			return nil, fmt.Errorf("%w: column %q row %d has %q", ErrNotNumeric, name, i+1, c)
		}
		out = append(out, f)
	}
	return out, nil
}

func toFloats(fn string, vals []any) ([]float64, error) {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if v == nil {
			continue
		}
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("%s: %w: %v", fn, ErrNotNumeric, v)
		}
		out = append(out, f)
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		return parseNumber(strings.TrimSpace(n))
	default:
		return 0, false
	}
}

// parseNumber accepts plain decimals and decimals written with a comma.
func parseNumber(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func sum(vals []float64) (float64, error) {
	var s float64
	for _, v := range vals {
		s += v
	}
	return s, nil
}

func mean(vals []float64) (float64, error) {
	s, _ := sum(vals)
	return s / float64(len(vals)), nil
}

func minimum(vals []float64) (float64, error) {
	m := vals[0]
	for _, v := range vals[1:] {
		m = math.Min(m, v)
	}
	return m, nil
}

func maximum(vals []float64) (float64, error) {
	m := vals[0]
	for _, v := range vals[1:] {
		m = math.Max(m, v)
	}
	return m, nil
}

func median(vals []float64) (float64, error) {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], nil
	}
	return (sorted[mid-1] + sorted[mid]) / 2, nil
}

// stddev is the sample standard deviation.
func stddev(vals []float64) (float64, error) {
	if len(vals) < 2 {
		return 0, fmt.Errorf("needs at least two values")
	}
	m, _ := mean(vals)
	var ss float64
	for _, v := range vals {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(vals)-1)), nil
}
