// Package tabular exposes a single Dataset to the model as a callable tool.
//
// The model sends an expression such as `mean("price")` or
// `len(filter(data, .region == "north"))`; the tool evaluates it with
// expr-lang/expr against a read-only environment built from the dataset and
// returns the result as text. Evaluation problems are reported back to the
// model as text so the conversation can continue.
package tabular
