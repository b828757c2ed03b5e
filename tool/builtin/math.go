// Package builtin provides ready-made local function tools, adapted
// from the teacher's agent/tools package (math.go, datetime.go) onto
// this module's Handler signature (ctx, map[string]any -> any, error).
package builtin

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/Knetic/govaluate"
	"gonum.org/v1/gonum/stat"

	"github.com/taipm/llmadapter/tool"
)

// NewMathTool builds the "math" tool: expression evaluation via
// govaluate and statistics via gonum/stat, mirroring the teacher's
// NewMathTool operation set (evaluate, statistics; solve/convert/
// random are left to a richer builtin pack since they don't exercise
// either library).
func NewMathTool() *tool.Tool {
	t := tool.New("math", "Perform mathematical operations: expression evaluation and statistics").
		AddParameter("operation", "string", "Operation: evaluate, statistics", true).
		AddParameter("expression", "string", "Math expression for evaluate, e.g. 'sin(3.14/2) + sqrt(16)'", false).
		AddParameter("stat_type", "string", "Statistics type: mean, median, stdev, variance, min, max, sum", false).
		WithHandler(mathHandler)

	props := t.Parameters["properties"].(map[string]any)
	props["numbers"] = tool.ArrayParam("Array of numbers for statistics", "number")
	return t
}

func mathHandler(ctx context.Context, args map[string]any) (any, error) {
	operation, _ := args["operation"].(string)
	switch operation {
	case "evaluate":
		expression, _ := args["expression"].(string)
		return evaluate(expression)
	case "statistics":
		numbers := toFloatSlice(args["numbers"])
		statType, _ := args["stat_type"].(string)
		return statistics(numbers, statType)
	default:
		return nil, fmt.Errorf("math: unknown operation %q", operation)
	}
}

func toFloatSlice(v any) []float64 {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(raw))
	for _, e := range raw {
		switch n := e.(type) {
		case float64:
			out = append(out, n)
		case int:
			out = append(out, float64(n))
		}
	}
	return out
}

func evaluate(expression string) (float64, error) {
	if expression == "" {
		return 0, fmt.Errorf("math: expression is required")
	}
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(expression, map[string]govaluate.ExpressionFunction{
		"sqrt":  func(a ...any) (any, error) { return math.Sqrt(a[0].(float64)), nil },
		"pow":   func(a ...any) (any, error) { return math.Pow(a[0].(float64), a[1].(float64)), nil },
		"sin":   func(a ...any) (any, error) { return math.Sin(a[0].(float64)), nil },
		"cos":   func(a ...any) (any, error) { return math.Cos(a[0].(float64)), nil },
		"tan":   func(a ...any) (any, error) { return math.Tan(a[0].(float64)), nil },
		"log":   func(a ...any) (any, error) { return math.Log10(a[0].(float64)), nil },
		"ln":    func(a ...any) (any, error) { return math.Log(a[0].(float64)), nil },
		"abs":   func(a ...any) (any, error) { return math.Abs(a[0].(float64)), nil },
		"ceil":  func(a ...any) (any, error) { return math.Ceil(a[0].(float64)), nil },
		"floor": func(a ...any) (any, error) { return math.Floor(a[0].(float64)), nil },
		"round": func(a ...any) (any, error) { return math.Round(a[0].(float64)), nil },
	})
	if err != nil {
		return 0, fmt.Errorf("math: invalid expression: %w", err)
	}
	result, err := expr.Evaluate(nil)
	if err != nil {
		return 0, fmt.Errorf("math: evaluation failed: %w", err)
	}
	switch v := result.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("math: unexpected result type %T", result)
	}
}

func statistics(numbers []float64, statType string) (float64, error) {
	if len(numbers) == 0 {
		return 0, fmt.Errorf("math: numbers array is required")
	}
	switch statType {
	case "mean":
		return stat.Mean(numbers, nil), nil
	case "median":
		sorted := append([]float64(nil), numbers...)
		sort.Float64s(sorted)
		return median(sorted), nil
	case "stdev":
		return stat.StdDev(numbers, nil), nil
	case "variance":
		return stat.Variance(numbers, nil), nil
	case "min":
		return minOf(numbers), nil
	case "max":
		return maxOf(numbers), nil
	case "sum":
		var sum float64
		for _, n := range numbers {
			sum += n
		}
		return sum, nil
	default:
		return 0, fmt.Errorf("math: unknown stat_type %q", statType)
	}
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func minOf(numbers []float64) float64 {
	m := numbers[0]
	for _, n := range numbers[1:] {
		if n < m {
			m = n
		}
	}
	return m
}

func maxOf(numbers []float64) float64 {
	m := numbers[0]
	for _, n := range numbers[1:] {
		if n > m {
			m = n
		}
	}
	return m
}
