package runner

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/colstorm/internal/metrics"
)

// Threshold metric names.
const (
	MetricExecDuration = "exec_duration"
	MetricExecFailed   = "exec_failed"
	MetricExecs        = "execs"
)

// Threshold is one pass/fail criterion evaluated on the final metrics.
type Threshold struct {
	Metric     string `json:"metric" yaml:"metric"`
	Expression string `json:"expression" yaml:"expression"`
}

// ThresholdResult contains the result of a threshold evaluation.
type ThresholdResult struct {
	Metric     string `json:"metric" yaml:"metric"`
	Expression string `json:"expression" yaml:"expression"`
	Passed     bool   `json:"passed" yaml:"passed"`
	Value      string `json:"value" yaml:"value"`
	Message    string `json:"message,omitempty" yaml:"message,omitempty"`
}

var thresholdExpr = regexp.MustCompile(`^(\w+)\s*([<>=!]+)\s*(.+)$`)

// ParseThreshold parses "metric: expression", e.g. "exec_duration: p95 < 50ms".
func ParseThreshold(s string) (Threshold, error) {
	metric, expr, found := strings.Cut(s, ":")
	metric = strings.TrimSpace(metric)
	expr = strings.TrimSpace(expr)
	if !found || metric == "" || expr == "" {
		return Threshold{}, fmt.Errorf("threshold %q must have the form \"metric: expression\"", s)
	}

	switch metric {
	case MetricExecDuration, MetricExecFailed, MetricExecs:
	default:
		return Threshold{}, fmt.Errorf("threshold %q: unknown metric %q (want %s, %s or %s)",
			s, metric, MetricExecDuration, MetricExecFailed, MetricExecs)
	}

	if _, _, _, err := parseThresholdExpression(expr); err != nil {
		return Threshold{}, fmt.Errorf("threshold %q: %w", s, err)
	}

	return Threshold{Metric: metric, Expression: expr}, nil
}

// ParseThresholds parses every entry of list.
func ParseThresholds(list []string) ([]Threshold, error) {
	out := make([]Threshold, 0, len(list))
	for _, s := range list {
		th, err := ParseThreshold(s)
		if err != nil {
			return nil, err
		}
		out = append(out, th)
	}
	return out, nil
}

// ErrorRateThreshold returns the threshold that fails a run whose failed
// execution ratio exceeds maxRate.
func ErrorRateThreshold(maxRate float64) Threshold {
	return Threshold{
		Metric:     MetricExecFailed,
		Expression: "rate <= " + strconv.FormatFloat(maxRate, 'f', -1, 64),
	}
}

// EvaluateThresholds evaluates all thresholds against snapshot.
func EvaluateThresholds(thresholds []Threshold, snapshot *metrics.Snapshot) []ThresholdResult {
	results := make([]ThresholdResult, 0, len(thresholds))
	for _, th := range thresholds {
		var result ThresholdResult
		switch th.Metric {
		case MetricExecDuration:
			result = evaluateDurationThreshold(th.Expression, snapshot)
		case MetricExecFailed:
			result = evaluateFailedThreshold(th.Expression, snapshot)
		case MetricExecs:
			result = evaluateExecsThreshold(th.Expression, snapshot)
		default:
			result = ThresholdResult{
				Metric:     th.Metric,
				Expression: th.Expression,
				Message:    fmt.Sprintf("unknown metric: %s", th.Metric),
			}
		}
		results = append(results, result)
	}
	return results
}

// AllPassed reports whether every threshold result passed.
func AllPassed(results []ThresholdResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

func evaluateDurationThreshold(expr string, snapshot *metrics.Snapshot) ThresholdResult {
	result := ThresholdResult{
		Metric:     MetricExecDuration,
		Expression: expr,
	}

	stat, op, valueStr, err := parseThresholdExpression(expr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse expression: %v", err)
		return result
	}

	var actualValue time.Duration
	switch stat {
	case "min":
		actualValue = snapshot.Latency.Min
	case "max":
		actualValue = snapshot.Latency.Max
	case "avg", "mean":
		actualValue = snapshot.Latency.Mean
	case "p50", "med":
		actualValue = snapshot.Latency.P50
	case "p90":
		actualValue = snapshot.Latency.P90
	case "p95":
		actualValue = snapshot.Latency.P95
	case "p99":
		actualValue = snapshot.Latency.P99
	default:
		result.Message = fmt.Sprintf("unknown statistic: %s", stat)
		return result
	}

	thresholdValue, err := time.ParseDuration(valueStr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
		return result
	}

	result.Value = actualValue.String()
	result.Passed = compareValues(float64(actualValue), op, float64(thresholdValue))

	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %s, threshold: %s %s", stat, actualValue, op, thresholdValue)
	}

	return result
}

func evaluateFailedThreshold(expr string, snapshot *metrics.Snapshot) ThresholdResult {
	result := ThresholdResult{
		Metric:     MetricExecFailed,
		Expression: expr,
	}

	stat, op, valueStr, err := parseThresholdExpression(expr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse expression: %v", err)
		return result
	}

	var actualValue float64
	switch stat {
	case "rate":
		actualValue = snapshot.ErrorRate
	case "count":
		actualValue = float64(snapshot.FailedExecs)
	default:
		result.Message = fmt.Sprintf("exec_failed only supports 'rate' or 'count', got: %s", stat)
		return result
	}

	thresholdValue, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
		return result
	}

	result.Value = fmt.Sprintf("%.4f", actualValue)
	if stat == "count" {
		result.Value = strconv.FormatInt(snapshot.FailedExecs, 10)
	}
	result.Passed = compareValues(actualValue, op, thresholdValue)

	if !result.Passed {
		result.Message = fmt.Sprintf("failed %s is %s, threshold: %s %s", stat, result.Value, op, valueStr)
	}

	return result
}

func evaluateExecsThreshold(expr string, snapshot *metrics.Snapshot) ThresholdResult {
	result := ThresholdResult{
		Metric:     MetricExecs,
		Expression: expr,
	}

	stat, op, valueStr, err := parseThresholdExpression(expr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse expression: %v", err)
		return result
	}

	thresholdValue, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
		return result
	}

	var actualValue float64
	switch stat {
	case "count":
		actualValue = float64(snapshot.TotalExecs)
	case "rate":
		actualValue = snapshot.Throughput
	default:
		result.Message = fmt.Sprintf("execs only supports 'count' or 'rate', got: %s", stat)
		return result
	}

	result.Value = fmt.Sprintf("%.2f", actualValue)
	result.Passed = compareValues(actualValue, op, thresholdValue)

	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %.2f, threshold: %s %.2f", stat, actualValue, op, thresholdValue)
	}

	return result
}

// parseThresholdExpression parses an expression like "p95 < 500ms".
func parseThresholdExpression(expr string) (stat, op, value string, err error) {
	matches := thresholdExpr.FindStringSubmatch(strings.TrimSpace(expr))
	if len(matches) != 4 {
		return "", "", "", fmt.Errorf("invalid expression format: %s", expr)
	}

	switch matches[2] {
	case "<", "<=", ">", ">=", "==", "=", "!=", "<>":
	default:
		return "", "", "", fmt.Errorf("invalid operator %q in %s", matches[2], expr)
	}

	return matches[1], matches[2], strings.TrimSpace(matches[3]), nil
}

// compareValues compares two values using the given operator.
func compareValues(actual float64, op string, threshold float64) bool {
	switch op {
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold
	case "==", "=":
		return actual == threshold
	case "!=", "<>":
		return actual != threshold
	default:
		return false
	}
}
