// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"fmt"
	"strconv"
	"strings"
)

// Filters holds the ranking-filter criteria. Numeric thresholds are
// pointers so "no filter" and "threshold 0" stay distinct; substring
// filters are inactive when empty.
type Filters struct {
	// SCIIF keeps records whose impact factor is >= the threshold.
	SCIIF *float64

	// JCI keeps records whose Journal Citation Indicator is >= the threshold.
	JCI *float64

	// SCI and friends keep records whose metric value contains the string.
	SCI      string
	SCIUpTop string
	SCIBase  string
	SCIUp    string
}

// Active reports whether any filter criterion is set. When false the
// ranking stage is skipped entirely.
func (f Filters) Active() bool {
	return f.SCIIF != nil || f.JCI != nil ||
		f.SCI != "" || f.SCIUpTop != "" || f.SCIBase != "" || f.SCIUp != ""
}

// metricSet carries the six metric values fetched for one record. Values
// are nil when the ranking service has no entry for the metric.
type metricSet struct {
	sciif, jci, sci, sciUpTop, sciBase, sciUp any
}

// match evaluates every active predicate conjunctively. Numeric predicates
// fail closed when the metric is absent or not parsable as a number;
// substring predicates fail closed when the metric is absent.
func (f Filters) match(m metricSet) bool {
	if f.SCIIF != nil && !numericAtLeast(m.sciif, *f.SCIIF) {
		return false
	}
	if f.JCI != nil && !numericAtLeast(m.jci, *f.JCI) {
		return false
	}
	if f.SCI != "" && !containsMetric(m.sci, f.SCI) {
		return false
	}
	if f.SCIUpTop != "" && !containsMetric(m.sciUpTop, f.SCIUpTop) {
		return false
	}
	if f.SCIBase != "" && !containsMetric(m.sciBase, f.SCIBase) {
		return false
	}
	if f.SCIUp != "" && !containsMetric(m.sciUp, f.SCIUp) {
		return false
	}
	return true
}

func numericAtLeast(val any, threshold float64) bool {
	num, ok := metricFloat(val)
	return ok && num >= threshold
}

func containsMetric(val any, substr string) bool {
	return val != nil && strings.Contains(fmt.Sprint(val), substr)
}

// metricFloat coerces a metric value to a float64. Ranking responses mix
// JSON numbers and numeric strings for the same metrics.
func metricFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		num, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return num, err == nil
	default:
		return 0, false
	}
}

// metricString renders a metric value for record annotation; absent
// metrics render as "".
func metricString(val any) string {
	if val == nil {
		return ""
	}
	return fmt.Sprint(val)
}
