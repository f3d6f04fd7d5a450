package digest

import (
	"fmt"
	"math"
	"strings"

	"pennywize/src/pkg/store"
)

/*
Metrics are the derived totals for one recipient's history. They are
computed fresh on every run and never persisted.

Savings may be negative; nothing clamps it.
*/
type Metrics struct {
	TotalIncome   float64 `json:"total_income"`
	TotalExpenses float64 `json:"total_expenses"`
	Savings       float64 `json:"savings"`
}

/*
ComputeMetrics folds a submission history into totals.

Missing numeric fields decoded as 0 contribute nothing, so sparse
histories degrade gracefully instead of erroring.
*/
func ComputeMetrics(history []store.Submission) Metrics {
	metrics := Metrics{}

	for _, row := range history {
		metrics.TotalIncome += row.Income
		metrics.TotalExpenses += row.TotalExpenses()
	}

	metrics.Savings = metrics.TotalIncome - metrics.TotalExpenses
	return metrics
}

/*
FormatUSD renders a money figure as "$" + fixed two decimals, e.g.
1800 -> "$1800.00". NaN renders as $0.00. Formatting happens only at
presentation boundaries (CSV/PDF/HTML); the numeric totals stay raw.
*/
func FormatUSD(value float64) string {
	if math.IsNaN(value) {
		value = 0
	}
	return fmt.Sprintf("$%.2f", value)
}

// Default suggestion sentences used when the stored field is blank.
const (
	defaultShortTermTip = "Consider reducing discretionary expenses next month to increase savings."
	defaultLongTermTip  = "Consider contributing more towards your retirement savings."
	defaultGoalTip      = "Consider contributing more towards your financial goals."
	defaultOnelineTip   = "Keep tracking your finances to get personalized insights."
)

/*
BuildAISuggestionText formats the AI-suggestion block from the most
recent submission. Pure function of (latest row, paid flag).

Paid users get the three labeled lines; free users get the collapsed
one-liner. Blank-after-trim fields fall back to fixed defaults.
*/
func BuildAISuggestionText(latest store.Submission, paid bool) string {
	if paid {
		shortTerm := fallback(latest.ShortTermSuggestion, defaultShortTermTip)
		longTerm := fallback(latest.LongTermSuggestion, defaultLongTermTip)
		goal := fallback(latest.GoalSuggestion, defaultGoalTip)

		return strings.Join([]string{
			"AI Suggestions:",
			"• Short term: " + shortTerm,
			"• Long term: " + longTerm,
			"• Goal: " + goal,
		}, "\n")
	}

	oneline := fallback(latest.OnelineSuggestion, defaultOnelineTip)
	return strings.Join([]string{"AI Suggestion:", "• " + oneline}, "\n")
}

func fallback(value string, def string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return def
	}
	return trimmed
}
