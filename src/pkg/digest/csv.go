package digest

import (
	"fmt"
	"strings"
	"time"

	"pennywize/src/pkg/store"
)

/*
ConvertToCSV serializes uniform records to CSV text.

Contract (kept bit-for-bit with the historical export format):
- header row is the raw field names, unquoted
- every value is double-quote wrapped, embedded quotes doubled
- nil values become the empty string
- rows are newline-joined, no trailing newline
- empty input produces an empty string, not even a header

encoding/csv is deliberately not used for writing: it quotes only when
necessary and escapes header cells, both of which would change the
files subscribers already ingest. The stdlib parser still reads this
output fine (see tests).
*/
func ConvertToCSV(headers []string, rows []map[string]any) string {
	if len(rows) == 0 {
		return ""
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, strings.Join(headers, ","))

	for _, row := range rows {
		cells := make([]string, 0, len(headers))
		for _, header := range headers {
			cells = append(cells, escapeCSVValue(row[header]))
		}
		lines = append(lines, strings.Join(cells, ","))
	}

	return strings.Join(lines, "\n")
}

func escapeCSVValue(value any) string {
	text := ""
	if value != nil {
		text = fmt.Sprintf("%v", value)
	}
	return `"` + strings.ReplaceAll(text, `"`, `""`) + `"`
}

// submissionCSVHeaders is the fixed column order of history.csv,
// mirroring the stored submission row.
var submissionCSVHeaders = []string{
	"id",
	"user_id",
	"created_at",
	"income",
	"mortgage",
	"utilities",
	"carPayments",
	"creditCards",
	"short_term_suggestion",
	"long_term_suggestion",
	"goal_suggestion",
	"oneline_suggestion",
}

/*
SubmissionTable flattens a history into the header list and row maps
that ConvertToCSV consumes. Timestamps are exported as RFC 3339 so the
CSV round-trips through standard parsers.
*/
func SubmissionTable(history []store.Submission) (headers []string, rows []map[string]any) {
	headers = submissionCSVHeaders

	rows = make([]map[string]any, 0, len(history))
	for _, row := range history {
		rows = append(rows, map[string]any{
			"id":                    row.ID,
			"user_id":               row.UserID,
			"created_at":            row.CreatedAt.UTC().Format(time.RFC3339),
			"income":                row.Income,
			"mortgage":              row.Mortgage,
			"utilities":             row.Utilities,
			"carPayments":           row.CarPayments,
			"creditCards":           row.CreditCards,
			"short_term_suggestion": row.ShortTermSuggestion,
			"long_term_suggestion":  row.LongTermSuggestion,
			"goal_suggestion":       row.GoalSuggestion,
			"oneline_suggestion":    row.OnelineSuggestion,
		})
	}

	return headers, rows
}
