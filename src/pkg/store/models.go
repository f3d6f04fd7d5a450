package store

import "time"

/*
Submission is one stored financial data-entry row for a user.

Numeric columns may be null in the store; encoding/json leaves the zero
value in place for nulls, so absent figures read as 0 everywhere
downstream. The camelCase tags on carPayments/creditCards match the
historical column names, do not "fix" them.
*/
type Submission struct {
	ID          string    `json:"id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Income      float64   `json:"income"`
	Mortgage    float64   `json:"mortgage"`
	Utilities   float64   `json:"utilities"`
	CarPayments float64   `json:"carPayments"`
	CreditCards float64   `json:"creditCards"`

	ShortTermSuggestion string `json:"short_term_suggestion,omitempty"`
	LongTermSuggestion  string `json:"long_term_suggestion,omitempty"`
	GoalSuggestion      string `json:"goal_suggestion,omitempty"`
	OnelineSuggestion   string `json:"oneline_suggestion,omitempty"`
}

// TotalExpenses sums the expense sub-categories of a single row.
func (s Submission) TotalExpenses() float64 {
	return s.Mortgage + s.Utilities + s.CarPayments + s.CreditCards
}

/*
Recipient is a user eligible for a digest in the current run.
PaidUser gates attachments and the richer suggestion text.
*/
type Recipient struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	PaidUser bool   `json:"paid_user"`
}

// DisplayName falls back to the email address when no name is stored.
func (r Recipient) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Email
}

/*
EmailLogEntry records one successful send attempt. Rows are written
only after the provider accepted the message; a failed send leaves no
trace here.
*/
type EmailLogEntry struct {
	UserID   string            `json:"user_id"`
	Email    string            `json:"email"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}
