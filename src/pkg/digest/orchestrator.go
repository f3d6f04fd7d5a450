package digest

import (
	"time"

	tl "github.com/tuumbleweed/tintlog/logger"
	"github.com/tuumbleweed/tintlog/palette"
	"github.com/tuumbleweed/xerr"

	"pennywize/src/pkg/email"
	"pennywize/src/pkg/store"
)

type RunKind string

const (
	RunWeekly  RunKind = "weekly"
	RunMonthly RunKind = "monthly"
)

// PreferenceFlag names the preferences column gating this run kind.
func (kind RunKind) PreferenceFlag() string {
	if kind == RunMonthly {
		return "email_monthly_digest"
	}
	return "email_weekly_digest"
}

func (kind RunKind) Subject() string {
	if kind == RunMonthly {
		return "Your Monthly Financial Digest"
	}
	return "Your Weekly Financial Digest"
}

func (kind RunKind) ReportTitle() string {
	if kind == RunMonthly {
		return "Monthly Financial Digest"
	}
	return "Weekly Financial Digest"
}

func (kind RunKind) ChartTitle() string {
	if kind == RunMonthly {
		return "Income vs. Expenses (Last Month)"
	}
	return "Income vs. Expenses"
}

/*
RecipientStore is the slice of the data store the orchestrator needs.
The concrete implementation is store.Client; tests substitute fakes.
*/
type RecipientStore interface {
	FetchOptedInUserIDs(preferenceFlag string) ([]string, *xerr.Error)
	FetchRecipients(userIDs []string) ([]store.Recipient, *xerr.Error)
	FetchRecentSubmissions(userID string, limit int) ([]store.Submission, *xerr.Error)
	FetchSubmissionsBetween(userID string, start time.Time, end time.Time) ([]store.Submission, *xerr.Error)
	InsertEmailLog(entry store.EmailLogEntry) *xerr.Error
}

// MessageSender dispatches one composed message. The concrete
// implementation is email.ProviderSender.
type MessageSender interface {
	Send(sender string, recipients []string, subject string, textBody string, htmlBody string, attachments []email.Attachment) *xerr.Error
}

// ChartFetcher fetches rendered chart bytes; FetchChartPNG in
// production, a stub in tests.
type ChartFetcher func(chartURL string) ([]byte, *xerr.Error)

/*
Config is the read-only per-run configuration. Nothing here mutates
between recipient iterations.
*/
type Config struct {
	SiteURL        string
	LogoURL        string
	SenderAddress  string
	ChartWidth     int
	ChartHeight    int
	WeeklyRowLimit int
}

/*
Orchestrator drives one digest batch run. All collaborators are
injected at construction; there are no module-level client singletons.
*/
type Orchestrator struct {
	Store      RecipientStore
	Sender     MessageSender
	FetchChart ChartFetcher
	Config     Config

	// LogoBytes is the local logo asset loaded once at startup; nil
	// when the asset is missing, which simply drops the inline
	// attachment for everyone.
	LogoBytes []byte

	// Now is injectable so tests can pin the monthly window.
	Now func() time.Time
}

func NewOrchestrator(recipientStore RecipientStore, sender MessageSender, cfg Config) *Orchestrator {
	return &Orchestrator{
		Store:      recipientStore,
		Sender:     sender,
		FetchChart: FetchChartPNG,
		Config:     cfg,
		Now:        time.Now,
	}
}

/*
Summary is the run's completion result.

Skipped counts recipients with empty or unfetchable history; Failed
counts send failures, which never stop the run.
*/
type Summary struct {
	Kind    RunKind `json:"kind"`
	OptedIn int     `json:"opted_in"`
	Sent    int     `json:"sent"`
	Skipped int     `json:"skipped"`
	Failed  int     `json:"failed"`
	Message string  `json:"message"`
}

/*
Run executes one batch:

 1. Load opted-in user IDs for the kind's preference flag.
 2. Dry run stops after the recipient-count check (no sends, no logs).
 3. Load full recipient records.
 4. Process recipients sequentially with per-recipient isolation:
    a recipient's failure is logged and the loop continues.

Only configuration/store errors before the loop abort the whole run.
*/
func (o *Orchestrator) Run(kind RunKind, dryRun bool) (summary Summary, e *xerr.Error) {
	summary = Summary{Kind: kind}

	tl.Log(tl.Notice, palette.BlueBold, "%s '%s' digest run (dry: %v)", "Starting", kind, dryRun)

	userIDs, idsErr := o.Store.FetchOptedInUserIDs(kind.PreferenceFlag())
	if idsErr != nil {
		return summary, idsErr
	}
	summary.OptedIn = len(userIDs)

	if len(userIDs) == 0 {
		summary.Message = "No opted-in users"
		tl.Log(tl.Info1, palette.Cyan, "%s for '%s' digest", summary.Message, kind)
		return summary, nil
	}

	if dryRun {
		summary.Message = "Dry run: no emails sent"
		tl.Log(tl.Notice1, palette.GreenBold, "Dry run complete: '%d' opted-in users for '%s' digest", summary.OptedIn, kind)
		return summary, nil
	}

	recipients, recipientsErr := o.Store.FetchRecipients(userIDs)
	if recipientsErr != nil {
		return summary, recipientsErr
	}

	for _, recipient := range recipients {
		sent, skipped := o.processRecipient(recipient, kind)
		switch {
		case sent:
			summary.Sent += 1
		case skipped:
			summary.Skipped += 1
		default:
			summary.Failed += 1
		}
	}

	summary.Message = "Digest emails sent"
	tl.Log(
		tl.Notice, palette.GreenBold, "Done. Sent: '%d', skipped: '%d', failed: '%d'",
		summary.Sent, summary.Skipped, summary.Failed,
	)

	return summary, nil
}

/*
processRecipient handles one recipient end to end. It never returns an
error: every failure inside is either a silent skip (empty/unfetchable
history) or a logged degrade/failure, so one bad recipient cannot
abort the batch.
*/
func (o *Orchestrator) processRecipient(recipient store.Recipient, kind RunKind) (sent bool, skipped bool) {
	// Last-resort boundary: a panic in any per-recipient step counts
	// as that recipient's failure, never the run's.
	defer func() {
		if r := recover(); r != nil {
			tl.Log(tl.Error, palette.RedBold, "Panic while processing '%s': %v", recipient.Email, r)
			sent = false
			skipped = false
		}
	}()

	history, periodLabel := o.loadHistory(recipient, kind)
	if len(history) == 0 {
		tl.Log(tl.Info, palette.CyanDim, "No history for '%s', skipping", recipient.Email)
		return false, true
	}

	metrics := ComputeMetrics(history)

	// Store queries return newest-first; chart, entry list and CSV
	// consumers read chronologically.
	oldestFirst := ReverseHistory(history)

	chartURL := BuildChartURL(oldestFirst, kind.ChartTitle(), o.Config.ChartWidth, o.Config.ChartHeight)

	chartPNG, fetchErr := o.FetchChart(chartURL)
	if fetchErr != nil {
		tl.Log(tl.Warning, palette.PurpleBright, "Chart fetch failed for '%s': %s", recipient.Email, fetchErr)
		chartPNG = nil
	}

	aiText := BuildAISuggestionText(history[0], recipient.PaidUser)

	htmlBody := GenerateEmailHTML(EmailHTMLProps{
		DisplayName:   recipient.DisplayName(),
		LogoURL:       o.Config.LogoURL,
		ChartURL:      chartURL,
		TotalIncome:   FormatUSD(metrics.TotalIncome),
		TotalExpenses: FormatUSD(metrics.TotalExpenses),
		Savings:       FormatUSD(metrics.Savings),
		AIText:        aiText,
		SiteURL:       o.Config.SiteURL,
		Preheader:     "Your " + string(kind) + " PennyWize digest is ready",
	})

	attachments := o.buildAttachments(recipient, kind, oldestFirst, periodLabel, metrics, chartPNG, aiText)

	sendErr := o.Sender.Send(o.Config.SenderAddress, []string{recipient.Email}, kind.Subject(), "", htmlBody, attachments)
	if sendErr != nil {
		tl.Log(tl.Error, palette.RedBold, "Failed to send digest to '%s': %s", recipient.Email, sendErr)
		return false, false
	}

	logErr := o.Store.InsertEmailLog(store.EmailLogEntry{
		UserID:   recipient.ID,
		Email:    recipient.Email,
		Status:   "sent",
		Metadata: map[string]string{"type": string(kind)},
	})
	if logErr != nil {
		// The email is already out, so a missing log row only warns.
		tl.Log(tl.Warning, palette.PurpleBright, "Failed to write delivery log for '%s': %s", recipient.Email, logErr)
	}

	tl.Log(tl.Info1, palette.Green, "Sent '%s' digest to '%s'", kind, recipient.Email)
	return true, false
}

/*
loadHistory fetches the recipient's rows for the run kind: weekly takes
the most recent N, monthly the previous full calendar month. A fetch
error reads as an empty history, so those recipients skip silently.
*/
func (o *Orchestrator) loadHistory(recipient store.Recipient, kind RunKind) (history []store.Submission, periodLabel string) {
	if kind == RunMonthly {
		start, end := previousMonthWindow(o.Now())
		monthHistory, historyErr := o.Store.FetchSubmissionsBetween(recipient.ID, start, end)
		if historyErr != nil {
			tl.Log(tl.Warning, palette.PurpleBright, "History fetch failed for '%s': %s", recipient.Email, historyErr)
			return nil, ""
		}
		periodLabel = start.Format(DateLabelLayout) + " — " + end.Format(DateLabelLayout)
		return monthHistory, periodLabel
	}

	recentHistory, historyErr := o.Store.FetchRecentSubmissions(recipient.ID, o.Config.WeeklyRowLimit)
	if historyErr != nil {
		tl.Log(tl.Warning, palette.PurpleBright, "History fetch failed for '%s': %s", recipient.Email, historyErr)
		return nil, ""
	}
	return recentHistory, ""
}

/*
buildAttachments applies the tier policy: free recipients get nothing
(except the inline logo, which is tier-independent); paid recipients
get history.csv always and digest.pdf when the build succeeds. A PDF
build failure is swallowed and the email goes without it.
*/
func (o *Orchestrator) buildAttachments(recipient store.Recipient, kind RunKind, oldestFirst []store.Submission, periodLabel string, metrics Metrics, chartPNG []byte, aiText string) []email.Attachment {
	attachments := make([]email.Attachment, 0, 3)

	if recipient.PaidUser {
		headers, rows := SubmissionTable(oldestFirst)
		csvContent := ConvertToCSV(headers, rows)
		attachments = append(attachments, email.Attachment{
			Filename:    "history.csv",
			Content:     []byte(csvContent),
			ContentType: "text/csv",
		})

		entryDates := make([]string, 0, len(oldestFirst))
		for _, row := range oldestFirst {
			entryDates = append(entryDates, row.CreatedAt.Format(DateLabelLayout))
		}

		pdfBytes, pdfErr := BuildDigestPDF(PDFParams{
			Title:       kind.ReportTitle(),
			DisplayName: recipient.DisplayName(),
			PeriodLabel: periodLabel,
			Metrics:     metrics,
			ChartPNG:    chartPNG,
			AIText:      aiText,
			EntryDates:  entryDates,
		})
		if pdfErr != nil {
			tl.Log(tl.Warning, palette.PurpleBright, "PDF build failed for '%s': %s", recipient.Email, pdfErr)
		} else {
			attachments = append(attachments, email.Attachment{
				Filename:    "digest.pdf",
				Content:     pdfBytes,
				ContentType: "application/pdf",
			})
		}
	}

	if len(o.LogoBytes) > 0 {
		attachments = append(attachments, email.Attachment{
			Filename:    "pennywize-logo.png",
			Content:     o.LogoBytes,
			ContentType: "image/png",
			Inline:      true,
			ContentID:   "pennywize-logo",
		})
	}

	return attachments
}

/*
previousMonthWindow returns the first and last instants of the calendar
month before now, in now's location.
*/
func previousMonthWindow(now time.Time) (start time.Time, end time.Time) {
	firstOfCurrentMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	start = firstOfCurrentMonth.AddDate(0, -1, 0)
	end = firstOfCurrentMonth.Add(-time.Nanosecond)
	return start, end
}
