package digest

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuumbleweed/xerr"

	"pennywize/src/pkg/email"
	"pennywize/src/pkg/store"
)

type betweenCall struct {
	userID string
	start  time.Time
	end    time.Time
}

type fakeStore struct {
	userIDs       []string
	idsErr        *xerr.Error
	recipients    []store.Recipient
	recipientsErr *xerr.Error

	historyByUser    map[string][]store.Submission
	historyErrByUser map[string]*xerr.Error
	logErr           *xerr.Error

	recipientsFetched bool
	recentLimits      []int
	betweenCalls      []betweenCall
	logs              []store.EmailLogEntry
}

func (f *fakeStore) FetchOptedInUserIDs(preferenceFlag string) ([]string, *xerr.Error) {
	return f.userIDs, f.idsErr
}

func (f *fakeStore) FetchRecipients(userIDs []string) ([]store.Recipient, *xerr.Error) {
	f.recipientsFetched = true
	return f.recipients, f.recipientsErr
}

func (f *fakeStore) FetchRecentSubmissions(userID string, limit int) ([]store.Submission, *xerr.Error) {
	f.recentLimits = append(f.recentLimits, limit)
	return f.historyByUser[userID], f.historyErrByUser[userID]
}

func (f *fakeStore) FetchSubmissionsBetween(userID string, start time.Time, end time.Time) ([]store.Submission, *xerr.Error) {
	f.betweenCalls = append(f.betweenCalls, betweenCall{userID: userID, start: start, end: end})
	return f.historyByUser[userID], f.historyErrByUser[userID]
}

func (f *fakeStore) InsertEmailLog(entry store.EmailLogEntry) *xerr.Error {
	f.logs = append(f.logs, entry)
	return f.logErr
}

type sentMessage struct {
	sender      string
	recipients  []string
	subject     string
	htmlBody    string
	attachments []email.Attachment
}

type fakeSender struct {
	failFor map[string]bool
	sent    []sentMessage
}

func (f *fakeSender) Send(sender string, recipients []string, subject string, textBody string, htmlBody string, attachments []email.Attachment) *xerr.Error {
	if len(recipients) == 1 && f.failFor[recipients[0]] {
		return xerr.NewError(errors.New("provider rejected"), "API error from provider", recipients)
	}
	f.sent = append(f.sent, sentMessage{
		sender:      sender,
		recipients:  recipients,
		subject:     subject,
		htmlBody:    htmlBody,
		attachments: attachments,
	})
	return nil
}

func stubChartError(chartURL string) ([]byte, *xerr.Error) {
	return nil, xerr.NewError(errors.New("unreachable"), "HTTP error during chart fetch", chartURL)
}

func testOrchestrator(fs *fakeStore, sender *fakeSender) *Orchestrator {
	orchestrator := NewOrchestrator(fs, sender, Config{
		SiteURL:        "https://pennywize.vercel.app",
		LogoURL:        "https://pennywize.vercel.app/brand/pennywize-logo.png",
		SenderAddress:  "PennyWize <digest@stingyhubby.xyz>",
		ChartWidth:     1000,
		ChartHeight:    500,
		WeeklyRowLimit: 10,
	})
	orchestrator.FetchChart = stubChartError
	orchestrator.Now = func() time.Time {
		return time.Date(2026, 8, 27, 9, 30, 0, 0, time.UTC)
	}
	return orchestrator
}

// weeklyHistory returns the scenario rows newest-first, the order the
// store hands back.
func weeklyHistory() []store.Submission {
	return []store.Submission{
		{ID: "s3", UserID: "u1", CreatedAt: time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC), Income: 1100, Mortgage: 500},
		{ID: "s2", UserID: "u1", CreatedAt: time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC), Income: 1200, Mortgage: 500},
		{ID: "s1", UserID: "u1", CreatedAt: time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC), Income: 1000, Mortgage: 500},
	}
}

func TestRun_NoOptedInUsers(t *testing.T) {
	fs := &fakeStore{}
	sender := &fakeSender{}

	summary, e := testOrchestrator(fs, sender).Run(RunWeekly, false)

	require.Nil(t, e)
	assert.Equal(t, "No opted-in users", summary.Message)
	assert.Zero(t, summary.Sent)
	assert.False(t, fs.recipientsFetched)
	assert.Empty(t, sender.sent)
}

func TestRun_DryRunCountsWithoutSending(t *testing.T) {
	fs := &fakeStore{userIDs: []string{"u1", "u2"}}
	sender := &fakeSender{}

	summary, e := testOrchestrator(fs, sender).Run(RunWeekly, true)

	require.Nil(t, e)
	assert.Equal(t, 2, summary.OptedIn)
	assert.Zero(t, summary.Sent)
	assert.False(t, fs.recipientsFetched)
	assert.Empty(t, sender.sent)
	assert.Empty(t, fs.logs)
}

func TestRun_StoreErrorAbortsRun(t *testing.T) {
	fs := &fakeStore{idsErr: xerr.NewError(errors.New("boom"), "API error from store", nil)}

	_, e := testOrchestrator(fs, &fakeSender{}).Run(RunWeekly, false)

	assert.NotNil(t, e)
}

func TestRun_EmptyHistorySkipsSilently(t *testing.T) {
	fs := &fakeStore{
		userIDs:       []string{"u1"},
		recipients:    []store.Recipient{{ID: "u1", Email: "sam@example.com"}},
		historyByUser: map[string][]store.Submission{},
	}
	sender := &fakeSender{}

	summary, e := testOrchestrator(fs, sender).Run(RunWeekly, false)

	require.Nil(t, e)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Sent)
	assert.Zero(t, summary.Failed)
	assert.Empty(t, sender.sent)
	assert.Empty(t, fs.logs)
}

func TestRun_HistoryFetchErrorSkipsRecipient(t *testing.T) {
	fs := &fakeStore{
		userIDs:    []string{"u1"},
		recipients: []store.Recipient{{ID: "u1", Email: "sam@example.com"}},
		historyErrByUser: map[string]*xerr.Error{
			"u1": xerr.NewError(errors.New("boom"), "API error from store", nil),
		},
	}
	sender := &fakeSender{}

	summary, e := testOrchestrator(fs, sender).Run(RunWeekly, false)

	require.Nil(t, e)
	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, sender.sent)
}

func TestRun_SendFailureIsIsolated(t *testing.T) {
	fs := &fakeStore{
		userIDs: []string{"u1", "u2"},
		recipients: []store.Recipient{
			{ID: "u1", Email: "bounce@example.com"},
			{ID: "u2", Email: "ok@example.com"},
		},
		historyByUser: map[string][]store.Submission{
			"u1": weeklyHistory(),
			"u2": weeklyHistory(),
		},
	}
	sender := &fakeSender{failFor: map[string]bool{"bounce@example.com": true}}

	summary, e := testOrchestrator(fs, sender).Run(RunWeekly, false)

	require.Nil(t, e)
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 1, summary.Failed)

	// The failed send leaves no delivery log.
	require.Len(t, fs.logs, 1)
	assert.Equal(t, "u2", fs.logs[0].UserID)
}

func TestRun_PanicInRecipientStepIsIsolated(t *testing.T) {
	fs := &fakeStore{
		userIDs: []string{"u1", "u2"},
		recipients: []store.Recipient{
			{ID: "u1", Email: "boom@example.com"},
			{ID: "u2", Email: "ok@example.com"},
		},
		historyByUser: map[string][]store.Submission{
			"u1": weeklyHistory(),
			"u2": weeklyHistory(),
		},
	}
	sender := &fakeSender{}
	orchestrator := testOrchestrator(fs, sender)

	calls := 0
	orchestrator.FetchChart = func(chartURL string) ([]byte, *xerr.Error) {
		calls += 1
		if calls == 1 {
			panic("renderer bug")
		}
		return nil, nil
	}

	summary, e := orchestrator.Run(RunWeekly, false)

	require.Nil(t, e)
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"ok@example.com"}, sender.sent[0].recipients)
	require.Len(t, fs.logs, 1)
	assert.Equal(t, "u2", fs.logs[0].UserID)
}

func TestRun_ChartFetchFailureStillSends(t *testing.T) {
	fs := &fakeStore{
		userIDs:       []string{"u1"},
		recipients:    []store.Recipient{{ID: "u1", Email: "sam@example.com"}},
		historyByUser: map[string][]store.Submission{"u1": weeklyHistory()},
	}
	sender := &fakeSender{}

	summary, e := testOrchestrator(fs, sender).Run(RunWeekly, false)

	require.Nil(t, e)
	assert.Equal(t, 1, summary.Sent)
	require.Len(t, sender.sent, 1)
	// The HTML keeps its remote chart image even though the fetch failed.
	assert.Contains(t, sender.sent[0].htmlBody, "quickchart.io")
}

func attachmentNames(attachments []email.Attachment) []string {
	names := make([]string, 0, len(attachments))
	for _, attachment := range attachments {
		names = append(names, attachment.Filename)
	}
	return names
}

func TestRun_PaidRecipientGetsCSVAndPDF(t *testing.T) {
	fs := &fakeStore{
		userIDs:       []string{"u1"},
		recipients:    []store.Recipient{{ID: "u1", Email: "sam@example.com", Name: "Sam", PaidUser: true}},
		historyByUser: map[string][]store.Submission{"u1": weeklyHistory()},
	}
	sender := &fakeSender{}

	_, e := testOrchestrator(fs, sender).Run(RunWeekly, false)

	require.Nil(t, e)
	require.Len(t, sender.sent, 1)
	names := attachmentNames(sender.sent[0].attachments)
	assert.Contains(t, names, "history.csv")
	assert.Contains(t, names, "digest.pdf")
}

func TestRun_FreeRecipientGetsNoAttachments(t *testing.T) {
	fs := &fakeStore{
		userIDs:       []string{"u1"},
		recipients:    []store.Recipient{{ID: "u1", Email: "sam@example.com"}},
		historyByUser: map[string][]store.Submission{"u1": weeklyHistory()},
	}
	sender := &fakeSender{}

	_, e := testOrchestrator(fs, sender).Run(RunWeekly, false)

	require.Nil(t, e)
	require.Len(t, sender.sent, 1)
	assert.Empty(t, sender.sent[0].attachments)
}

func TestRun_InlineLogoAttachesForEveryTier(t *testing.T) {
	fs := &fakeStore{
		userIDs:       []string{"u1"},
		recipients:    []store.Recipient{{ID: "u1", Email: "sam@example.com"}},
		historyByUser: map[string][]store.Submission{"u1": weeklyHistory()},
	}
	sender := &fakeSender{}
	orchestrator := testOrchestrator(fs, sender)
	orchestrator.LogoBytes = []byte("png")

	_, e := orchestrator.Run(RunWeekly, false)

	require.Nil(t, e)
	require.Len(t, sender.sent, 1)
	require.Len(t, sender.sent[0].attachments, 1)
	logo := sender.sent[0].attachments[0]
	assert.True(t, logo.Inline)
	assert.Equal(t, "pennywize-logo", logo.ContentID)
}

func TestRun_SuggestionTierInBody(t *testing.T) {
	fs := &fakeStore{
		userIDs: []string{"u1", "u2"},
		recipients: []store.Recipient{
			{ID: "u1", Email: "paid@example.com", PaidUser: true},
			{ID: "u2", Email: "free@example.com"},
		},
		historyByUser: map[string][]store.Submission{
			"u1": weeklyHistory(),
			"u2": weeklyHistory(),
		},
	}
	sender := &fakeSender{}

	_, e := testOrchestrator(fs, sender).Run(RunWeekly, false)

	require.Nil(t, e)
	require.Len(t, sender.sent, 2)
	assert.Contains(t, sender.sent[0].htmlBody, "AI Suggestions:")
	assert.Contains(t, sender.sent[1].htmlBody, "AI Suggestion:")
	assert.NotContains(t, sender.sent[1].htmlBody, "Short term:")
}

func TestRun_DeliveryLogShape(t *testing.T) {
	fs := &fakeStore{
		userIDs:       []string{"u1"},
		recipients:    []store.Recipient{{ID: "u1", Email: "sam@example.com"}},
		historyByUser: map[string][]store.Submission{"u1": weeklyHistory()},
	}
	sender := &fakeSender{}

	_, e := testOrchestrator(fs, sender).Run(RunWeekly, false)

	require.Nil(t, e)
	require.Len(t, fs.logs, 1)
	entry := fs.logs[0]
	assert.Equal(t, "u1", entry.UserID)
	assert.Equal(t, "sam@example.com", entry.Email)
	assert.Equal(t, "sent", entry.Status)
	assert.Equal(t, map[string]string{"type": "weekly"}, entry.Metadata)
}

func TestRun_LogInsertFailureStillCountsAsSent(t *testing.T) {
	fs := &fakeStore{
		userIDs:       []string{"u1"},
		recipients:    []store.Recipient{{ID: "u1", Email: "sam@example.com"}},
		historyByUser: map[string][]store.Submission{"u1": weeklyHistory()},
		logErr:        xerr.NewError(errors.New("boom"), "API error from store", nil),
	}
	sender := &fakeSender{}

	summary, e := testOrchestrator(fs, sender).Run(RunWeekly, false)

	require.Nil(t, e)
	assert.Equal(t, 1, summary.Sent)
	assert.Zero(t, summary.Failed)
}

func TestRun_WeeklyUsesConfiguredRowLimit(t *testing.T) {
	fs := &fakeStore{
		userIDs:       []string{"u1"},
		recipients:    []store.Recipient{{ID: "u1", Email: "sam@example.com"}},
		historyByUser: map[string][]store.Submission{"u1": weeklyHistory()},
	}
	sender := &fakeSender{}

	_, e := testOrchestrator(fs, sender).Run(RunWeekly, false)

	require.Nil(t, e)
	assert.Equal(t, []int{10}, fs.recentLimits)
	assert.Empty(t, fs.betweenCalls)
}

func TestRun_MonthlyQueriesPreviousCalendarMonth(t *testing.T) {
	fs := &fakeStore{
		userIDs:       []string{"u1"},
		recipients:    []store.Recipient{{ID: "u1", Email: "sam@example.com"}},
		historyByUser: map[string][]store.Submission{"u1": weeklyHistory()},
	}
	sender := &fakeSender{}

	_, e := testOrchestrator(fs, sender).Run(RunMonthly, false)

	require.Nil(t, e)
	require.Len(t, fs.betweenCalls, 1)
	call := fs.betweenCalls[0]
	assert.Equal(t, "u1", call.userID)
	assert.True(t, call.start.Equal(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, call.end.Before(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.July, call.end.Month())
	assert.Equal(t, 31, call.end.Day())
	assert.Empty(t, fs.recentLimits)

	require.Len(t, fs.logs, 1)
	assert.Equal(t, map[string]string{"type": "monthly"}, fs.logs[0].Metadata)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Your Monthly Financial Digest", sender.sent[0].subject)
}

func TestPreviousMonthWindow_WrapsYearBoundary(t *testing.T) {
	start, end := previousMonthWindow(time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC))

	assert.True(t, start.Equal(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.December, end.Month())
	assert.Equal(t, 31, end.Day())
	assert.Equal(t, 2025, end.Year())
}

func TestRun_EndToEndScenario(t *testing.T) {
	fs := &fakeStore{
		userIDs:       []string{"u1"},
		recipients:    []store.Recipient{{ID: "u1", Email: "sam@example.com", Name: "Sam", PaidUser: true}},
		historyByUser: map[string][]store.Submission{"u1": weeklyHistory()},
	}
	sender := &fakeSender{}

	summary, e := testOrchestrator(fs, sender).Run(RunWeekly, false)

	require.Nil(t, e)
	assert.Equal(t, 1, summary.Sent)
	require.Len(t, sender.sent, 1)
	message := sender.sent[0]

	assert.Equal(t, "PennyWize <digest@stingyhubby.xyz>", message.sender)
	assert.Equal(t, []string{"sam@example.com"}, message.recipients)
	assert.Equal(t, "Your Weekly Financial Digest", message.subject)

	assert.Contains(t, message.htmlBody, "$3300.00")
	assert.Contains(t, message.htmlBody, "$1500.00")
	assert.Contains(t, message.htmlBody, "$1800.00")

	var csvAttachment *email.Attachment
	for index := range message.attachments {
		if message.attachments[index].Filename == "history.csv" {
			csvAttachment = &message.attachments[index]
		}
	}
	require.NotNil(t, csvAttachment)

	csvLines := strings.Split(string(csvAttachment.Content), "\n")
	require.Len(t, csvLines, 4)
	// Rows are chronological: the oldest entry right after the header.
	assert.Contains(t, csvLines[1], `"s1"`)
	assert.Contains(t, csvLines[3], `"s3"`)

	names := attachmentNames(message.attachments)
	assert.Contains(t, names, "digest.pdf")
}
