package digest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	tl "github.com/tuumbleweed/tintlog/logger"
	"github.com/tuumbleweed/tintlog/palette"
	"github.com/tuumbleweed/xerr"

	"pennywize/src/pkg/store"
)

const (
	QuickChartURL     = "https://quickchart.io/chart"
	ChartFetchTimeout = 10 * time.Second // a hung chart fetch must not stall the whole run
)

// DateLabelLayout matches the short date format the digests have always
// used for chart labels and entry lists (month/day/year, no padding).
const DateLabelLayout = "1/2/2006"

/*
chartSpec is the declarative bar-chart description sent to QuickChart
as the "c" query parameter.
*/
type chartSpec struct {
	Type    string       `json:"type"`
	Data    chartData    `json:"data"`
	Options chartOptions `json:"options"`
}

type chartData struct {
	Labels   []string       `json:"labels"`
	Datasets []chartDataset `json:"datasets"`
}

type chartDataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

type chartOptions struct {
	Plugins chartPlugins `json:"plugins"`
	Scales  chartScales  `json:"scales"`
}

type chartPlugins struct {
	Title chartTitle `json:"title"`
}

type chartTitle struct {
	Display bool   `json:"display"`
	Text    string `json:"text"`
}

type chartScales struct {
	Y chartAxis `json:"y"`
}

type chartAxis struct {
	BeginAtZero bool `json:"beginAtZero"`
}

/*
BuildChartURL converts a submission history into a QuickChart request
URL for a grouped income/expenses bar chart.

The history MUST be oldest-first; callers holding newest-first query
results reverse them before calling. That ordering is what makes the
bars read chronologically left to right.
*/
func BuildChartURL(history []store.Submission, title string, width int, height int) string {
	labels := make([]string, 0, len(history))
	incomeData := make([]float64, 0, len(history))
	expenseData := make([]float64, 0, len(history))

	for _, row := range history {
		labels = append(labels, row.CreatedAt.Format(DateLabelLayout))
		incomeData = append(incomeData, row.Income)
		expenseData = append(expenseData, row.TotalExpenses())
	}

	spec := chartSpec{
		Type: "bar",
		Data: chartData{
			Labels: labels,
			Datasets: []chartDataset{
				{Label: "Income", Data: incomeData},
				{Label: "Expenses", Data: expenseData},
			},
		},
		Options: chartOptions{
			Plugins: chartPlugins{Title: chartTitle{Display: true, Text: title}},
			Scales:  chartScales{Y: chartAxis{BeginAtZero: true}},
		},
	}

	// Marshal cannot fail here; the struct has no channels/funcs/cycles.
	encoded, _ := json.Marshal(spec)

	query := url.Values{}
	query.Set("c", string(encoded))
	query.Set("format", "png")
	query.Set("width", strconv.Itoa(width))
	query.Set("height", strconv.Itoa(height))

	return QuickChartURL + "?" + query.Encode()
}

/*
FetchChartPNG performs a single best-effort GET for the rendered chart.

Any failure (network error, timeout, non-2xx) comes back as *xerr.Error
and the caller degrades to "no chart image": the PDF omits its Chart
section and the HTML keeps its remote <img> tag. Never treat a chart
failure as fatal for a recipient.
*/
func FetchChartPNG(chartURL string) (png []byte, e *xerr.Error) {
	client := &http.Client{Timeout: ChartFetchTimeout}

	resp, httpErr := client.Get(chartURL)
	if httpErr != nil {
		return nil, xerr.NewError(httpErr, "HTTP error during chart fetch", map[string]any{"url": chartURL})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, xerr.NewError(fmt.Errorf("status is '%s'", resp.Status), "API error from chart service", chartURL)
	}

	png, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, xerr.NewError(readErr, "Failed to read chart response body", nil)
	}

	tl.Log(tl.Detailed, palette.CyanDim, "Fetched chart image: '%d' bytes", len(png))
	return png, nil
}

// ReverseHistory returns a copy of the history in opposite order.
// Store queries return newest-first; chart and PDF want oldest-first.
func ReverseHistory(history []store.Submission) []store.Submission {
	reversed := make([]store.Submission, 0, len(history))
	for index := len(history) - 1; index >= 0; index -= 1 {
		reversed = append(reversed, history[index])
	}
	return reversed
}
