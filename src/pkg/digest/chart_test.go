package digest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pennywize/src/pkg/store"
)

func chartHistory() []store.Submission {
	return []store.Submission{
		{CreatedAt: time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC), Income: 1000, Mortgage: 500},
		{CreatedAt: time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC), Income: 1200, Mortgage: 500},
		{CreatedAt: time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC), Income: 1100, Utilities: 200, CreditCards: 300},
	}
}

func decodeChartSpec(t *testing.T, chartURL string) (spec chartSpec, query url.Values) {
	t.Helper()

	parsed, parseErr := url.Parse(chartURL)
	require.NoError(t, parseErr)
	query = parsed.Query()

	unmarshalErr := json.Unmarshal([]byte(query.Get("c")), &spec)
	require.NoError(t, unmarshalErr)
	return spec, query
}

func TestBuildChartURL_SpecShape(t *testing.T) {
	chartURL := BuildChartURL(chartHistory(), "Income vs. Expenses", 1000, 500)
	require.True(t, strings.HasPrefix(chartURL, QuickChartURL+"?"))

	spec, query := decodeChartSpec(t, chartURL)

	assert.Equal(t, "png", query.Get("format"))
	assert.Equal(t, "1000", query.Get("width"))
	assert.Equal(t, "500", query.Get("height"))

	assert.Equal(t, "bar", spec.Type)
	assert.True(t, spec.Options.Plugins.Title.Display)
	assert.Equal(t, "Income vs. Expenses", spec.Options.Plugins.Title.Text)
	assert.True(t, spec.Options.Scales.Y.BeginAtZero)

	require.Len(t, spec.Data.Datasets, 2)
	assert.Equal(t, "Income", spec.Data.Datasets[0].Label)
	assert.Equal(t, []float64{1000, 1200, 1100}, spec.Data.Datasets[0].Data)
	assert.Equal(t, "Expenses", spec.Data.Datasets[1].Label)
	assert.Equal(t, []float64{500, 500, 500}, spec.Data.Datasets[1].Data)
}

func TestBuildChartURL_LabelsFollowInputOrder(t *testing.T) {
	chartURL := BuildChartURL(chartHistory(), "t", 10, 10)

	spec, _ := decodeChartSpec(t, chartURL)

	assert.Equal(t, []string{"8/3/2026", "8/10/2026", "8/17/2026"}, spec.Data.Labels)
}

func TestBuildChartURL_EmptyHistoryStillBuilds(t *testing.T) {
	chartURL := BuildChartURL(nil, "t", 10, 10)

	spec, _ := decodeChartSpec(t, chartURL)

	assert.Empty(t, spec.Data.Labels)
	require.Len(t, spec.Data.Datasets, 2)
	assert.Empty(t, spec.Data.Datasets[0].Data)
}

func TestReverseHistory(t *testing.T) {
	newestFirst := chartHistory()
	// chartHistory is oldest-first; flip it to imitate a store result.
	newestFirst = ReverseHistory(newestFirst)

	oldestFirst := ReverseHistory(newestFirst)

	assert.Equal(t, chartHistory(), oldestFirst)
	// The input slice is untouched.
	assert.Equal(t, 1100.0, newestFirst[0].Income)
}

func TestFetchChartPNG_ReturnsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("png-bytes"))
	}))
	defer server.Close()

	png, e := FetchChartPNG(server.URL)

	require.Nil(t, e)
	assert.Equal(t, []byte("png-bytes"), png)
}

func TestFetchChartPNG_Non2xxIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	png, e := FetchChartPNG(server.URL)

	assert.Nil(t, png)
	assert.NotNil(t, e)
}

func TestFetchChartPNG_UnreachableHostIsError(t *testing.T) {
	png, e := FetchChartPNG("http://127.0.0.1:1/chart")

	assert.Nil(t, png)
	assert.NotNil(t, e)
}
