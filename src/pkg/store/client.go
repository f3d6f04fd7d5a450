package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	tl "github.com/tuumbleweed/tintlog/logger"
	"github.com/tuumbleweed/tintlog/palette"
	"github.com/tuumbleweed/xerr"
)

const QueryTimeout = 15 * time.Second

/*
This file contains a tiny, dependency-free REST client for the Supabase
PostgREST API that holds users, preferences, submissions and email_logs.

Key pieces:
- GET  /rest/v1/{table}?... (getRows): filtered select into a typed slice
- POST /rest/v1/{table}     (insertRow): single-row insert, return=minimal
*/

type Client struct {
	baseURL        string
	serviceRoleKey string
	httpClient     *http.Client
}

/*
NewClient builds a store client for the given project URL and service
role key. Construct it once at process start and pass it down; there is
no package-level singleton on purpose.
*/
func NewClient(baseURL string, serviceRoleKey string) *Client {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return &Client{
		baseURL:        trimmed,
		serviceRoleKey: serviceRoleKey,
		httpClient:     &http.Client{Timeout: QueryTimeout},
	}
}

/*
getRows performs GET /rest/v1/{table} with the given query and decodes
the JSON array response into out (a pointer to a slice).
*/
func (c *Client) getRows(table string, query url.Values, out any) (e *xerr.Error) {
	requestURL := fmt.Sprintf("%s/rest/v1/%s?%s", c.baseURL, table, query.Encode())

	req, newReqErr := http.NewRequest("GET", requestURL, nil)
	if newReqErr != nil {
		return xerr.NewError(newReqErr, "Failed to create HTTP request", map[string]any{"table": table})
	}
	c.setAuthHeaders(req)

	resp, httpErr := c.httpClient.Do(req)
	if httpErr != nil {
		return xerr.NewError(httpErr, "HTTP error during store query", map[string]any{"url": requestURL})
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return xerr.NewError(readErr, "Failed to read store response body", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return xerr.NewError(fmt.Errorf("status is '%s'", resp.Status), "API error from store query", string(respBody))
	}
	tl.LogJSON(tl.Debug, palette.CyanDim, "store response body", respBody)

	decodeErr := json.Unmarshal(respBody, out)
	if decodeErr != nil {
		return xerr.NewError(decodeErr, "Failed to decode store response body", map[string]any{"table": table})
	}

	return nil
}

/*
insertRow performs POST /rest/v1/{table} with a single JSON row.
Prefer: return=minimal keeps the response empty on success (201).
*/
func (c *Client) insertRow(table string, row any) (e *xerr.Error) {
	encoded, marshalErr := json.Marshal(row)
	if marshalErr != nil {
		return xerr.NewError(marshalErr, "Failed to marshal store row", row)
	}

	requestURL := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, table)
	req, newReqErr := http.NewRequest("POST", requestURL, bytes.NewBuffer(encoded))
	if newReqErr != nil {
		return xerr.NewError(newReqErr, "Failed to create HTTP request", map[string]any{"table": table})
	}
	c.setAuthHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")

	resp, httpErr := c.httpClient.Do(req)
	if httpErr != nil {
		return xerr.NewError(httpErr, "HTTP error during store insert", map[string]any{"url": requestURL})
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return xerr.NewError(fmt.Errorf("status is '%s'", resp.Status), "API error from store insert", string(respBody))
	}

	return nil
}

func (c *Client) setAuthHeaders(req *http.Request) {
	req.Header.Set("apikey", c.serviceRoleKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceRoleKey)
}

/*
FetchOptedInUserIDs returns the user IDs whose preference flag (e.g.
email_weekly_digest) is enabled. Zero matches is not an error.
*/
func (c *Client) FetchOptedInUserIDs(preferenceFlag string) (userIDs []string, e *xerr.Error) {
	query := url.Values{}
	query.Set("select", "user_id")
	query.Set(preferenceFlag, "eq.true")

	var rows []struct {
		UserID string `json:"user_id"`
	}
	e = c.getRows("preferences", query, &rows)
	if e != nil {
		return nil, e
	}

	userIDs = make([]string, 0, len(rows))
	for _, row := range rows {
		userIDs = append(userIDs, row.UserID)
	}

	tl.Log(tl.Info1, palette.Cyan, "Found '%d' opted-in users for flag '%s'", len(userIDs), preferenceFlag)
	return userIDs, nil
}

/*
FetchRecipients returns full recipient records (including the paid
flag) for the given user IDs.
*/
func (c *Client) FetchRecipients(userIDs []string) (recipients []Recipient, e *xerr.Error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	query := url.Values{}
	query.Set("select", "id,email,name,paid_user")
	query.Set("id", fmt.Sprintf("in.(%s)", strings.Join(userIDs, ",")))

	e = c.getRows("users", query, &recipients)
	if e != nil {
		return nil, e
	}
	return recipients, nil
}

/*
FetchRecentSubmissions returns the user's most recent rows,
newest-first, capped at limit. Used by the weekly digest.
*/
func (c *Client) FetchRecentSubmissions(userID string, limit int) (history []Submission, e *xerr.Error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("user_id", "eq."+userID)
	query.Set("order", "created_at.desc")
	query.Set("limit", strconv.Itoa(limit))

	e = c.getRows("submissions", query, &history)
	if e != nil {
		return nil, e
	}
	return history, nil
}

/*
FetchSubmissionsBetween returns the user's rows with created_at inside
[start, end], newest-first. Used by the monthly digest with the
previous calendar month as the window.
*/
func (c *Client) FetchSubmissionsBetween(userID string, start time.Time, end time.Time) (history []Submission, e *xerr.Error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("user_id", "eq."+userID)
	query.Add("created_at", "gte."+start.UTC().Format(time.RFC3339))
	query.Add("created_at", "lte."+end.UTC().Format(time.RFC3339))
	query.Set("order", "created_at.desc")

	e = c.getRows("submissions", query, &history)
	if e != nil {
		return nil, e
	}
	return history, nil
}

// InsertEmailLog records a successful send in email_logs.
func (c *Client) InsertEmailLog(entry EmailLogEntry) (e *xerr.Error) {
	return c.insertRow("email_logs", entry)
}
