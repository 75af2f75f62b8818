// Package redcap is a small client for the REDCap record API.
package redcap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// MaxTextLength is the longest value REDCap stores in a text field
const MaxTextLength = 32000

// APIError is returned for non-2xx responses
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("redcap api returned %d: %s", e.StatusCode, e.Message)
}

// Record is one flat REDCap record keyed by field name
type Record map[string]string

// Field describes a data dictionary entry
type Field struct {
	FieldName string `json:"field_name"`
	FormName  string `json:"form_name"`
	FieldType string `json:"field_type"`
}

// ProjectInfo holds the subset of project attributes used for connection checks
type ProjectInfo struct {
	ProjectID      json.Number `json:"project_id"`
	ProjectTitle   string      `json:"project_title"`
	IsLongitudinal json.Number `json:"is_longitudinal"`
}

// ExportOptions narrows a record export
type ExportOptions struct {
	Fields      []string
	FilterLogic string
}

// Client talks to a single REDCap project
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewClient creates a client bounded by timeout per call
func NewClient(endpoint, token string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		token:    token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ImportRecords creates or updates records and returns how many REDCap accepted
func (c *Client) ImportRecords(ctx context.Context, records []Record) (int, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return 0, fmt.Errorf("marshal records: %w", err)
	}

	form := url.Values{}
	form.Set("content", "record")
	form.Set("action", "import")
	form.Set("format", "json")
	form.Set("type", "flat")
	form.Set("overwriteBehavior", "normal")
	form.Set("forceAutoNumber", "false")
	form.Set("returnContent", "count")
	form.Set("data", string(data))

	var resp struct {
		Count json.Number `json:"count"`
	}
	if err := c.post(ctx, form, &resp); err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(resp.Count.String())
	if err != nil {
		return 0, fmt.Errorf("unexpected import count %q", resp.Count)
	}
	return n, nil
}

// ExportRecords returns the records matching opts
func (c *Client) ExportRecords(ctx context.Context, opts ExportOptions) ([]Record, error) {
	form := url.Values{}
	form.Set("content", "record")
	form.Set("action", "export")
	form.Set("format", "json")
	form.Set("type", "flat")
	form.Set("rawOrLabel", "raw")
	for i, f := range opts.Fields {
		form.Set(fmt.Sprintf("fields[%d]", i), f)
	}
	if opts.FilterLogic != "" {
		form.Set("filterLogic", opts.FilterLogic)
	}

	var raw []map[string]any
	if err := c.post(ctx, form, &raw); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(raw))
	for _, r := range raw {
		rec := make(Record, len(r))
		for k, v := range r {
			rec[k] = fmt.Sprint(v)
		}
		records = append(records, rec)
	}
	return records, nil
}

// ExportMetadata returns the project data dictionary
func (c *Client) ExportMetadata(ctx context.Context) ([]Field, error) {
	form := url.Values{}
	form.Set("content", "metadata")
	form.Set("format", "json")

	var fields []Field
	if err := c.post(ctx, form, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// ExportProjectInfo fetches project attributes; used as a connection test
func (c *Client) ExportProjectInfo(ctx context.Context) (ProjectInfo, error) {
	form := url.Values{}
	form.Set("content", "project")
	form.Set("format", "json")

	var info ProjectInfo
	err := c.post(ctx, form, &info)
	return info, err
}

func (c *Client) post(ctx context.Context, form url.Values, out any) error {
	form.Set("token", c.token)
	form.Set("returnFormat", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("redcap request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// Truncate cuts s to the REDCap text field limit on a rune boundary
func Truncate(s string) string {
	if len(s) <= MaxTextLength {
		return s
	}
	cut := MaxTextLength
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// QuoteLogic escapes v for use as a string literal in filterLogic
func QuoteLogic(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "\\'") + "'"
}
