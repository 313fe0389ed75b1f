/*
client.go - HTTP client for the reports store

PURPOSE:
  Implements generic.RemoteStore against a deployed reports service, so a
  Repository can run next to the forms while the documents live remotely.
  Also wraps the read-only repository endpoints for the CLI.

RESPONSE SHAPES:
  List responses are accepted as a bare array or wrapped under data,
  items, rows or reports (generic.UnwrapReports).

ERROR CLASSIFICATION:
  List:   transport error or non-2xx         -> *generic.FetchError
  Create: 409                                -> *generic.ConflictError
          other non-2xx or transport error   -> *generic.ServerError
  Update: 404                                -> generic.ErrNotFound
          other non-2xx or transport error   -> *generic.ServerError
  Delete: 404                                -> generic.ErrNotFound
          other non-2xx or transport error   -> *generic.ServerError

  No request is retried.

USAGE:
  client := api.NewClient("http://reports.local:8080")
  repo := generic.NewRepository(client, generic.WithCatalog(checklists.Catalog()))
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/warp/report-sync/generic"
	"go.uber.org/zap"
)

// maxErrorBody caps how much of an error response is kept in messages.
const maxErrorBody = 512

// Client talks to a reports service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client (30s timeout).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithClientLogger sets the logger.
func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// =============================================================================
// STORE CONTRACT (generic.RemoteStore interface)
// =============================================================================

// List returns every report of typ.
func (c *Client) List(ctx context.Context, typ string) ([]generic.Report, error) {
	params := url.Values{"type": {typ}}
	status, body, err := c.do(ctx, http.MethodGet, "/reports?"+params.Encode(), nil)
	if err != nil {
		return nil, &generic.FetchError{Type: typ, Err: err}
	}
	if !success(status) {
		return nil, &generic.FetchError{Type: typ, StatusCode: status, Err: errorMessage(body)}
	}
	reports, err := generic.UnwrapReports(body)
	if err != nil {
		return nil, &generic.FetchError{Type: typ, StatusCode: status, Err: err}
	}
	return reports, nil
}

// Create posts a new report.
func (c *Client) Create(ctx context.Context, r generic.Report) (generic.Report, error) {
	req := CreateReportRequest{
		Type:           r.Type,
		Payload:        r.Payload,
		Reporter:       r.Reporter,
		Branch:         r.Branch,
		IdempotencyKey: r.IdempotencyKey,
	}
	status, body, err := c.do(ctx, http.MethodPost, "/reports", req)
	if err != nil {
		return generic.Report{}, &generic.ServerError{Op: "create", Err: err}
	}
	switch {
	case status == http.StatusConflict:
		return generic.Report{}, &generic.ConflictError{
			Type:           r.Type,
			IdempotencyKey: r.IdempotencyKey,
			Message:        errorMessage(body).Error(),
		}
	case !success(status):
		return generic.Report{}, &generic.ServerError{Op: "create", StatusCode: status, Err: errorMessage(body)}
	}
	created, err := generic.DecodeReport(body)
	if err != nil {
		return generic.Report{}, &generic.ServerError{Op: "create", StatusCode: status, Err: err}
	}
	return created, nil
}

// Update replaces a report's payload.
func (c *Client) Update(ctx context.Context, id string, r generic.Report) (generic.Report, error) {
	req := UpdateReportRequest{Payload: r.Payload, Reporter: r.Reporter, Branch: r.Branch}
	status, body, err := c.do(ctx, http.MethodPut, "/reports/"+url.PathEscape(id), req)
	if err != nil {
		return generic.Report{}, &generic.ServerError{Op: "update", ID: id, Err: err}
	}
	switch {
	case status == http.StatusNotFound:
		return generic.Report{}, generic.ErrNotFound
	case !success(status):
		return generic.Report{}, &generic.ServerError{Op: "update", ID: id, StatusCode: status, Err: errorMessage(body)}
	}
	updated, err := generic.DecodeReport(body)
	if err != nil {
		return generic.Report{}, &generic.ServerError{Op: "update", ID: id, StatusCode: status, Err: err}
	}
	return updated, nil
}

// Delete removes a report. An unknown id returns generic.ErrNotFound.
func (c *Client) Delete(ctx context.Context, id string) error {
	status, body, err := c.do(ctx, http.MethodDelete, "/reports/"+url.PathEscape(id), nil)
	if err != nil {
		return &generic.ServerError{Op: "delete", ID: id, Err: err}
	}
	switch {
	case status == http.StatusNotFound:
		return generic.ErrNotFound
	case !success(status):
		return &generic.ServerError{Op: "delete", ID: id, StatusCode: status, Err: errorMessage(body)}
	}
	return nil
}

// =============================================================================
// REPOSITORY ENDPOINTS
// =============================================================================

// Types lists the service's catalog.
func (c *Client) Types(ctx context.Context) ([]TypeDTO, error) {
	var out []TypeDTO
	if err := c.getJSON(ctx, "/api/types", "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Calendar fetches the browse tree of typ.
func (c *Client) Calendar(ctx context.Context, typ string, filter generic.Filter) (CalendarResponse, error) {
	var out CalendarResponse
	path := "/api/types/" + url.PathEscape(typ) + "/calendar"
	if q := filterQuery(filter); q != "" {
		path += "?" + q
	}
	err := c.getJSON(ctx, path, typ, &out)
	return out, err
}

// Exists asks whether a report for (typ, branch, day) is stored.
func (c *Client) Exists(ctx context.Context, typ, branch, day string) (ExistsResponse, error) {
	var out ExistsResponse
	params := url.Values{"day": {day}}
	if branch != "" {
		params.Set("branch", branch)
	}
	err := c.getJSON(ctx, "/api/types/"+url.PathEscape(typ)+"/exists?"+params.Encode(), typ, &out)
	return out, err
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Client) getJSON(ctx context.Context, path, typ string, v any) error {
	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return &generic.FetchError{Type: typ, Err: err}
	}
	if !success(status) {
		return &generic.FetchError{Type: typ, StatusCode: status, Err: errorMessage(body)}
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return &generic.FetchError{Type: typ, StatusCode: status, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("store request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("store request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))
	return resp.StatusCode, body, nil
}

func success(status int) bool {
	return status >= 200 && status < 300
}

// errorMessage extracts the message of an error body.
func errorMessage(body []byte) error {
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error != "" {
		if details, ok := resp.Details.(string); ok && details != "" {
			return fmt.Errorf("%s: %s", resp.Error, details)
		}
		return errors.New(resp.Error)
	}
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	if text == "" {
		text = "empty response"
	}
	return errors.New(text)
}

func filterQuery(f generic.Filter) string {
	params := url.Values{}
	if f.Branch != "" {
		params.Set("branch", f.Branch)
	}
	if f.From != "" {
		params.Set("from", f.From)
	}
	if f.To != "" {
		params.Set("to", f.To)
	}
	return params.Encode()
}

var _ generic.RemoteStore = (*Client)(nil)
