// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bifrostclient is the HTTP client cmd/bifrostctl drives against
// internal/api. It speaks the same request/response shapes the daemon's
// handlers encode, independently declared here since a CLI process has no
// in-process handle on the daemon's types.
package bifrostclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to a running bifrostd over HTTP.
type Client struct {
	BaseURL         string
	HTTPClient      *http.Client
	UserID          string
	Email           string
	DisplayName     string
	IsPlatformAdmin bool
}

// New builds a Client against baseURL, e.g. "http://localhost:8080".
func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTPClient: http.DefaultClient}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("bifrostclient: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("bifrostclient: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setCallerHeaders(req)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("bifrostclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return &StatusError{Status: resp.StatusCode, Message: apiErr.Error}
		}
		return &StatusError{Status: resp.StatusCode, Message: resp.Status}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("bifrostclient: decode response: %w", err)
	}
	return nil
}

func (c *Client) setCallerHeaders(req *http.Request) {
	if c.UserID != "" {
		req.Header.Set("X-User-Id", c.UserID)
	}
	if c.Email != "" {
		req.Header.Set("X-User-Email", c.Email)
	}
	if c.DisplayName != "" {
		req.Header.Set("X-User-Name", c.DisplayName)
	}
	if c.IsPlatformAdmin {
		req.Header.Set("X-Platform-Admin", "true")
	}
}

// StatusError carries the HTTP status code from a non-2xx daemon response.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bifrostd returned %d: %s", e.Status, e.Message)
}

// SubmitRequest mirrors internal/api's submitRequest wire shape.
type SubmitRequest struct {
	WorkflowName string         `json:"workflow_name,omitempty"`
	Code         string         `json:"code,omitempty"`
	Scope        string         `json:"scope,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	FormID       string         `json:"form_id,omitempty"`
}

// ExecutionResult mirrors internal/api's submitResponse wire shape, plus the
// cached/cache_expires_at fields invokeResponse adds for data-provider
// invocations.
type ExecutionResult struct {
	ExecutionID    string     `json:"execution_id"`
	Status         string     `json:"status"`
	Result         any        `json:"result,omitempty"`
	ResultType     string     `json:"result_type,omitempty"`
	Cached         bool       `json:"cached,omitempty"`
	CacheExpiresAt *time.Time `json:"cache_expires_at,omitempty"`
	ErrorType      string     `json:"error_type,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	DurationMs     int64      `json:"duration_ms,omitempty"`
}

// Submit dispatches a named workflow or an inline script.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*ExecutionResult, error) {
	var out ExecutionResult
	if err := c.do(ctx, http.MethodPost, "/v1/executions", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Execution is the subset of pkg/execution.Execution the daemon exposes
// over GET /v1/executions/{id}.
type Execution struct {
	ExecutionID     string         `json:"execution_id"`
	WorkflowName    string         `json:"workflow_name"`
	Status          string         `json:"status"`
	Scope           string         `json:"scope"`
	StartedAt       string         `json:"started_at"`
	CompletedAt     string         `json:"completed_at,omitempty"`
	Result          any            `json:"result,omitempty"`
	ResultType      string         `json:"result_type,omitempty"`
	ErrorType       string         `json:"error_type,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	ExecutedByName  string         `json:"executed_by_name,omitempty"`
	ExecutedByEmail string         `json:"executed_by_email,omitempty"`
	Parameters      map[string]any `json:"parameters,omitempty"`
}

// Get fetches a single execution record by ID.
func (c *Client) Get(ctx context.Context, executionID, scope string) (*Execution, error) {
	query := url.Values{}
	if scope != "" {
		query.Set("scope", scope)
	}
	var out Execution
	if err := c.do(ctx, http.MethodGet, "/v1/executions/"+executionID, query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel requests cancellation of a pending or running execution.
func (c *Client) Cancel(ctx context.Context, executionID, scope string) error {
	query := url.Values{}
	if scope != "" {
		query.Set("scope", scope)
	}
	return c.do(ctx, http.MethodPost, "/v1/executions/"+executionID+"/cancel", query, nil, nil)
}

// LogEntry mirrors pkg/execution.LogEntry's wire shape.
type LogEntry struct {
	ExecutionLogID string `json:"execution_log_id"`
	ExecutionID    string `json:"execution_id"`
	Timestamp      string `json:"timestamp"`
	Sequence       int    `json:"sequence"`
	Level          string `json:"level"`
	Message        string `json:"message"`
	Source         string `json:"source"`
}

// Logs fetches the latest n log lines for an execution.
func (c *Client) Logs(ctx context.Context, executionID string, n int) ([]LogEntry, error) {
	query := url.Values{}
	if n > 0 {
		query.Set("n", strconv.Itoa(n))
	}
	var out struct {
		Logs []LogEntry `json:"logs"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/executions/"+executionID+"/logs", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Logs, nil
}

// Projection mirrors pkg/execution.DisplayProjection's wire shape.
type Projection struct {
	ExecutionID     string `json:"execution_id"`
	WorkflowName    string `json:"workflow_name"`
	Status          string `json:"status"`
	StartedAt       string `json:"started_at"`
	CompletedAt     string `json:"completed_at,omitempty"`
	DurationMs      int64  `json:"duration_ms,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	ExecutedByName  string `json:"executed_by_name,omitempty"`
	ExecutedByEmail string `json:"executed_by_email,omitempty"`
}

// Page is a single page of a listing, with the token to fetch the next one.
type Page struct {
	Items     []Projection `json:"items"`
	NextToken string       `json:"next_token,omitempty"`
}

// ListParams narrows a listing to a page.
type ListParams struct {
	PageToken string
	Limit     int
}

func (p ListParams) query() url.Values {
	q := url.Values{}
	if p.PageToken != "" {
		q.Set("page_token", p.PageToken)
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	return q
}

// ListByUser lists executions a given user submitted.
func (c *Client) ListByUser(ctx context.Context, userID string, params ListParams) (*Page, error) {
	var out Page
	if err := c.do(ctx, http.MethodGet, "/v1/users/"+userID+"/executions", params.query(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListByWorkflow lists executions of a given workflow, optionally scoped.
func (c *Client) ListByWorkflow(ctx context.Context, workflowName, scope string, params ListParams) (*Page, error) {
	q := params.query()
	if scope != "" {
		q.Set("scope", scope)
	}
	var out Page
	if err := c.do(ctx, http.MethodGet, "/v1/workflows/"+workflowName+"/executions", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListByForm lists executions submitted through a given form.
func (c *Client) ListByForm(ctx context.Context, formID string, params ListParams) (*Page, error) {
	var out Page
	if err := c.do(ctx, http.MethodGet, "/v1/forms/"+formID+"/executions", params.query(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListByScope lists every execution within a scope.
func (c *Client) ListByScope(ctx context.Context, scope string, params ListParams) (*Page, error) {
	var out Page
	if err := c.do(ctx, http.MethodGet, "/v1/scopes/"+scope+"/executions", params.query(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Metadata mirrors internal/discovery.Metadata's wire shape.
type Metadata struct {
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Workflows lists every registered workflow.
func (c *Client) Workflows(ctx context.Context) ([]Metadata, error) {
	var out []Metadata
	if err := c.do(ctx, http.MethodGet, "/v1/workflows", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DataProviders lists every registered data provider.
func (c *Client) DataProviders(ctx context.Context) ([]Metadata, error) {
	var out []Metadata
	if err := c.do(ctx, http.MethodGet, "/v1/data-providers", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// InvokeDataProvider runs a data provider transiently and returns its result.
func (c *Client) InvokeDataProvider(ctx context.Context, name string, parameters map[string]any) (*ExecutionResult, error) {
	body := map[string]any{}
	if parameters != nil {
		body["parameters"] = parameters
	}
	var out ExecutionResult
	if err := c.do(ctx, http.MethodPost, "/v1/data-providers/"+name+"/invoke", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
