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

package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tombee-labs/bifrost-engine/internal/dispatch"
	"github.com/tombee-labs/bifrost-engine/internal/httputil"
	"github.com/tombee-labs/bifrost-engine/internal/record"
	bifrosterrors "github.com/tombee-labs/bifrost-engine/pkg/errors"
	"github.com/tombee-labs/bifrost-engine/pkg/execution"
)

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

// callerFromRequest reads caller identity off plain headers. A real
// deployment terminates authentication at a gateway in front of this
// process and forwards identity downstream; this is the local stand-in
// (see package doc).
func callerFromRequest(r *http.Request) (execution.Caller, bool) {
	caller := execution.Caller{
		UserID:      r.Header.Get("X-User-Id"),
		Email:       r.Header.Get("X-User-Email"),
		DisplayName: r.Header.Get("X-User-Name"),
	}
	isAdmin := r.Header.Get("X-Platform-Admin") == "true"
	return caller, isAdmin
}

type submitRequest struct {
	WorkflowName string         `json:"workflow_name,omitempty"`
	Code         string         `json:"code,omitempty"` // inline script source, plain text
	Scope        string         `json:"scope,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	FormID       string         `json:"form_id,omitempty"`
}

type submitResponse struct {
	ExecutionID  string `json:"execution_id"`
	Status       string `json:"status"`
	Result       any    `json:"result,omitempty"`
	ResultType   string `json:"result_type,omitempty"`
	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	DurationMs   int64  `json:"duration_ms,omitempty"`
}

// submit dispatches a named workflow or an inline script. It returns
// immediately for the async path (202, body carries PENDING) and blocks for
// the sync path until the workflow finishes or the dispatcher's own
// timeout fires.
func (h *handlers) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	if req.WorkflowName == "" && req.Code == "" {
		httputil.WriteError(w, http.StatusBadRequest, "exactly one of workflow_name or code is required")
		return
	}

	caller, isAdmin := callerFromRequest(r)
	dispatchReq := dispatch.Request{
		WorkflowName:    req.WorkflowName,
		Code:            []byte(req.Code),
		Caller:          caller,
		Scope:           req.Scope,
		Parameters:      req.Parameters,
		FormID:          req.FormID,
		IsPlatformAdmin: isAdmin,
	}

	resp, err := h.deps.Dispatcher.Dispatch(r.Context(), dispatchReq)
	if err != nil {
		writeDispatchError(w, err)
		return
	}

	status := http.StatusOK
	if resp.Status == execution.StatusPending {
		status = http.StatusAccepted
	}
	httputil.WriteJSON(w, status, submitResponse{
		ExecutionID:  resp.ExecutionID,
		Status:       string(resp.Status),
		Result:       resp.Result,
		ResultType:   resp.ResultType,
		ErrorType:    resp.ErrorType,
		ErrorMessage: resp.ErrorMessage,
		DurationMs:   resp.DurationMs,
	})
}

// writeDispatchError shapes a Dispatch error into an HTTP status: a
// validation failure or unknown workflow is a 4xx that created no record,
// anything else is a 500.
func writeDispatchError(w http.ResponseWriter, err error) {
	var validationErr *bifrosterrors.ValidationError
	if errors.As(err, &validationErr) {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var notFoundErr *bifrosterrors.WorkflowNotFoundError
	if errors.As(err, &notFoundErr) {
		httputil.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	httputil.WriteError(w, http.StatusInternalServerError, "failed to dispatch execution")
}

func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	scope := scopeOf(r)
	e, err := h.deps.Records.Get(r.Context(), id, scope)
	if err != nil {
		writeRecordError(w, err)
		return
	}
	_, isAdmin := callerFromRequest(r)
	httputil.WriteJSON(w, http.StatusOK, shapeExecution(e, isAdmin))
}

// shapeExecution applies the same admin-vs-non-admin error visibility rule
// dispatch.shapeErrorMessage applies to a sync response, here for a record
// fetched after the fact.
func shapeExecution(e *execution.Execution, isPlatformAdmin bool) *execution.Execution {
	if isPlatformAdmin || e.ErrorType == "" || e.ErrorType == bifrosterrors.ErrorTypeUserError {
		return e
	}
	cp := *e
	cp.ErrorMessage = "An error occurred during execution"
	return &cp
}

func (h *handlers) cancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	scope := scopeOf(r)
	status, err := h.deps.Records.GetStatus(r.Context(), id, scope)
	if err != nil {
		writeRecordError(w, err)
		return
	}
	if status.IsTerminal() {
		httputil.WriteError(w, http.StatusConflict, "execution already reached a terminal state")
		return
	}
	if err := h.deps.KV.SetCancel(r.Context(), id, time.Hour); err != nil {
		h.logger.Error("api: failed to set cancellation flag", "execution_id", id, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to request cancellation")
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "CANCELLING"})
}

type logsResponse struct {
	Logs []execution.LogEntry `json:"logs"`
}

func (h *handlers) logs(w http.ResponseWriter, r *http.Request) {
	if h.deps.Logs == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "log storage is not configured")
		return
	}
	id := r.PathValue("id")
	n := 200
	if v := r.URL.Query().Get("n"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	}
	entries, err := h.deps.Logs.Latest(r.Context(), id, n)
	if err != nil {
		h.logger.Error("api: failed to read logs", "execution_id", id, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to read logs")
		return
	}
	_, isAdmin := callerFromRequest(r)
	visible := entries[:0]
	for _, e := range entries {
		if e.Visible(isAdmin) {
			visible = append(visible, e)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, logsResponse{Logs: visible})
}

func (h *handlers) listByUser(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func(page record.Page) (record.PageResult, error) {
		return h.deps.Records.ListByUser(r.Context(), r.PathValue("userID"), page)
	})
}

func (h *handlers) listByWorkflow(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func(page record.Page) (record.PageResult, error) {
		return h.deps.Records.ListByWorkflow(r.Context(), r.PathValue("name"), scopeOf(r), page)
	})
}

func (h *handlers) listByForm(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func(page record.Page) (record.PageResult, error) {
		return h.deps.Records.ListByForm(r.Context(), r.PathValue("formID"), page)
	})
}

func (h *handlers) listByScope(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func(page record.Page) (record.PageResult, error) {
		return h.deps.Records.ListByScope(r.Context(), r.PathValue("scope"), page)
	})
}

type listResponse struct {
	Items     []execution.DisplayProjection `json:"items"`
	NextToken string                        `json:"next_token,omitempty"`
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request, fetch func(record.Page) (record.PageResult, error)) {
	page := record.Page{Token: r.URL.Query().Get("page_token")}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			page.Limit = n
		}
	}
	result, err := fetch(page)
	if err != nil {
		h.logger.Error("api: list query failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Items: result.Items, NextToken: result.NextToken})
}

func (h *handlers) listWorkflows(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.deps.Registry.Workflows())
}

func (h *handlers) listDataProviders(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.deps.Registry.DataProviders())
}

func scopeOf(r *http.Request) string {
	if scope := r.URL.Query().Get("scope"); scope != "" {
		return scope
	}
	return execution.GlobalScope
}

func writeRecordError(w http.ResponseWriter, err error) {
	var notFound *bifrosterrors.NotFoundError
	if errors.As(err, &notFound) {
		httputil.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	httputil.WriteError(w, http.StatusInternalServerError, "failed to read execution record")
}
