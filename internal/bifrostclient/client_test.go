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

package bifrostclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestSubmit_SendsCallerHeadersAndDecodesResponse(t *testing.T) {
	var gotMethod, gotPath string
	var gotHeaders http.Header
	var gotBody SubmitRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotHeaders = r.Method, r.URL.Path, r.Header
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		json.NewEncoder(w).Encode(ExecutionResult{ExecutionID: "exec-1", Status: "SUCCESS"})
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, UserID: "u1", Email: "u1@example.com", DisplayName: "User One", IsPlatformAdmin: true}
	result, err := c.Submit(context.Background(), SubmitRequest{WorkflowName: "sum_two"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if gotMethod != http.MethodPost || gotPath != "/v1/executions" {
		t.Errorf("request = %s %s, want POST /v1/executions", gotMethod, gotPath)
	}
	if gotHeaders.Get("X-User-Id") != "u1" || gotHeaders.Get("X-Platform-Admin") != "true" {
		t.Errorf("caller headers not forwarded: %+v", gotHeaders)
	}
	if gotBody.WorkflowName != "sum_two" {
		t.Errorf("request body = %+v, want workflow_name sum_two", gotBody)
	}
	if result.ExecutionID != "exec-1" || result.Status != "SUCCESS" {
		t.Errorf("result = %+v, want exec-1/SUCCESS", result)
	}
}

func TestDo_NonOKStatusReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "execution not found"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Get(context.Background(), "missing", "")
	if err == nil {
		t.Fatal("expected an error")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if statusErr.Status != http.StatusNotFound || statusErr.Message != "execution not found" {
		t.Errorf("statusErr = %+v", statusErr)
	}
}

func TestListByWorkflow_AppliesScopeQueryParam(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(Page{})
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.ListByWorkflow(context.Background(), "sum_two", "tenant-a", ListParams{Limit: 10}); err != nil {
		t.Fatalf("ListByWorkflow: %v", err)
	}

	values, err := url.ParseQuery(gotQuery)
	if err != nil {
		t.Fatalf("parse query %q: %v", gotQuery, err)
	}
	if values.Get("scope") != "tenant-a" || values.Get("limit") != "10" {
		t.Errorf("query = %q, want scope=tenant-a and limit=10", gotQuery)
	}
}
