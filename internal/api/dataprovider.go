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
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tombee-labs/bifrost-engine/internal/httputil"
	"github.com/tombee-labs/bifrost-engine/internal/worker"
	bifrosterrors "github.com/tombee-labs/bifrost-engine/pkg/errors"
)

type invokeRequest struct {
	Parameters map[string]any `json:"parameters,omitempty"`
}

type invokeResponse struct {
	Result         any        `json:"result,omitempty"`
	ResultType     string     `json:"result_type,omitempty"`
	Cached         bool       `json:"cached,omitempty"`
	CacheExpiresAt *time.Time `json:"cache_expires_at,omitempty"`
	ErrorType      string     `json:"error_type,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}

// invokeDataProvider runs a data provider in-process and returns its result
// directly. Data-provider calls are always transient: nothing here ever
// touches internal/record, matching run_data_provider's original hardcoded
// transient=True.
func (h *handlers) invokeDataProvider(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
			return
		}
	}

	caller, isAdmin := callerFromRequest(r)
	name := r.PathValue("name")
	scope := scopeOf(r)

	workerReq := &worker.Request{
		ExecutionID:     uuid.NewString(),
		Caller:          caller,
		Name:            name,
		Tags:            []string{"data_provider"},
		Parameters:      req.Parameters,
		Transient:       true,
		IsPlatformAdmin: isAdmin,
	}
	if scope != "" {
		workerReq.Organization = scope
	}

	result := worker.Run(r.Context(), h.deps.Worker, workerReq)
	status := http.StatusOK
	if result.Failed() {
		status = http.StatusInternalServerError
		if !isAdmin && result.ErrorType != bifrosterrors.ErrorTypeUserError {
			result.ErrorMessage = "An error occurred during execution"
		}
	}
	httputil.WriteJSON(w, status, invokeResponse{
		Result:         result.Result,
		ResultType:     result.ResultType,
		Cached:         result.Cached,
		CacheExpiresAt: result.CacheExpiresAt,
		ErrorType:      result.ErrorType,
		ErrorMessage:   result.ErrorMessage,
	})
}
