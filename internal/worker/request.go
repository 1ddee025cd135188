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

package worker

import (
	"encoding/json"
	"fmt"

	"github.com/tombee-labs/bifrost-engine/pkg/execution"
)

// Request is the JSON shape written to H.context by the pool (async path)
// or built directly by the in-process dispatcher (sync path and every
// data-provider call). It is the wire counterpart of pool.WorkerResult.
type Request struct {
	ExecutionID  string          `json:"execution_id"`
	Caller       execution.Caller `json:"caller"`
	Organization string          `json:"organization,omitempty"`
	Config       map[string]any  `json:"config,omitempty"`

	// Exactly one of Code (base64-decoded script source) or Name (a
	// registered function name) is set.
	Code []byte `json:"code,omitempty"`
	Name string `json:"name,omitempty"`

	// Tags narrows Name's lookup to a workflow or a data provider.
	// "data_provider" routes through the cache key computation in step 6
	// of the execution path; anything else is treated as a workflow.
	Tags []string `json:"tags,omitempty"`

	Parameters map[string]any `json:"parameters,omitempty"`

	TimeoutSeconds  int  `json:"timeout_seconds,omitempty"`
	CacheTTLSeconds int  `json:"cache_ttl_seconds,omitempty"`
	Transient       bool `json:"transient,omitempty"`
	NoCache         bool `json:"no_cache,omitempty"`
	IsPlatformAdmin bool `json:"is_platform_admin,omitempty"`
}

func (r *Request) scope() string {
	if r.Organization == "" {
		return execution.GlobalScope
	}
	return r.Organization
}

func (r *Request) isDataProvider() bool {
	for _, t := range r.Tags {
		if t == "data_provider" {
			return true
		}
	}
	return false
}

func (r *Request) isScript() bool { return len(r.Code) > 0 }

// DecodeRequest parses the JSON form written to H.context.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("worker: decode request: %w", err)
	}
	if req.isScript() == (req.Name != "") {
		return nil, fmt.Errorf("worker: request must set exactly one of code or name")
	}
	return &req, nil
}

// EncodeRequest serializes req for writing to H.context.
func EncodeRequest(req *Request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("worker: encode request: %w", err)
	}
	return data, nil
}
