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
	"context"
	"errors"
	"testing"

	"github.com/tombee-labs/bifrost-engine/internal/cache"
	"github.com/tombee-labs/bifrost-engine/internal/discovery"
	"github.com/tombee-labs/bifrost-engine/internal/script"
	bifrosterrors "github.com/tombee-labs/bifrost-engine/pkg/errors"
)

func baseDeps() Deps {
	return Deps{
		Registry: discovery.NewRegistry(),
		Scripts:  script.New(),
		Cache:    cache.New(),
	}
}

func TestRun_NamedFunctionSuccess(t *testing.T) {
	deps := baseDeps()
	deps.Registry.Register(discovery.Metadata{
		Kind: discovery.KindWorkflow,
		Name: "greet",
		Parameters: []discovery.Parameter{
			{Name: "who", Type: "string", Required: true},
		},
	}, func(ctx any, params map[string]any) (any, error) {
		return map[string]any{"greeting": "hello " + params["who"].(string)}, nil
	})

	req := &Request{ExecutionID: "exec-1", Name: "greet", Parameters: map[string]any{"who": "ada"}}
	result := Run(context.Background(), deps, req)

	if result.Failed() {
		t.Fatalf("unexpected failure: %s", result.ErrorMessage)
	}
	greeting := result.Result.(map[string]any)["greeting"]
	if greeting != "hello ada" {
		t.Errorf("greeting = %v, want %q", greeting, "hello ada")
	}
	if result.ResourceMetrics == nil {
		t.Error("expected ResourceMetrics to be populated")
	}
}

func TestRun_WorkflowNotFound(t *testing.T) {
	deps := baseDeps()
	req := &Request{ExecutionID: "exec-2", Name: "missing"}
	result := Run(context.Background(), deps, req)

	if result.ErrorType != bifrosterrors.ErrorTypeWorkflowNotFound {
		t.Errorf("ErrorType = %q, want %q", result.ErrorType, bifrosterrors.ErrorTypeWorkflowNotFound)
	}
}

func TestRun_ValidationFailure(t *testing.T) {
	deps := baseDeps()
	deps.Registry.Register(discovery.Metadata{
		Kind: discovery.KindWorkflow,
		Name: "needs_x",
		Parameters: []discovery.Parameter{
			{Name: "x", Type: "int", Required: true},
		},
	}, func(ctx any, params map[string]any) (any, error) {
		return "should not run", nil
	})

	req := &Request{ExecutionID: "exec-3", Name: "needs_x"}
	result := Run(context.Background(), deps, req)

	if result.ErrorType != bifrosterrors.ErrorTypeValidationError {
		t.Errorf("ErrorType = %q, want %q", result.ErrorType, bifrosterrors.ErrorTypeValidationError)
	}
}

func TestRun_ExtraParametersCapturedNotForwarded(t *testing.T) {
	deps := baseDeps()
	var sawExtraInParams bool
	deps.Registry.Register(discovery.Metadata{
		Kind: discovery.KindWorkflow,
		Name: "declared_only",
		Parameters: []discovery.Parameter{
			{Name: "x", Type: "int", Required: true},
		},
	}, func(ctx any, params map[string]any) (any, error) {
		_, sawExtraInParams = params["extra"]
		return ctx.(*Context).Extra["extra"], nil
	})

	req := &Request{ExecutionID: "exec-4", Name: "declared_only", Parameters: map[string]any{"x": 1, "extra": "surprise"}}
	result := Run(context.Background(), deps, req)

	if sawExtraInParams {
		t.Error("extra parameter leaked into the declared params map")
	}
	if result.Result != "surprise" {
		t.Errorf("context.Extra[\"extra\"] = %v, want \"surprise\"", result.Result)
	}
	if result.Variables["extra_parameters"] == nil {
		t.Error("expected extras to be recorded in captured variables")
	}
}

func TestRun_DataProviderCachesResult(t *testing.T) {
	deps := baseDeps()
	calls := 0
	deps.Registry.Register(discovery.Metadata{
		Kind: discovery.KindDataProvider,
		Name: "lookup",
	}, func(ctx any, params map[string]any) (any, error) {
		calls++
		return map[string]any{"value": 42}, nil
	})

	req := &Request{
		ExecutionID:     "exec-5",
		Name:            "lookup",
		Tags:            []string{"data_provider"},
		CacheTTLSeconds: 60,
	}
	first := Run(context.Background(), deps, req)
	second := Run(context.Background(), deps, req)

	if first.Cached {
		t.Error("first call should not be served from cache")
	}
	if !second.Cached {
		t.Error("second call should be served from cache")
	}
	if calls != 1 {
		t.Errorf("function called %d times, want 1", calls)
	}
	if first.CacheExpiresAt == nil || second.CacheExpiresAt == nil {
		t.Fatal("both calls should report a cache expiry")
	}
	if !first.CacheExpiresAt.Equal(*second.CacheExpiresAt) {
		t.Errorf("cache_expires_at = %v / %v, want the same expiry on both calls", first.CacheExpiresAt, second.CacheExpiresAt)
	}
}

func TestRun_InlineScriptSuccess(t *testing.T) {
	deps := baseDeps()
	req := &Request{
		ExecutionID: "exec-6",
		Code:        []byte("params.x + params.y"),
		Parameters:  map[string]any{"x": 1, "y": 2},
	}
	result := Run(context.Background(), deps, req)

	if result.Failed() {
		t.Fatalf("unexpected failure: %s", result.ErrorMessage)
	}
	if result.Result != 3 {
		t.Errorf("result = %v, want 3", result.Result)
	}
}

func TestRun_FunctionErrorClassifiedAsInternal(t *testing.T) {
	deps := baseDeps()
	deps.Registry.Register(discovery.Metadata{
		Kind: discovery.KindWorkflow,
		Name: "boom",
	}, func(ctx any, params map[string]any) (any, error) {
		return nil, errors.New("boom: unexpected nil pointer")
	})

	req := &Request{ExecutionID: "exec-7", Name: "boom"}
	result := Run(context.Background(), deps, req)

	if result.ErrorType != bifrosterrors.ErrorTypeInternalError {
		t.Errorf("ErrorType = %q, want %q", result.ErrorType, bifrosterrors.ErrorTypeInternalError)
	}
}

func TestRun_UserErrorSurfacesVerbatim(t *testing.T) {
	deps := baseDeps()
	deps.Registry.Register(discovery.Metadata{
		Kind: discovery.KindWorkflow,
		Name: "rejects",
	}, func(ctx any, params map[string]any) (any, error) {
		return nil, &bifrosterrors.UserError{Message: "invalid account id"}
	})

	req := &Request{ExecutionID: "exec-8", Name: "rejects"}
	result := Run(context.Background(), deps, req)

	if result.ErrorType != bifrosterrors.ErrorTypeUserError {
		t.Errorf("ErrorType = %q, want %q", result.ErrorType, bifrosterrors.ErrorTypeUserError)
	}
	if result.ErrorMessage != "invalid account id" {
		t.Errorf("ErrorMessage = %q, want %q", result.ErrorMessage, "invalid account id")
	}
}
