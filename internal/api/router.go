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
	"log/slog"
	"net/http"
	"time"

	"github.com/tombee-labs/bifrost-engine/internal/broadcast"
	"github.com/tombee-labs/bifrost-engine/internal/discovery"
	"github.com/tombee-labs/bifrost-engine/internal/dispatch"
	"github.com/tombee-labs/bifrost-engine/internal/httputil"
	"github.com/tombee-labs/bifrost-engine/internal/kv"
	"github.com/tombee-labs/bifrost-engine/internal/log"
	"github.com/tombee-labs/bifrost-engine/internal/logstream"
	"github.com/tombee-labs/bifrost-engine/internal/record"
	"github.com/tombee-labs/bifrost-engine/internal/tracing"
	"github.com/tombee-labs/bifrost-engine/internal/worker"
)

// RouterConfig identifies this build for the version/root endpoints.
type RouterConfig struct {
	Version   string
	Commit    string
	BuildDate string
}

// MetricsHandler serves the Prometheus scrape endpoint.
type MetricsHandler interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// Deps are the collaborators handlers dispatch to. Hub may be nil, in which
// case the websocket endpoint (GET /v1/stream) is not registered.
type Deps struct {
	Dispatcher *dispatch.Dispatcher
	Records    record.Store
	KV         kv.Store
	Registry   *discovery.Registry
	Worker     worker.Deps
	Logs       logstream.Store
	Hub        *broadcast.Hub
	Metrics    *tracing.MetricsCollector
	Logger     *slog.Logger
}

// Router wraps an http.ServeMux with the request logging, correlation, and
// tracing middleware chain every other package in this module already
// assumes is present on an inbound context.
type Router struct {
	mux            *http.ServeMux
	cfg            RouterConfig
	metricsHandler MetricsHandler
	logger         *slog.Logger
}

// SetMetricsHandler wires the Prometheus scrape endpoint.
func (r *Router) SetMetricsHandler(h MetricsHandler) {
	r.metricsHandler = h
	if h != nil {
		r.mux.HandleFunc("GET /metrics", h.ServeHTTP)
	}
}

// NewRouter builds the full route table.
func NewRouter(cfg RouterConfig, deps Deps) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Router{mux: http.NewServeMux(), cfg: cfg, logger: logger}
	h := &handlers{deps: deps, logger: logger}

	r.mux.HandleFunc("GET /v1/health", r.handleHealth)
	r.mux.HandleFunc("GET /v1/version", r.handleVersion)
	r.mux.HandleFunc("GET /", r.handleRoot)

	r.mux.HandleFunc("POST /v1/executions", h.submit)
	r.mux.HandleFunc("GET /v1/executions/{id}", h.get)
	r.mux.HandleFunc("POST /v1/executions/{id}/cancel", h.cancel)
	r.mux.HandleFunc("GET /v1/executions/{id}/logs", h.logs)
	r.mux.HandleFunc("GET /v1/users/{userID}/executions", h.listByUser)
	r.mux.HandleFunc("GET /v1/workflows/{name}/executions", h.listByWorkflow)
	r.mux.HandleFunc("GET /v1/forms/{formID}/executions", h.listByForm)
	r.mux.HandleFunc("GET /v1/scopes/{scope}/executions", h.listByScope)

	r.mux.HandleFunc("GET /v1/workflows", h.listWorkflows)
	r.mux.HandleFunc("GET /v1/data-providers", h.listDataProviders)
	r.mux.HandleFunc("POST /v1/data-providers/{name}/invoke", h.invokeDataProvider)

	if deps.Hub != nil {
		r.mux.HandleFunc("GET /v1/stream", deps.Hub.ServeHTTP)
	}

	return r
}

// ServeHTTP implements http.Handler, layering the same correlation and
// tracing middleware internal/tracing already exposes for every other
// request boundary in the module.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		correlationID := tracing.FromContextOrEmpty(req.Context())
		logger := log.WithCorrelationID(r.logger, string(correlationID))
		defer func() {
			logger.Info("request completed",
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		}()
		r.mux.ServeHTTP(w, req)
	})

	handler = tracing.CorrelationMiddleware(handler)
	handler = tracing.HTTPMiddleware(handler)
	handler.ServeHTTP(w, req)
}

func (r *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"name": "bifrostd", "version": r.cfg.Version})
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *Router) handleVersion(w http.ResponseWriter, req *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"version":    r.cfg.Version,
		"commit":     r.cfg.Commit,
		"build_date": r.cfg.BuildDate,
	})
}
