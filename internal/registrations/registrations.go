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

// Package registrations is the one place compiled-in workflow and
// data-provider functions are bound to their manifest names. A statically
// compiled worker cannot import code discovered at runtime the way a
// dynamic-language deployment does, so this is the Go equivalent of the
// source ecosystem's decorator-based auto-registration: both cmd/bifrostd
// and cmd/bifrost-worker call Register at startup, against the same
// manifests internal/discovery.Scan finds on disk, so a function resolvable
// by the daemon's sync dispatch path is equally resolvable inside a spawned
// worker process.
package registrations

import "github.com/tombee-labs/bifrost-engine/internal/discovery"

// Register binds every compiled-in handler to its manifest name. Deployments
// add their own workflow and data-provider functions here; none ship with
// this module beyond the registry itself.
func Register(reg *discovery.Registry) error {
	return nil
}
