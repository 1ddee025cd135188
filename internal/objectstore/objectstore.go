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

// Package objectstore holds the large-field spill collaborator described by
// invariant I3: when an execution's logs, captured variables, or result
// exceed the inline size limit, they are written here at keyed paths
// ("{id}/logs.json", "{id}/variables.json", "{id}/result.{json|html|txt}",
// "{id}/snapshot.json") instead of inline on the execution record.
package objectstore

import (
	"context"
	"fmt"
	"io"
)

// Kind names the four spill targets an execution can have.
type Kind string

const (
	KindLogs      Kind = "logs.json"
	KindVariables Kind = "variables.json"
	KindSnapshot  Kind = "snapshot.json"
)

// ResultKind builds the result spill key for one of the three result
// encodings the data model allows.
func ResultKind(resultType string) Kind {
	switch resultType {
	case "html":
		return "result.html"
	case "txt":
		return "result.txt"
	default:
		return "result.json"
	}
}

// Store is the object storage contract. Every key is scoped under an
// execution ID so callers never need to worry about collisions across
// executions.
type Store interface {
	// Put writes data at {executionID}/{kind}, overwriting any existing
	// object.
	Put(ctx context.Context, executionID string, kind Kind, data []byte) error

	// Get reads the object at {executionID}/{kind}. Returns ErrNotExist if
	// it was never written.
	Get(ctx context.Context, executionID string, kind Kind) ([]byte, error)

	// Exists reports whether an object is present without reading its
	// contents.
	Exists(ctx context.Context, executionID string, kind Kind) (bool, error)
}

// StreamingStore is an optional capability for backends that can expose an
// object as a stream instead of buffering it fully in memory. The fs and
// future S3-compatible backends both support this; a purely in-memory test
// double may not.
type StreamingStore interface {
	Store
	GetReader(ctx context.Context, executionID string, kind Kind) (io.ReadCloser, error)
}

// ErrNotExist is returned by Get/GetReader when the requested object was
// never written.
var ErrNotExist = fmt.Errorf("objectstore: object does not exist")

func key(executionID string, kind Kind) string {
	return executionID + "/" + string(kind)
}
