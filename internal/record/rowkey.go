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

package record

import (
	"fmt"
	"time"
)

// reverseMillisCeiling anchors the reverse-timestamp scheme; subtracting a
// unix millisecond timestamp from it produces a value that sorts ascending
// newest-first and never goes negative until the year 2286.
const reverseMillisCeiling = 9_999_999_999_999

func reverseMillis(t time.Time) int64 {
	return reverseMillisCeiling - t.UnixMilli()
}

// executionRowKey builds the primary table's row key for an execution
// created/started at t.
func executionRowKey(t time.Time, executionID string) string {
	return fmt.Sprintf("execution:%013d_%s", reverseMillis(t), executionID)
}

func userIndexRowKey(userID, executionID string) string {
	return fmt.Sprintf("userexec:%s:%s", userID, executionID)
}

func workflowIndexRowKey(workflowName, scope, executionID string) string {
	return fmt.Sprintf("workflowexec:%s:%s:%s", workflowName, scope, executionID)
}

func formIndexRowKey(formID, executionID string) string {
	return fmt.Sprintf("formexec:%s:%s", formID, executionID)
}

func statusIndexRowKey(status, executionID string) string {
	return fmt.Sprintf("status:%s:%s", status, executionID)
}
