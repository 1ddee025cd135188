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

import "github.com/tombee-labs/bifrost-engine/pkg/execution"

// resourceSnapshot is a point-in-time read of cumulative CPU time and peak
// RSS, platform-normalized to bytes/seconds by the readResourceSnapshot
// implementation in resourceusage_linux.go / resourceusage_darwin.go.
type resourceSnapshot struct {
	peakRSSBytes   int64
	cpuUserSeconds float64
	cpuSysSeconds  float64
}

// deltaMetrics reports CPU deltas between start and end and the absolute
// peak RSS observed at end.
func deltaMetrics(start, end resourceSnapshot) *execution.ResourceMetrics {
	return &execution.ResourceMetrics{
		PeakRSSBytes:     end.peakRSSBytes,
		CPUUserSeconds:   end.cpuUserSeconds - start.cpuUserSeconds,
		CPUSystemSeconds: end.cpuSysSeconds - start.cpuSysSeconds,
	}
}
