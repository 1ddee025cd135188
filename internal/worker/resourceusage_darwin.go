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

//go:build darwin

package worker

import "syscall"

// readResourceSnapshot reads cumulative CPU time and peak RSS via
// getrusage(2). Darwin reports Maxrss in bytes already, unlike Linux's
// kilobytes, so no /proc-style high-water-mark lookup is needed here.
func readResourceSnapshot() resourceSnapshot {
	var ru syscall.Rusage
	_ = syscall.Getrusage(syscall.RUSAGE_SELF, &ru)

	return resourceSnapshot{
		cpuUserSeconds: timevalSeconds(ru.Utime),
		cpuSysSeconds:  timevalSeconds(ru.Stime),
		peakRSSBytes:   ru.Maxrss,
	}
}

func timevalSeconds(tv syscall.Timeval) float64 {
	return float64(tv.Sec) + float64(tv.Usec)/1e6
}
