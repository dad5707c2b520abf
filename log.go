// Copyright 2015 Google Inc. All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mkcore

import "github.com/golang/glog"

// These flags gate the evaluator's own verbose tracing independently of
// glog's -v level, so a caller can ask for build-specific tracing without
// turning on every glog.V(n) site in the binary.
var (
	// LogFlag enables logf() tracing of rule/job bookkeeping.
	LogFlag bool
	// StatsFlag enables logStats() timing and size summaries.
	StatsFlag bool
	// EvalStatsFlag enables per-function evaluation timing in stats.go.
	EvalStatsFlag bool
	// PeriodicStatsFlag enables periodic progress stats during dep build.
	PeriodicStatsFlag bool
)

func logf(format string, a ...interface{}) {
	if !LogFlag {
		return
	}
	glog.V(1).Infof(format, a...)
}

func logStats(format string, a ...interface{}) {
	if !StatsFlag {
		return
	}
	glog.V(2).Infof(format, a...)
}

// warn reports a non-fatal condition (an "Override warning") at the given
// source position and continues.
func warn(pos srcpos, format string, a ...interface{}) {
	args := append([]interface{}{pos.filename, pos.lineno}, a...)
	glog.Warningf("%s:%d: "+format, args...)
}
