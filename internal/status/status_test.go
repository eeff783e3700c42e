// Copyright 2024 Google LLC
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

package status

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReporter(t *testing.T) *Reporter {
	t.Helper()
	return NewReporter(prometheus.NewRegistry())
}

func TestBeginRunningThenFinishIdle(t *testing.T) {
	r := newTestReporter(t)

	start := time.Now().UTC()
	r.Begin(start, false)
	assert.Equal(t, StateRunning, r.Snapshot().State)

	r.RecordItem(OutcomeCreated)
	r.RecordItem(OutcomeUpdated)
	r.RecordItem(OutcomeError)
	r.Finish(start.Add(2*time.Second), "ok", true)

	snap := r.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, 2, snap.LastRun.Successes)
	assert.Equal(t, 1, snap.LastRun.Errors)
	assert.NotEmpty(t, snap.LastSyncTime)
}

func TestFinishFailureDoesNotAdvanceLastSyncTime(t *testing.T) {
	r := newTestReporter(t)

	start := time.Now().UTC()
	r.Begin(start, false)
	r.Finish(start.Add(time.Second), "boom", false)

	snap := r.Snapshot()
	require.Empty(t, snap.LastSyncTime)
}

func TestDryRunFlagCarriesThroughToFinishedRun(t *testing.T) {
	r := newTestReporter(t)
	start := time.Now()
	r.Begin(start, true)
	r.Finish(start.Add(time.Second), "dry run complete", true)

	assert.True(t, r.Snapshot().LastRun.DryRun)
}
