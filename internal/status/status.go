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

// Package status tracks the Reconciler's last-run outcome and exposes it to
// the HTTP shell, plus the Prometheus instrumentation for tick and item
// outcomes.
package status

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State is the Reporter's coarse run state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Outcome labels a single reconciled item.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeNoop    Outcome = "noop"
	OutcomeError   Outcome = "error"
)

// CleanupAction labels a single cleanup-pass decision.
type CleanupAction string

const (
	CleanupArchived CleanupAction = "archived"
	CleanupDeleted  CleanupAction = "deleted"
	CleanupSkipped  CleanupAction = "skipped"
)

// Run describes the last completed (or in-progress) tick.
type Run struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Successes  int
	Errors     int
	DryRun     bool
	Message    string
}

// Snapshot is what the HTTP shell's /status endpoint returns.
type Snapshot struct {
	State        State  `json:"state"`
	LastSyncTime string `json:"last_sync_time,omitempty"`
	LastRun      Run    `json:"last_run"`
}

// Reporter is a mutex-guarded status holder plus the Prometheus metrics the
// Reconciler updates as it runs. One Reporter is shared by the Reconciler
// and the HTTP shell.
type Reporter struct {
	mu           sync.Mutex
	state        State
	lastSyncTime time.Time
	lastRun      Run
	current      Run

	tickTotal       *prometheus.CounterVec
	tickDuration    prometheus.Histogram
	itemsReconciled *prometheus.CounterVec
	cleanupTotal    *prometheus.CounterVec
	lastSyncGauge   prometheus.Gauge
	dryRunGauge     prometheus.Gauge
}

// NewReporter constructs a Reporter and registers its metrics on reg.
func NewReporter(reg *prometheus.Registry) *Reporter {
	r := &Reporter{
		state: StateIdle,
		tickTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spoolsync_tick_total",
			Help: "Reconciliation ticks, by result.",
		}, []string{"result"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "spoolsync_tick_duration_seconds",
			Help:    "Duration of a full reconciliation tick.",
			Buckets: prometheus.DefBuckets,
		}),
		itemsReconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spoolsync_items_reconciled_total",
			Help: "Filaments reconciled, by outcome.",
		}, []string{"outcome"}),
		cleanupTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spoolsync_cleanup_total",
			Help: "Cleanup-pass decisions, by action.",
		}, []string{"action"}),
		lastSyncGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spoolsync_last_sync_timestamp_seconds",
			Help: "Unix timestamp of the last successful tick start.",
		}),
		dryRunGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spoolsync_dry_run",
			Help: "1 if the daemon is currently running in dry-run mode.",
		}),
	}
	reg.MustRegister(r.tickTotal, r.tickDuration, r.itemsReconciled, r.cleanupTotal, r.lastSyncGauge, r.dryRunGauge)
	return r
}

// Begin marks the start of a new tick.
func (r *Reporter) Begin(startedAt time.Time, dryRun bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateRunning
	r.current = Run{StartedAt: startedAt, DryRun: dryRun}
	if dryRun {
		r.dryRunGauge.Set(1)
	} else {
		r.dryRunGauge.Set(0)
	}
}

// RecordItem tallies one reconciled item's outcome.
func (r *Reporter) RecordItem(outcome Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if outcome == OutcomeError {
		r.current.Errors++
	} else {
		r.current.Successes++
	}
	r.itemsReconciled.WithLabelValues(string(outcome)).Inc()
}

// RecordCleanup tallies one cleanup-pass decision.
func (r *Reporter) RecordCleanup(action CleanupAction) {
	r.cleanupTotal.WithLabelValues(string(action)).Inc()
}

// Finish marks the tick complete.
func (r *Reporter) Finish(finishedAt time.Time, message string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.current.FinishedAt = finishedAt
	r.current.Message = message
	r.lastRun = r.current
	r.state = StateIdle

	result := "success"
	if !ok {
		result = "error"
	}
	r.tickTotal.WithLabelValues(result).Inc()
	r.tickDuration.Observe(finishedAt.Sub(r.lastRun.StartedAt).Seconds())

	if ok {
		r.lastSyncTime = r.lastRun.StartedAt
		r.lastSyncGauge.Set(float64(r.lastSyncTime.Unix()))
	}
}

// Snapshot returns the current state for the HTTP shell.
func (r *Reporter) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{State: r.state, LastRun: r.lastRun}
	if !r.lastSyncTime.IsZero() {
		s.LastSyncTime = r.lastSyncTime.UTC().Format(time.RFC3339)
	}
	return s
}
