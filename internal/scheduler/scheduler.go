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

// Package scheduler drives the Reconciler on a recurring interval. It is a
// single run.Group actor: one loop selecting on a ticker, a manual-trigger
// channel, and context cancellation. Ticks never overlap: the loop runs one
// tick at a time, and a manual trigger that arrives during a tick waits
// until the loop picks it up, then runs.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/spoolsync/spoolsync/internal/config"
)

// Reconciler is the single method the Scheduler needs from
// *reconcile.Reconciler, kept narrow so tests can stub it.
type Reconciler interface {
	RunOnce(ctx context.Context) error
}

// Scheduler runs Reconciler.RunOnce on the interval held in the config
// Store, re-reading that interval after every tick so an operator
// changing SYNC_INTERVAL_SECONDS takes effect without a restart.
type Scheduler struct {
	logger log.Logger
	recon  Reconciler
	cfg    *config.Store

	trigger chan chan error
	running atomic.Bool
}

// New constructs a Scheduler. Call Run to start its loop.
func New(logger log.Logger, recon Reconciler, cfg *config.Store) *Scheduler {
	return &Scheduler{
		logger:  logger,
		recon:   recon,
		cfg:     cfg,
		trigger: make(chan chan error),
	}
}

// Run is the Scheduler's run.Group actor body. It blocks until ctx is
// cancelled, ticking at the interval configured in the Store and
// re-reading that interval after every tick and every manual trigger, so
// Reconfigure is implicit: there is nothing to tear down and re-add
// because the ticker is reset whenever the Store's interval has changed.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.cfg.GetInterval(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			s.runTick(ctx)

		case reply := <-s.trigger:
			reply <- s.runTick(ctx)
		}

		next := s.cfg.GetInterval(ctx)
		if next != interval {
			interval = next
			ticker.Reset(interval)
		}
	}
}

// TriggerNow runs one tick immediately, bypassing the ticker, and blocks
// until it completes. It is single-flight with the ticker loop: if a tick
// is already running the caller waits for the Scheduler to notice the
// request on its next select iteration rather than racing a second
// concurrent RunOnce.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case s.trigger <- reply:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runTick enforces single-flight: a call made while another tick is in
// flight logs and returns nil rather than queue behind it. Run only ever
// calls runTick from its own select loop, one call at a time, so a tick
// that overruns its interval delays the loop instead of reaching this
// branch.
func (s *Scheduler) runTick(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		level.Warn(s.logger).Log("msg", "skipping tick: previous tick still running")
		return nil
	}
	defer s.running.Store(false)

	if err := s.recon.RunOnce(ctx); err != nil {
		level.Error(s.logger).Log("msg", "reconciliation tick failed", "err", err)
		return err
	}
	return nil
}
