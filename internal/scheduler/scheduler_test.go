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

package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"

	"github.com/spoolsync/spoolsync/internal/config"
	"github.com/spoolsync/spoolsync/internal/storage"
)

type countingReconciler struct {
	calls   atomic.Int32
	delay   time.Duration
	failing bool
}

func (c *countingReconciler) RunOnce(ctx context.Context) error {
	c.calls.Add(1)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
		}
	}
	if c.failing {
		return errBoom
	}
	return nil
}

var errBoom = &testError{"boom"}

type testError struct{ s string }

func (e *testError) Error() string { return e.s }

func newTestStore(t *testing.T) *config.Store {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return config.New(db.DB)
}

func TestTriggerNowRunsImmediately(t *testing.T) {
	cfg := newTestStore(t)
	require.NoError(t, cfg.Set(context.Background(), config.KeySyncInterval, "3600"))

	recon := &countingReconciler{}
	s := New(log.NewNopLogger(), recon, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.NoError(t, s.TriggerNow(context.Background()))
	require.Equal(t, int32(1), recon.calls.Load())

	cancel()
	<-done
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	cfg := newTestStore(t)
	recon := &countingReconciler{}
	s := New(log.NewNopLogger(), recon, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestConcurrentTriggerNowCallsAreSingleFlight(t *testing.T) {
	cfg := newTestStore(t)
	require.NoError(t, cfg.Set(context.Background(), config.KeySyncInterval, "3600"))

	recon := &countingReconciler{delay: 50 * time.Millisecond}
	s := New(log.NewNopLogger(), recon, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	errs := make(chan error, 2)
	go func() { errs <- s.TriggerNow(context.Background()) }()
	go func() { errs <- s.TriggerNow(context.Background()) }()

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
	require.Equal(t, int32(2), recon.calls.Load())

	cancel()
	<-done
}

func TestTriggerNowPropagatesReconcilerError(t *testing.T) {
	cfg := newTestStore(t)
	require.NoError(t, cfg.Set(context.Background(), config.KeySyncInterval, "3600"))

	recon := &countingReconciler{failing: true}
	s := New(log.NewNopLogger(), recon, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	err := s.TriggerNow(context.Background())
	require.Error(t, err)

	cancel()
	<-done
}
