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

package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spoolsync/spoolsync/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db.DB)
}

func TestGetSetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.Equal(t, "default", s.Get(ctx, "CLOUD_BASE", "default"))
	require.NoError(t, s.Set(ctx, KeyCloudBase, "https://cloud.example.com"))
	require.Equal(t, "https://cloud.example.com", s.Get(ctx, KeyCloudBase, "default"))
}

func TestSyncIntervalIsClampedToThirtySeconds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, KeySyncInterval, "5"))
	require.Equal(t, 30*time.Second, s.GetInterval(ctx))

	require.NoError(t, s.Set(ctx, KeySyncInterval, "120"))
	require.Equal(t, 120*time.Second, s.GetInterval(ctx))
}

func TestEpsilonGramsIsClampedToPoint01(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, KeyEpsilonGrams, "0"))
	require.InDelta(t, 0.01, s.GetEpsilonGrams(ctx), 1e-9)

	require.NoError(t, s.Set(ctx, KeyEpsilonGrams, "5"))
	require.InDelta(t, 5.0, s.GetEpsilonGrams(ctx), 1e-9)
}

func TestDryRunDefaultsFalse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.False(t, s.GetDryRun(ctx))
	require.NoError(t, s.Set(ctx, KeyDryRun, "true"))
	require.True(t, s.GetDryRun(ctx))
}

func TestSetDefaultDoesNotClobberExistingValue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, KeyCloudBase, "https://operator-set.example.com"))
	require.NoError(t, s.SetDefault(ctx, KeyCloudBase, "https://flag-default.example.com"))
	require.Equal(t, "https://operator-set.example.com", s.Get(ctx, KeyCloudBase, ""))
}

func TestLastSyncTimeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.True(t, s.GetLastSyncTime(ctx).IsZero())

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.SetLastSyncTime(ctx, now))
	require.Equal(t, now, s.GetLastSyncTime(ctx))
}

func TestHasSecretReportsPresenceAndGetSecretReturnsValue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.False(t, s.HasSecret(ctx, KeyCloudToken))
	require.NoError(t, s.SetSecret(ctx, KeyCloudToken, "super-secret-token"))
	require.True(t, s.HasSecret(ctx, KeyCloudToken))

	v, ok := s.GetSecret(ctx, KeyCloudToken)
	require.True(t, ok)
	require.Equal(t, "super-secret-token", v)
}
