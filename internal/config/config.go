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

// Package config is the durable settings/secrets store: a string key/value
// mapping with an updated_at stamp, backed by the same SQLite database as
// the local cache. Secret values never leave this package except through
// the Cloud Client's header builder.
package config

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Recognized setting keys.
const (
	KeyInvBase      = "INV_BASE"
	KeyCloudBase    = "CLOUD_BASE"
	KeyCloudOrgID   = "CLOUD_ORG_ID"
	KeySyncInterval = "SYNC_INTERVAL_SECONDS"
	KeyEpsilonGrams = "EPSILON_GRAMS"
	KeyDryRun       = "DRY_RUN"
	KeyLastSyncTime = "LAST_SYNC_TIME"

	// KeyCloudToken is stored in the secrets table, not settings.
	KeyCloudToken = "CLOUD_TOKEN"
)

const (
	minSyncIntervalSeconds = 30
	minEpsilonGrams        = 0.01
)

// Store is the settings/secrets store. All methods are safe for concurrent
// use; a mutex guards every round trip.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// New wraps an already-opened database handle. The caller owns the
// connection's lifecycle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the setting's current value, or def if unset.
func (s *Store) Get(ctx context.Context, key, def string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if err != nil {
		return def
	}
	return v
}

// Set writes a setting, applying the clamp for keys that have one.
func (s *Store) Set(ctx context.Context, key, value string) error {
	value = clamp(key, value)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339))
	return err
}

// clamp enforces the recognized-key invariants: sync interval >= 30s,
// epsilon >= 0.01g. Unrecognized keys and unparsable values pass through
// unchanged — the caller is responsible for validating those.
func clamp(key, value string) string {
	switch key {
	case KeySyncInterval:
		if n, err := strconv.Atoi(value); err == nil && n < minSyncIntervalSeconds {
			return strconv.Itoa(minSyncIntervalSeconds)
		}
	case KeyEpsilonGrams:
		if f, err := strconv.ParseFloat(value, 64); err == nil && f < minEpsilonGrams {
			return strconv.FormatFloat(minEpsilonGrams, 'f', -1, 64)
		}
	}
	return value
}

// GetInterval returns SYNC_INTERVAL_SECONDS as a duration, defaulting to and
// floored at 30s.
func (s *Store) GetInterval(ctx context.Context) time.Duration {
	raw := s.Get(ctx, KeySyncInterval, strconv.Itoa(minSyncIntervalSeconds))
	n, err := strconv.Atoi(raw)
	if err != nil || n < minSyncIntervalSeconds {
		n = minSyncIntervalSeconds
	}
	return time.Duration(n) * time.Second
}

// GetEpsilonGrams returns EPSILON_GRAMS, defaulting to and floored at 0.01g.
func (s *Store) GetEpsilonGrams(ctx context.Context) float64 {
	raw := s.Get(ctx, KeyEpsilonGrams, strconv.FormatFloat(minEpsilonGrams, 'f', -1, 64))
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < minEpsilonGrams {
		f = minEpsilonGrams
	}
	return f
}

// GetDryRun reports whether DRY_RUN is set to "true".
func (s *Store) GetDryRun(ctx context.Context) bool {
	return strings.EqualFold(s.Get(ctx, KeyDryRun, "false"), "true")
}

// GetLastSyncTime returns LAST_SYNC_TIME, or the zero time if unset.
func (s *Store) GetLastSyncTime(ctx context.Context) time.Time {
	raw := s.Get(ctx, KeyLastSyncTime, "")
	if raw == "" {
		return time.Time{}
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

// SetLastSyncTime persists tick start as LAST_SYNC_TIME.
func (s *Store) SetLastSyncTime(ctx context.Context, t time.Time) error {
	return s.Set(ctx, KeyLastSyncTime, strconv.FormatInt(t.Unix(), 10))
}

// SetDefault writes key only if it is not already set — used to seed
// defaults from CLI flags on first boot without clobbering operator-set
// values on subsequent ones.
func (s *Store) SetDefault(ctx context.Context, key, value string) error {
	s.mu.Lock()
	current := ""
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&current)
	s.mu.Unlock()
	if err == nil {
		return nil
	}
	return s.Set(ctx, key, value)
}

// SetSecret writes a secret value. The plaintext is never returned by any
// method other than GetSecret, which only the Cloud Client may call.
func (s *Store) SetSecret(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO secrets (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339))
	return err
}

// GetSecret returns a secret's plaintext. Callers outside the Cloud Client
// should use HasSecret instead.
func (s *Store) GetSecret(ctx context.Context, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM secrets WHERE key = ?`, key).Scan(&v)
	if err != nil {
		return "", false
	}
	return v, true
}

// HasSecret reports whether a secret is set, without exposing its value.
func (s *Store) HasSecret(ctx context.Context, key string) bool {
	_, ok := s.GetSecret(ctx, key)
	return ok
}
