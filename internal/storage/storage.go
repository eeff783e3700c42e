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

// Package storage is the embedded local cache: a WAL-mode SQLite database
// holding the last-known-good mirror of both upstreams, plus the settings
// and secrets tables internal/config reads and writes through the same
// connection.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/spoolsync/spoolsync/internal/apperr"
	"github.com/spoolsync/spoolsync/internal/model"
)

// changeLogSource is the source value recorded for every change_log row
// written by the Upsert methods: the cache only ever mutates rows on the
// Reconciler's behalf, as part of a sync tick.
const changeLogSource = "sync"

//go:embed schema.sql
var schemaSQL string

// DB wraps the opened database handle plus schema application.
type DB struct {
	*sql.DB
}

// Open opens (creating if necessary) the SQLite database at path, enables
// WAL journaling, and applies the embedded schema idempotently. Pass
// ":memory:" for an ephemeral in-process database, the convention the
// test suite uses.
func Open(path string) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &apperr.CacheError{Op: "open", Cause: err}
	}
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec(schemaSQL); err != nil {
		sqlDB.Close()
		return nil, &apperr.CacheError{Op: "apply schema", Cause: err}
	}
	return &DB{DB: sqlDB}, nil
}

// Session scopes one unit of work to a transaction: callers get a
// consistent view and a single commit/rollback point, mirroring the
// original's @contextmanager get_session().
type Session struct {
	tx *sql.Tx
}

// Begin starts a new Session. Call Commit or Rollback exactly once.
func (db *DB) Begin(ctx context.Context) (*Session, error) {
	tx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, &apperr.CacheError{Op: "begin", Cause: err}
	}
	return &Session{tx: tx}, nil
}

// Commit commits the session's transaction.
func (s *Session) Commit() error {
	if err := s.tx.Commit(); err != nil {
		return &apperr.CacheError{Op: "commit", Cause: err}
	}
	return nil
}

// Rollback discards the session's transaction. Safe to call after a
// successful Commit (it becomes a no-op).
func (s *Session) Rollback() {
	s.tx.Rollback()
}

func nowStamp() string { return time.Now().UTC().Format(time.RFC3339) }

// UpsertFilament inserts or updates a filament, matched by
// (name, material, diameter_mm), and returns its local id. An update that
// changes a tracked field appends one change_log row per changed field.
func (s *Session) UpsertFilament(ctx context.Context, f model.Filament) (int64, error) {
	var id int64
	err := s.tx.QueryRowContext(ctx, `
		SELECT id FROM filament WHERE name = ? AND IFNULL(material,'') = ? AND IFNULL(diameter_mm,0) = ?
	`, f.Name, f.Material, f.DiameterMM).Scan(&id)

	ts := nowStamp()
	switch err {
	case nil:
		var old model.Filament
		if err := s.tx.QueryRowContext(ctx, `
			SELECT brand, IFNULL(density_g_cm3,0), IFNULL(color_hex,''), nominal_weight_g, nozzle_temp_c, bed_temp_c, price
			FROM filament WHERE id = ?
		`, id).Scan(&old.Brand, &old.DensityGCM3, &old.ColorHex, &old.NominalWeightG, &old.NozzleTempC, &old.BedTempC, &old.Price); err != nil {
			return 0, &apperr.CacheError{Op: "read filament for diff", Cause: err}
		}

		_, err = s.tx.ExecContext(ctx, `
			UPDATE filament SET brand=?, density_g_cm3=?, color_hex=?, nominal_weight_g=?,
				nozzle_temp_c=?, bed_temp_c=?, price=?, updated_at=? WHERE id=?
		`, f.Brand, f.DensityGCM3, f.ColorHex, f.NominalWeightG, f.NozzleTempC, f.BedTempC, f.Price, ts, id)
		if err != nil {
			return 0, &apperr.CacheError{Op: "update filament", Cause: err}
		}
		if err := s.appendFilamentDiff(ctx, id, old, f); err != nil {
			return 0, err
		}
		return id, nil
	case sql.ErrNoRows:
		res, err := s.tx.ExecContext(ctx, `
			INSERT INTO filament(name,brand,material,diameter_mm,density_g_cm3,color_hex,
				nominal_weight_g,nozzle_temp_c,bed_temp_c,price,created_at,updated_at)
			VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
		`, f.Name, f.Brand, f.Material, f.DiameterMM, f.DensityGCM3, f.ColorHex,
			f.NominalWeightG, f.NozzleTempC, f.BedTempC, f.Price, ts, ts)
		if err != nil {
			return 0, &apperr.CacheError{Op: "insert filament", Cause: err}
		}
		return res.LastInsertId()
	default:
		return 0, &apperr.CacheError{Op: "lookup filament", Cause: err}
	}
}

// UpsertSpool inserts or updates a spool, matched by lot_nr, and returns
// its local id. An update that changes a tracked field appends one
// change_log row per changed field.
func (s *Session) UpsertSpool(ctx context.Context, sp model.Spool) (int64, error) {
	var id int64
	err := s.tx.QueryRowContext(ctx, `SELECT id FROM spool WHERE lot_nr = ?`, sp.LotNr).Scan(&id)

	ts := nowStamp()
	var lastUsed any
	if !sp.LastUsed.IsZero() {
		lastUsed = sp.LastUsed.UTC().Format(time.RFC3339)
	}

	switch err {
	case nil:
		var old model.Spool
		var oldArchived int
		var oldLastUsed sql.NullString
		if err := s.tx.QueryRowContext(ctx, `
			SELECT filament_id, spool_weight_g, initial_weight_g, used_weight_g, price, archived, last_used
			FROM spool WHERE id = ?
		`, id).Scan(&old.FilamentID, &old.SpoolWeightG, &old.InitialWeightG, &old.UsedWeightG, &old.Price, &oldArchived, &oldLastUsed); err != nil {
			return 0, &apperr.CacheError{Op: "read spool for diff", Cause: err}
		}
		old.Archived = oldArchived != 0
		if oldLastUsed.Valid {
			old.LastUsed, _ = time.Parse(time.RFC3339, oldLastUsed.String)
		}

		_, err = s.tx.ExecContext(ctx, `
			UPDATE spool SET filament_id=?, spool_weight_g=?, initial_weight_g=?, used_weight_g=?,
				price=?, archived=?, source=?, last_used=?, updated_at=? WHERE id=?
		`, sp.FilamentID, sp.SpoolWeightG, sp.InitialWeightG, sp.UsedWeightG, sp.Price,
			boolToInt(sp.Archived), sp.Source, lastUsed, ts, id)
		if err != nil {
			return 0, &apperr.CacheError{Op: "update spool", Cause: err}
		}
		if err := s.appendSpoolDiff(ctx, id, old, sp); err != nil {
			return 0, err
		}
		return id, nil
	case sql.ErrNoRows:
		res, err := s.tx.ExecContext(ctx, `
			INSERT INTO spool(filament_id,lot_nr,spool_weight_g,initial_weight_g,used_weight_g,
				price,archived,source,last_used,created_at,updated_at)
			VALUES(?,?,?,?,?,?,?,?,?,?,?)
		`, sp.FilamentID, sp.LotNr, sp.SpoolWeightG, sp.InitialWeightG, sp.UsedWeightG,
			sp.Price, boolToInt(sp.Archived), sp.Source, lastUsed, ts, ts)
		if err != nil {
			return 0, &apperr.CacheError{Op: "insert spool", Cause: err}
		}
		return res.LastInsertId()
	default:
		return 0, &apperr.CacheError{Op: "lookup spool", Cause: err}
	}
}

// RecordLink upserts the (local_type, local_id, system) -> external_id
// mapping.
func (s *Session) RecordLink(ctx context.Context, localType string, localID int64, system, externalID string) error {
	_, err := s.tx.ExecContext(ctx, `
		INSERT INTO external_link(local_type, local_id, system, external_id, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(local_type, local_id, system) DO UPDATE SET external_id = excluded.external_id, last_seen = excluded.last_seen
	`, localType, localID, system, externalID, nowStamp())
	if err != nil {
		return &apperr.CacheError{Op: "record link", Cause: err}
	}
	return nil
}

// AppendChangeLog records one field-level mutation.
func (s *Session) AppendChangeLog(ctx context.Context, e model.ChangeLogEntry) error {
	_, err := s.tx.ExecContext(ctx, `
		INSERT INTO change_log(entity, entity_id, field, old_value, new_value, source, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.Entity, e.EntityID, e.Field, e.OldValue, e.NewValue, e.Source, nowStamp())
	if err != nil {
		return &apperr.CacheError{Op: "append change log", Cause: err}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// appendFilamentDiff writes one change_log row for every tracked filament
// field that differs between old and updated. The identity triple
// (name, material, diameter_mm) is the upsert's match key and never
// changes underneath an existing row, so it is not tracked here.
func (s *Session) appendFilamentDiff(ctx context.Context, id int64, old, updated model.Filament) error {
	fields := []struct {
		name   string
		oldVal string
		newVal string
	}{
		{"brand", old.Brand, updated.Brand},
		{"density_g_cm3", fmtFloat(old.DensityGCM3), fmtFloat(updated.DensityGCM3)},
		{"color_hex", old.ColorHex, updated.ColorHex},
		{"nominal_weight_g", fmtFloat(old.NominalWeightG), fmtFloat(updated.NominalWeightG)},
		{"nozzle_temp_c", fmtFloat(old.NozzleTempC), fmtFloat(updated.NozzleTempC)},
		{"bed_temp_c", fmtFloat(old.BedTempC), fmtFloat(updated.BedTempC)},
		{"price", fmtFloat(old.Price), fmtFloat(updated.Price)},
	}
	for _, f := range fields {
		if f.oldVal == f.newVal {
			continue
		}
		if err := s.AppendChangeLog(ctx, model.ChangeLogEntry{
			Entity: "filament", EntityID: id, Field: f.name,
			OldValue: f.oldVal, NewValue: f.newVal, Source: changeLogSource,
		}); err != nil {
			return err
		}
	}
	return nil
}

// appendSpoolDiff writes one change_log row for every tracked spool field
// that differs between old and updated. lot_nr is the upsert's match key
// and never changes underneath an existing row, so it is not tracked here.
func (s *Session) appendSpoolDiff(ctx context.Context, id int64, old, updated model.Spool) error {
	fields := []struct {
		name   string
		oldVal string
		newVal string
	}{
		{"filament_id", strconv.FormatInt(old.FilamentID, 10), strconv.FormatInt(updated.FilamentID, 10)},
		{"spool_weight_g", fmtFloat(old.SpoolWeightG), fmtFloat(updated.SpoolWeightG)},
		{"initial_weight_g", fmtFloat(old.InitialWeightG), fmtFloat(updated.InitialWeightG)},
		{"used_weight_g", fmtFloat(old.UsedWeightG), fmtFloat(updated.UsedWeightG)},
		{"price", fmtFloat(old.Price), fmtFloat(updated.Price)},
		{"archived", strconv.FormatBool(old.Archived), strconv.FormatBool(updated.Archived)},
		{"last_used", formatTimeOrEmpty(old.LastUsed), formatTimeOrEmpty(updated.LastUsed)},
	}
	for _, f := range fields {
		if f.oldVal == f.newVal {
			continue
		}
		if err := s.AppendChangeLog(ctx, model.ChangeLogEntry{
			Entity: "spool", EntityID: id, Field: f.name,
			OldValue: f.oldVal, NewValue: f.newVal, Source: changeLogSource,
		}); err != nil {
			return err
		}
	}
	return nil
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatTimeOrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
