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

// Package model holds the internal domain types the Reconciler operates on.
// Upstream-specific shapes are normalized into these before the Reconciler
// ever sees them; nothing in this package knows about Inv or Cloud wire
// formats.
package model

import "time"

// Filament is a material profile, not a physical spool. Identity in the
// cache is the triple (Name, Material, DiameterMM).
type Filament struct {
	ID             int64
	Name           string
	Brand          string
	Material       string
	DiameterMM     float64
	DensityGCM3    float64
	ColorHex       string // canonical "#RRGGBB", empty if unknown
	NominalWeightG float64
	NozzleTempC    float64
	BedTempC       float64
	Price          float64 // major currency units, 0 if unknown
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Spool is a physical spool instance.
type Spool struct {
	ID             int64
	FilamentID     int64
	LotNr          string // the Cloud 4-character code
	SpoolWeightG   float64
	InitialWeightG float64
	UsedWeightG    float64
	Price          float64
	Archived       bool
	Source         string
	LastUsed       time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ExternalLink resolves stable cross-system identity for a local entity.
type ExternalLink struct {
	ID         int64
	LocalType  string
	LocalID    int64
	System     string
	ExternalID string
	LastSeen   time.Time
}

// ChangeLogEntry is an append-only record of one field-level mutation.
type ChangeLogEntry struct {
	ID       int64
	Entity   string
	EntityID int64
	Field    string
	OldValue string
	NewValue string
	Source   string
	Ts       time.Time
}

// NormalizedFilament is the Normalizer's output: a Filament plus the Cloud
// fields the Reconciler still needs but that do not belong in the stored
// Filament model (the code, and the raw length telemetry).
type NormalizedFilament struct {
	Filament Filament
	Code     string // Cloud uid / Inv lot_nr
	TotalMM  float64
	LeftMM   float64
	// UpdatedAt is the Cloud filament's last_used time, if it reported one.
	UpdatedAt time.Time
}
