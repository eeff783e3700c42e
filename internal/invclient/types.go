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

package invclient

import (
	"encoding/json"
	"strconv"
)

// EntityRef models a reference to another Inv entity that the API returns
// either nested ({"id": 7, "name": "..."}) or flat (7, or "7"). It
// generalizes to every entity reference Inv returns this way (vendor on a
// filament, filament on a spool).
type EntityRef struct {
	id    int64
	valid bool
}

// ID returns the referenced entity's id and whether a reference was present
// at all.
func (r EntityRef) ID() (int64, bool) { return r.id, r.valid }

func (r *EntityRef) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	var nested struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(data, &nested); err == nil && nested.ID != "" {
		id, err := nested.ID.Int64()
		if err != nil {
			return nil
		}
		r.id, r.valid = id, true
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		id, err := num.Int64()
		if err == nil {
			r.id, r.valid = id, true
		}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		id, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			r.id, r.valid = id, true
		}
	}
	return nil
}

// Vendor is an Inv vendor record.
type Vendor struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Filament is an Inv filament record.
type Filament struct {
	ID             int64       `json:"id"`
	Name           string      `json:"name"`
	Material       string      `json:"material"`
	Vendor         EntityRef   `json:"vendor"`
	Diameter       json.Number `json:"diameter"`
	Density        json.Number `json:"density"`
	ColorHex       string      `json:"color_hex"`
	Weight         json.Number `json:"weight"`
	Price          json.Number `json:"price"`
	SettingsNozzle json.Number `json:"settings_extruder_temp"`
	SettingsBed    json.Number `json:"settings_bed_temp"`
}

// Spool is an Inv spool record.
type Spool struct {
	ID           int64       `json:"id"`
	LotNr        string      `json:"lot_nr"`
	UsedWeight   json.Number `json:"used_weight"`
	SpoolWeight  json.Number `json:"spool_weight"`
	InitialWeigh json.Number `json:"initial_weight"`
	Price        json.Number `json:"price"`
	Archived     bool        `json:"archived"`
	Filament     EntityRef   `json:"filament"`
	FilamentID   json.Number `json:"filament_id"`
	UpdatedAt    string      `json:"updated_at"`
	LastUsed     string      `json:"last_used"`
}

// ResolvedFilamentID returns the spool's filament id from whichever of the
// nested or flat forms was populated.
func (s Spool) ResolvedFilamentID() (int64, bool) {
	if id, ok := s.Filament.ID(); ok {
		return id, true
	}
	if s.FilamentID != "" {
		id, err := s.FilamentID.Int64()
		if err == nil {
			return id, true
		}
	}
	return 0, false
}

// CreateFilamentPayload is the body sent to POST /filament.
type CreateFilamentPayload struct {
	Name           string  `json:"name"`
	Diameter       float64 `json:"diameter"`
	Density        float64 `json:"density"`
	Material       string  `json:"material,omitempty"`
	VendorID       int64   `json:"vendor_id,omitempty"`
	ColorHex       string  `json:"color_hex,omitempty"`
	SettingsNozzle float64 `json:"settings_extruder_temp,omitempty"`
	SettingsBed    float64 `json:"settings_bed_temp,omitempty"`
	Price          float64 `json:"price,omitempty"`
	Weight         float64 `json:"weight,omitempty"`
}

// CreateSpoolPayload is the body sent to POST /spool.
type CreateSpoolPayload struct {
	FilamentID     int64   `json:"filament_id"`
	LotNr          string  `json:"lot_nr"`
	InitialWeight  float64 `json:"initial_weight"`
	Price          float64 `json:"price"`
	UsedWeight     float64 `json:"used_weight"`
	Archived       bool    `json:"archived"`
	SpoolWeight    float64 `json:"spool_weight,omitempty"`
	LastUsed       string  `json:"last_used,omitempty"`
}

// UpdateSpoolPayload is the body sent to PUT /spool/{id}.
type UpdateSpoolPayload struct {
	FilamentID  int64   `json:"filament_id"`
	Price       float64 `json:"price"`
	SpoolWeight float64 `json:"spool_weight,omitempty"`
	Archived    bool    `json:"archived"`
	LotNr       string  `json:"lot_nr"`
	UsedWeight  float64 `json:"used_weight"`
	LastUsed    string  `json:"last_used,omitempty"`
}

// CreateVendorPayload is the body sent to POST /vendor.
type CreateVendorPayload struct {
	Name string `json:"name"`
}
