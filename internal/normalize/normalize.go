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

// Package normalize turns a Cloud filament record, plus its type-catalog
// entry, into the internal model. Every function here is pure: no network
// calls, no clock reads beyond parsing a caller-supplied timestamp, no
// logging. That keeps the whole package exhaustively table-test friendly.
package normalize

import (
	"strconv"
	"strings"
	"time"

	"github.com/spoolsync/spoolsync/internal/cloudclient"
	"github.com/spoolsync/spoolsync/internal/model"
)

const (
	defaultDiameterMM  = 1.75
	defaultDensityGCM3 = 1.24
)

// Filament normalizes a Cloud filament record into the internal model:
// material extraction, brand/diameter/density fallbacks, color
// canonicalization, display name assembly, and timestamp parsing. typ is
// the matching types-catalog entry; pass the zero value when the catalog
// has nothing for this filament's type.
func Filament(f cloudclient.Filament, typ cloudclient.FilamentType) model.NormalizedFilament {
	material := ExtractMaterial(typ.MaterialTypeName, f.Type.Name())
	if material == "Unknown" && f.Type.ID() != "" {
		material = ExtractMaterial(typ.MaterialTypeName, f.Type.ID())
	}

	brand := f.Brand
	if brand == "" {
		brand = typ.Brand.Name()
	}
	if brand == "" {
		brand = "Unknown"
	}

	diameter := numOr(f.DiameterMM, numOr(typ.Diameter, defaultDiameterMM))
	density := numOr(f.DensityGCM3, numOr(typ.Density, defaultDensityGCM3))

	color := CanonicalColor(f.ColorHex)

	name := strings.TrimSpace(firstNonEmpty(typ.ProfileName, material) + " " + f.ColorName)

	nozzle := numOr(typ.Temps.Nozzle, 0)
	bed := numOr(typ.Temps.Bed, 0)
	price := numOr(typ.Cost, 0) / 100

	updatedAt, _ := Timestamp(string(f.LastUsed))

	return model.NormalizedFilament{
		Filament: model.Filament{
			Name:        name,
			Brand:       brand,
			Material:    material,
			DiameterMM:  diameter,
			DensityGCM3: density,
			ColorHex:    color,
			NozzleTempC: nozzle,
			BedTempC:    bed,
			Price:       price,
		},
		Code:      f.UID,
		TotalMM:   numOr(f.TotalMM, 0),
		LeftMM:    numOr(f.LeftMM, 0),
		UpdatedAt: updatedAt,
	}
}

// Timestamp canonicalizes a timestamp that may arrive as Unix seconds or as
// an already-formatted string. A string value is validated by parsing it
// as RFC3339; an empty or unparsable value yields the zero time and
// ok=false.
func Timestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func numOr(n interface{ String() string }, fallback float64) float64 {
	s := n.String()
	if s == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return f
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
