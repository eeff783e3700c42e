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

package normalize

import "strings"

// knownMaterials is checked longest-match-first so that "PLA+" is preferred
// over "PLA" and "TPU-95A" over "TPU".
var knownMaterials = []string{
	"PLA+", "PETG-CF", "PLA-CF", "ABS+", "TPU-95A", "TPU-98A",
	"PETG", "PLA", "ABS", "TPU", "NYLON", "ASA", "PC", "PP", "PVA", "HIPS",
}

// ExtractMaterial resolves the canonical short material code from a raw
// type label. typeName is what the types catalog reports for this
// filament's type id ("" if the catalog has nothing); rawLabel is
// the filament's own type field rendered as a label (e.g. "JAYO PETG" or a
// bare numeric id string).
func ExtractMaterial(typeName, rawLabel string) string {
	if typeName != "" {
		return typeName
	}
	return extractFromLabel(rawLabel)
}

func extractFromLabel(rawLabel string) string {
	label := strings.TrimSpace(rawLabel)
	if label == "" {
		return "Unknown"
	}
	upper := strings.ToUpper(label)

	for _, mat := range knownMaterials {
		if upper == mat {
			return mat
		}
		if strings.HasSuffix(upper, " "+mat) {
			return mat
		}
		if strings.HasPrefix(upper, mat+" ") {
			return mat
		}
		for _, word := range strings.Fields(upper) {
			if word == mat {
				return mat
			}
		}
	}

	words := strings.Fields(label)
	if len(words) > 1 {
		last := words[len(words)-1]
		if len(last) >= 2 && len(last) <= 10 {
			return last
		}
	}
	return label
}
