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

// Package physics converts between filament length and weight and snaps
// computed spool weights to standard canonical values.
package physics

import "math"

// FallbackGramsPerMeter is substituted by callers when density or diameter
// is unknown. Empirically correct for PLA at 1.75mm.
const FallbackGramsPerMeter = 2.98

// standardWeightsG are the canonical empty-spool-net-weight values, in
// ascending order, that a computed full-spool weight may snap to.
var standardWeightsG = []float64{250, 500, 1000, 2000, 5000, 10000}

// standardWeightToleranceFraction is the maximum relative distance from a
// candidate standard weight for a snap to be accepted.
const standardWeightToleranceFraction = 0.12

// GramsPerMeter computes grams per meter of filament from density and
// diameter. Returns (0, false) if either input is zero or negative, since
// both must be positive physical quantities.
func GramsPerMeter(densityGCM3, diameterMM float64) (float64, bool) {
	if densityGCM3 <= 0 || diameterMM <= 0 {
		return 0, false
	}
	radiusCM := diameterMM / 20
	crossSectionCM2 := math.Pi * radiusCM * radiusCM
	gpm := crossSectionCM2 * 100 * densityGCM3
	return round2(gpm), true
}

// WeightFromLengthMM converts a filament length in millimeters to a weight
// in grams at the given grams-per-meter rate.
func WeightFromLengthMM(lengthMM, gramsPerMeter float64) float64 {
	return round2(lengthMM / 1000 * gramsPerMeter)
}

// LengthMMFromWeight is the inverse of WeightFromLengthMM: given a weight in
// grams and a grams-per-meter rate, returns the corresponding length in mm.
func LengthMMFromWeight(weightG, gramsPerMeter float64) float64 {
	if gramsPerMeter <= 0 {
		return 0
	}
	return weightG / gramsPerMeter * 1000
}

// RoundToStandardWeight snaps w to the nearest standard spool weight if that
// weight is within the tolerance band, else returns w unchanged. brand
// "JAYO" additionally considers 1100g when 1000 < w < 1200.
func RoundToStandardWeight(w float64, brand string) float64 {
	if w <= 0 {
		return w
	}
	candidates := standardWeightsG
	if equalFoldJayo(brand) && w > 1000 && w < 1200 {
		candidates = append(append([]float64{}, standardWeightsG...), 1100)
	}

	best := candidates[0]
	bestDist := math.Abs(w - best)
	for _, c := range candidates[1:] {
		d := math.Abs(w - c)
		if d < bestDist {
			best = c
			bestDist = d
		}
	}
	if bestDist <= best*standardWeightToleranceFraction {
		return best
	}
	return w
}

func equalFoldJayo(brand string) bool {
	if len(brand) != 4 {
		return false
	}
	const want = "jayo"
	for i := 0; i < 4; i++ {
		c := brand[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != want[i] {
			return false
		}
	}
	return true
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
