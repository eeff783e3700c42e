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

package cloudclient

import "encoding/json"

// TypeRef models the Cloud "type" field, which arrives either as a nested
// object ({"id": 5637, "name": "PLA"}) or as a bare numeric id. Call ID()
// and Name() rather than accessing fields directly.
type TypeRef struct {
	id   string
	name string
}

// ID returns the type identifier, or "" if none was present.
func (t TypeRef) ID() string { return t.id }

// Name returns the inline type name, if the field carried one ("" for the
// bare-id form).
func (t TypeRef) Name() string { return t.name }

// UnmarshalJSON accepts an object {"id":.., "name":..}, a bare number, or a
// bare string.
func (t *TypeRef) UnmarshalJSON(data []byte) error {
	var obj struct {
		ID   json.Number `json:"id"`
		Name string      `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && (obj.ID != "" || obj.Name != "") {
		t.id = string(obj.ID)
		t.name = obj.Name
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		t.id = string(num)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.id = s
		return nil
	}
	return nil
}

// Filament is one entry of the Cloud GetFilament response.
type Filament struct {
	UID         string      `json:"uid"`
	Type        TypeRef     `json:"type"`
	Brand       string      `json:"brand"`
	ColorName   string      `json:"colorName"`
	ColorHex    string      `json:"colorHex"`
	DiameterMM  json.Number `json:"dia"`
	DensityGCM3 json.Number `json:"density"`
	TotalMM     json.Number `json:"total"`
	LeftMM      json.Number `json:"left"`
	SpoolWeight json.Number `json:"spoolWeight"`
	LastUsed    json.Number `json:"last_used"`
}

// ListFilamentsResponse is the envelope returned by GetFilament.
type ListFilamentsResponse struct {
	Status   bool                `json:"status"`
	Message  string              `json:"message"`
	Filament map[string]Filament `json:"filament"`
}

// Temps holds a type's slicing temperatures.
type Temps struct {
	Nozzle json.Number `json:"nozzle"`
	Bed    json.Number `json:"bed"`
}

// FilamentType is one entry of the Cloud filament-type catalog.
type FilamentType struct {
	MaterialTypeName string      `json:"material_type_name"`
	FilamentTypeName string      `json:"filament_type_name"`
	ProfileName      string      `json:"profile_name"`
	Brand            TypeRef     `json:"brand"`
	Density          json.Number `json:"density"`
	Width            json.Number `json:"width"`
	Diameter         json.Number `json:"diameter"`
	Temps            Temps       `json:"temps"`
	Cost             json.Number `json:"cost"`
}

// TypesResponse is the envelope returned by filament/type/Get. The upstream
// is inconsistent about whether types live under "data" or "types", and
// whether that value is an array or an id-keyed object; UnmarshalJSON
// normalizes all of that into Types.
type TypesResponse struct {
	Status  bool
	Message string
	Types   map[string]FilamentType
}

func (r *TypesResponse) UnmarshalJSON(data []byte) error {
	var env struct {
		Status  bool            `json:"status"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
		Types   json.RawMessage `json:"types"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	r.Status = env.Status
	r.Message = env.Message
	r.Types = map[string]FilamentType{}

	raw := env.Data
	if len(raw) == 0 {
		raw = env.Types
	}
	if len(raw) == 0 {
		return nil
	}

	var asMap map[string]FilamentType
	if err := json.Unmarshal(raw, &asMap); err == nil {
		r.Types = asMap
		return nil
	}

	var asList []struct {
		ID string `json:"id"`
		FilamentType
	}
	if err := json.Unmarshal(raw, &asList); err == nil {
		for _, t := range asList {
			if t.ID == "" {
				continue
			}
			r.Types[t.ID] = t.FilamentType
		}
	}
	return nil
}

// UpdatePayload is the body sent to Create/Update for a Cloud filament.
// length_used carries *percent remaining*, not percent used — an
// inversion the upstream documents inline and this client preserves as-is.
type UpdatePayload struct {
	Left               float64 `json:"left"`
	TotalLength        float64 `json:"total_length"`
	TotalLengthType    string  `json:"total_length_type"`
	LengthUsed         float64 `json:"length_used"`
	LeftLengthType     string  `json:"left_length_type"`
	ColorName          string  `json:"color_name"`
	ColorHex           string  `json:"color_hex"`
	Width              float64 `json:"width"`
	Density            float64 `json:"density"`
	Brand              string  `json:"brand"`
	FilamentTypeNumber int     `json:"filament_type"`
}

type createResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}

type testConnectionResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}
