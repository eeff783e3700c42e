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

package reconcile

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// fakeInv is an in-memory stand-in for the Inv REST surface, just enough
// of it to drive the Reconciler end to end.
type fakeInv struct {
	mu        sync.Mutex
	nextID    int64
	vendors   []map[string]any
	filaments []map[string]any
	spools    []map[string]any
}

func newFakeInv() *fakeInv {
	return &fakeInv{nextID: 1}
}

func (f *fakeInv) id() int64 {
	id := f.nextID
	f.nextID++
	return id
}

func (f *fakeInv) server() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/spool":
			writeJSON(w, f.spools)
		case r.Method == http.MethodGet && r.URL.Path == "/filament":
			writeJSON(w, f.filaments)
		case r.Method == http.MethodGet && r.URL.Path == "/vendor":
			writeJSON(w, f.vendors)
		case r.Method == http.MethodPost && r.URL.Path == "/vendor":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			body["id"] = f.id()
			f.vendors = append(f.vendors, body)
			writeJSON(w, body)
		case r.Method == http.MethodPost && r.URL.Path == "/filament":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			body["id"] = f.id()
			f.filaments = append(f.filaments, body)
			writeJSON(w, body)
		case r.Method == http.MethodPost && r.URL.Path == "/spool":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			body["id"] = f.id()
			f.spools = append(f.spools, body)
			writeJSON(w, body)
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/spool/"):
			id, _ := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/spool/"), 10, 64)
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			for i, sp := range f.spools {
				if toInt64(sp["id"]) == id {
					body["id"] = id
					f.spools[i] = body
					writeJSON(w, body)
					return
				}
			}
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/spool/"):
			id, _ := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/spool/"), 10, 64)
			out := f.spools[:0]
			for _, sp := range f.spools {
				if toInt64(sp["id"]) != id {
					out = append(out, sp)
				}
			}
			f.spools = out
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func (f *fakeInv) spoolByLotNr(lotNr string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sp := range f.spools {
		if sp["lot_nr"] == lotNr {
			return sp
		}
	}
	return nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}

// fakeCloud is an in-memory stand-in for the Cloud REST surface.
type fakeCloud struct {
	mu        sync.Mutex
	orgID     string
	filaments map[string]map[string]any
	types     map[string]map[string]any
	authFails bool
}

func newFakeCloud(orgID string) *fakeCloud {
	return &fakeCloud{orgID: orgID, filaments: map[string]map[string]any{}, types: map[string]map[string]any{}}
}

func (c *fakeCloud) server() *httptest.Server {
	prefix := "/" + c.orgID
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()

		switch {
		case r.Method == http.MethodGet && r.URL.Path == prefix+"/filament/GetFilament":
			writeJSON(w, map[string]any{"status": true, "message": "", "filament": c.filaments})
		case r.Method == http.MethodGet && r.URL.Path == prefix+"/filament/type/Get":
			writeJSON(w, map[string]any{"status": true, "message": "", "data": c.types})
		case r.Method == http.MethodPost && r.URL.Path == prefix+"/filament/Create":
			fid := r.URL.Query().Get("fid")
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if fid == "" {
				fid = fmt.Sprintf("NEW%d", len(c.filaments)+1)
			}
			existing, ok := c.filaments[fid]
			if !ok {
				existing = map[string]any{"uid": fid}
			}
			existing["left"] = body["left"]
			existing["total"] = body["total_length"]
			existing["colorName"] = body["color_name"]
			existing["colorHex"] = body["color_hex"]
			c.filaments[fid] = existing
			writeJSON(w, map[string]any{"status": true, "message": ""})
		case r.Method == http.MethodGet && r.URL.Path == prefix+"/account/Test":
			if c.authFails {
				writeJSON(w, map[string]any{"status": false, "message": "bad credential"})
				return
			}
			writeJSON(w, map[string]any{"status": true, "message": ""})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
