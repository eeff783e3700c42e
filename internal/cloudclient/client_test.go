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

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spoolsync/spoolsync/internal/apperr"
)

func TestListFilaments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/org1/filament/GetFilament", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(`{
			"status": true,
			"filament": {
				"3017": {"uid": "PL23", "type": {"id": 5637, "name": "PLA"}, "brand": "test",
				         "dia": 1.75, "density": 1.24, "total": 335284, "left": 234699}
			}
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "org1", "tok")
	resp, err := c.ListFilaments(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.Filament, 1)
	f := resp.Filament["3017"]
	assert.Equal(t, "PL23", f.UID)
	assert.Equal(t, "5637", f.Type.ID())
	assert.Equal(t, "PLA", f.Type.Name())
	assert.Equal(t, 335284.0, ParseFloat(f.TotalMM))
}

func TestListFilamentsUpstreamStatusFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": false, "message": "org not found"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "org1", "tok")
	_, err := c.ListFilaments(context.Background())
	require.Error(t, err)
	var upErr *apperr.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Contains(t, err.Error(), "org not found")
}

func TestGetFilamentTypesArrayShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": true, "data": [{"id": "5637", "material_type_name": "PLA", "density": 1.24}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "org1", "tok")
	resp, err := c.GetFilamentTypes(context.Background())
	require.NoError(t, err)
	require.Contains(t, resp.Types, "5637")
	assert.Equal(t, "PLA", resp.Types["5637"].MaterialTypeName)
}

func TestGetFilamentTypesMapShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": true, "types": {"5637": {"material_type_name": "PLA"}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "org1", "tok")
	resp, err := c.GetFilamentTypes(context.Background())
	require.NoError(t, err)
	require.Contains(t, resp.Types, "5637")
}

func TestUpdateFilamentSendsFidQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/org1/filament/Create", r.URL.Path)
		assert.Equal(t, "fid=PL23", r.URL.RawQuery)
		w.Write([]byte(`{"status": true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "org1", "tok")
	err := c.UpdateFilament(context.Background(), "PL23", UpdatePayload{})
	require.NoError(t, err)
}

func TestTestConnectionNotAuthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": false, "message": "invalid key"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "org1", "bad")
	err := c.TestConnection(context.Background())
	require.Error(t, err)
	var notAuth *apperr.NotAuthorized
	require.True(t, errors.As(err, &notAuth))
	assert.Contains(t, err.Error(), "invalid key")
}
