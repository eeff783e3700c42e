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

// Package invclient is a typed wrapper over the local spool-tracking
// service's REST surface: spools, filaments, and vendors.
package invclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spoolsync/spoolsync/internal/apperr"
)

const requestTimeout = 30 * time.Second

// Client wraps the Inv REST API.
type Client struct {
	httpClient *http.Client
	base       string
}

// New returns a Client rooted at baseURL.
func New(baseURL string) *Client {
	return &Client{httpClient: &http.Client{}, base: trimSlash(baseURL)}
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var reqBody *bytes.Buffer
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &apperr.ShapeError{System: "inv", Op: method + " " + path, Message: err.Error()}
		}
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return &apperr.UpstreamError{System: "inv", Op: path, Message: "building request", Cause: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &apperr.UpstreamError{System: "inv", Op: path, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apperr.UpstreamError{System: "inv", Op: path, Message: fmt.Sprintf("http %d", resp.StatusCode)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &apperr.ShapeError{System: "inv", Op: path, Message: err.Error()}
	}
	return nil
}

// ListSpools returns every spool Inv knows about.
func (c *Client) ListSpools(ctx context.Context) ([]Spool, error) {
	var out []Spool
	if err := c.do(ctx, http.MethodGet, "/spool", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListFilaments returns every filament Inv knows about.
func (c *Client) ListFilaments(ctx context.Context) ([]Filament, error) {
	var out []Filament
	if err := c.do(ctx, http.MethodGet, "/filament", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListVendors returns every vendor Inv knows about.
func (c *Client) ListVendors(ctx context.Context) ([]Vendor, error) {
	var out []Vendor
	if err := c.do(ctx, http.MethodGet, "/vendor", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateVendor creates a vendor and returns it.
func (c *Client) CreateVendor(ctx context.Context, payload CreateVendorPayload) (Vendor, error) {
	var out Vendor
	err := c.do(ctx, http.MethodPost, "/vendor", payload, &out)
	return out, err
}

// CreateFilament creates a filament and returns it.
func (c *Client) CreateFilament(ctx context.Context, payload CreateFilamentPayload) (Filament, error) {
	var out Filament
	err := c.do(ctx, http.MethodPost, "/filament", payload, &out)
	return out, err
}

// CreateSpool creates a spool and returns it.
func (c *Client) CreateSpool(ctx context.Context, payload CreateSpoolPayload) (Spool, error) {
	var out Spool
	err := c.do(ctx, http.MethodPost, "/spool", payload, &out)
	return out, err
}

// UpdateSpool updates the spool identified by id.
func (c *Client) UpdateSpool(ctx context.Context, id int64, payload UpdateSpoolPayload) (Spool, error) {
	var out Spool
	err := c.do(ctx, http.MethodPut, "/spool/"+strconv.FormatInt(id, 10), payload, &out)
	return out, err
}

// DeleteSpool deletes the spool identified by id.
func (c *Client) DeleteSpool(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/spool/"+strconv.FormatInt(id, 10), nil, nil)
}

// ParseFloat parses an Inv json.Number field, returning 0 for blank or
// malformed values.
func ParseFloat(n json.Number) float64 {
	if n == "" {
		return 0
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0
	}
	return f
}
