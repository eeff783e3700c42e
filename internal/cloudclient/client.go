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

// Package cloudclient is a typed wrapper over the cloud filament service's
// REST surface: filament listing, the material-type catalog, filament
// create/update, and an account connectivity probe.
package cloudclient

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

const (
	listTimeout = 30 * time.Second
	testTimeout = 10 * time.Second
)

// Client wraps the cloud catalog's REST API.
type Client struct {
	httpClient *http.Client
	base       string // e.g. https://api.example.com/{orgID}
	token      string
}

// New returns a Client rooted at baseURL/orgID, authenticating with token
// via a bearer header.
func New(baseURL, orgID, token string) *Client {
	return &Client{
		httpClient: &http.Client{},
		base:       fmt.Sprintf("%s/%s", trimSlash(baseURL), orgID),
		token:      token,
	}
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

func (c *Client) do(ctx context.Context, timeout time.Duration, method, url string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reqBody *bytes.Buffer
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &apperr.ShapeError{System: "cloud", Op: method + " " + url, Message: err.Error()}
		}
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return &apperr.UpstreamError{System: "cloud", Op: url, Message: "building request", Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &apperr.UpstreamError{System: "cloud", Op: url, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apperr.UpstreamError{System: "cloud", Op: url, Message: fmt.Sprintf("http %d", resp.StatusCode)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &apperr.ShapeError{System: "cloud", Op: url, Message: err.Error()}
	}
	return nil
}

// ListFilaments returns the org's full filament list.
func (c *Client) ListFilaments(ctx context.Context) (ListFilamentsResponse, error) {
	var resp ListFilamentsResponse
	url := c.base + "/filament/GetFilament"
	if err := c.do(ctx, listTimeout, http.MethodGet, url, nil, &resp); err != nil {
		return resp, err
	}
	if !resp.Status {
		return resp, &apperr.UpstreamError{System: "cloud", Op: "GetFilament", Message: resp.Message}
	}
	return resp, nil
}

// GetFilamentTypes returns the material-type metadata catalog.
func (c *Client) GetFilamentTypes(ctx context.Context) (TypesResponse, error) {
	var resp TypesResponse
	url := c.base + "/filament/type/Get"
	if err := c.do(ctx, listTimeout, http.MethodGet, url, nil, &resp); err != nil {
		return resp, err
	}
	if !resp.Status {
		return resp, &apperr.UpstreamError{System: "cloud", Op: "type/Get", Message: resp.Message}
	}
	return resp, nil
}

// CreateFilament creates a new Cloud filament.
func (c *Client) CreateFilament(ctx context.Context, payload UpdatePayload) error {
	var resp createResponse
	url := c.base + "/filament/Create"
	if err := c.do(ctx, listTimeout, http.MethodPost, url, payload, &resp); err != nil {
		return err
	}
	if !resp.Status {
		return &apperr.UpstreamError{System: "cloud", Op: "Create", Message: resp.Message}
	}
	return nil
}

// UpdateFilament updates the Cloud filament identified by id (the 4-char
// code).
func (c *Client) UpdateFilament(ctx context.Context, id string, payload UpdatePayload) error {
	var resp createResponse
	url := c.base + "/filament/Create?fid=" + id
	if err := c.do(ctx, listTimeout, http.MethodPost, url, payload, &resp); err != nil {
		return err
	}
	if !resp.Status {
		return &apperr.UpstreamError{System: "cloud", Op: "Create?fid", Message: resp.Message}
	}
	return nil
}

// TestConnection verifies the configured credential against the account
// probe endpoint.
func (c *Client) TestConnection(ctx context.Context) error {
	var resp testConnectionResponse
	url := c.base + "/account/Test"
	if err := c.do(ctx, testTimeout, http.MethodGet, url, nil, &resp); err != nil {
		return err
	}
	if !resp.Status {
		return &apperr.NotAuthorized{System: "cloud", Message: resp.Message}
	}
	return nil
}

// ParseFloat parses a Cloud json.Number field, returning 0 for blank or
// malformed values rather than erroring; callers treat invalid numeric
// fields as zero/absent and continue.
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
