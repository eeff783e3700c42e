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

// Package apperr defines the error taxonomy shared by every collaborator:
// upstream HTTP failures, malformed response envelopes, invariant
// violations, auth failures, and local cache failures. Every error carries
// enough context for a caller to decide whether to abort the tick, skip
// the item, or substitute a default, without string-matching error
// messages.
package apperr

import "fmt"

// UpstreamError signals a non-2xx or status=false response from Inv or
// Cloud.
type UpstreamError struct {
	System  string // "inv" or "cloud"
	Op      string
	Message string
	Cause   error
}

func (e *UpstreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.System, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.System, e.Op, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Cause }

// ShapeError signals a response missing a required envelope field or key.
type ShapeError struct {
	System  string
	Op      string
	Message string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %s: malformed response: %s", e.System, e.Op, e.Message)
}

// ValidationError signals a local invariant would be violated by the raw
// input (negative length, non-numeric field). The Reconciler returns it to
// fail an item when no safe default exists, such as a Cloud filament whose
// type id is missing or not numeric.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Message)
}

// NotAuthorized signals Cloud rejected the configured credential.
type NotAuthorized struct {
	System  string
	Message string
}

func (e *NotAuthorized) Error() string {
	return fmt.Sprintf("%s: not authorized: %s", e.System, e.Message)
}

// CacheError signals a Local Cache write failure.
type CacheError struct {
	Op    string
	Cause error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache: %s: %v", e.Op, e.Cause)
}

func (e *CacheError) Unwrap() error { return e.Cause }
