// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store persists helper data records keyed by user nickname.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrNotFound is returned when no record exists for a nickname.
var ErrNotFound = errors.New("helper data not found")

var nicknamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@-]{0,127}$`)

// Metadata is stored alongside a helper data payload.
type Metadata struct {
	// Hex SHA-256 of the PEM text of the enrolling device's public key.
	PubKeyHash string `json:"pubKeyHash,omitempty"`
	// Hex signature over the payload.
	Signature    string    `json:"signature,omitempty"`
	EnrollmentID string    `json:"enrollmentId,omitempty"`
	Sealed       bool      `json:"sealed,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Record is a stored helper data payload. The payload is kept verbatim, whether it is
// plain or sealed helper data.
type Record struct {
	Nickname string   `json:"nickname"`
	Payload  []byte   `json:"payload"`
	Metadata Metadata `json:"metadata"`
}

// HelperStore persists helper data. Storing under an existing nickname replaces the record.
type HelperStore interface {
	StoreHelperData(ctx context.Context, nickname string, payload []byte, meta Metadata) error
	FetchHelperData(ctx context.Context, nickname string) (*Record, error)
}

// ValidateNickname checks that nickname can be used as a record key.
func ValidateNickname(nickname string) error {
	if !nicknamePattern.MatchString(nickname) {
		return fmt.Errorf("invalid nickname %q", nickname)
	}
	return nil
}
