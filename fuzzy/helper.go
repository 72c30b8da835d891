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

package fuzzy

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SecretBytes is the size of a derived secret in bytes.
const SecretBytes = sha256.Size

// Secret is the key derived from a binarized embedding.
type Secret [SecretBytes]byte

// hashBits commits to the data segment of a codeword.
func hashBits(data []byte) Secret {
	return sha256.Sum256(data)
}

// String returns the secret as lowercase hex.
func (s Secret) String() string {
	return hex.EncodeToString(s[:])
}

// Equal compares two secrets in constant time.
func (s Secret) Equal(other Secret) bool {
	return subtle.ConstantTimeCompare(s[:], other[:]) == 1
}

// ParseSecret decodes a hex encoded secret.
func ParseSecret(s string) (Secret, error) {
	var out Secret
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("failed to decode secret: %v", err)
	}
	if len(b) != SecretBytes {
		return out, fmt.Errorf("secret has length %d, expected %d", len(b), SecretBytes)
	}
	copy(out[:], b)
	return out, nil
}

// HelperData is the public output of enrollment: the parity segment of the codeword
// and the parity symbol count it was produced with.
type HelperData struct {
	ParitySymbols int
	Parity        []byte
}

// helperDataJSON is the wire form written by the enrollment client: parity bytes are a
// JSON array of integers.
type helperDataJSON struct {
	ParitySymbols int             `json:"rs_symbols"`
	Parity        json.RawMessage `json:"helper_data"`
}

// MarshalJSON encodes the helper data as {"rs_symbols": K, "helper_data": [b0, b1, ...]}.
func (h HelperData) MarshalJSON() ([]byte, error) {
	ints := make([]int, len(h.Parity))
	for i, b := range h.Parity {
		ints[i] = int(b)
	}
	parity, err := json.Marshal(ints)
	if err != nil {
		return nil, err
	}
	return json.Marshal(helperDataJSON{ParitySymbols: h.ParitySymbols, Parity: parity})
}

// UnmarshalJSON accepts parity bytes either as an integer array or as a base64 string.
func (h *HelperData) UnmarshalJSON(data []byte) error {
	var raw helperDataJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Parity) == 0 {
		return fmt.Errorf("helper data has no parity bytes")
	}

	var parity []byte
	switch raw.Parity[0] {
	case '[':
		var ints []int
		if err := json.Unmarshal(raw.Parity, &ints); err != nil {
			return fmt.Errorf("failed to decode parity bytes: %v", err)
		}
		parity = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return fmt.Errorf("parity byte %d out of range: %d", i, v)
			}
			parity[i] = byte(v)
		}
	case '"':
		if err := json.Unmarshal(raw.Parity, &parity); err != nil {
			return fmt.Errorf("failed to decode parity bytes: %v", err)
		}
	default:
		return fmt.Errorf("unsupported parity encoding: %s", raw.Parity)
	}

	h.ParitySymbols = raw.ParitySymbols
	h.Parity = parity
	return nil
}

// Marshal serializes the helper data for storage.
func (h HelperData) Marshal() ([]byte, error) {
	return json.Marshal(h)
}

// ParseHelperData parses helper data serialized by Marshal or by the enrollment client.
func ParseHelperData(data []byte) (HelperData, error) {
	var h HelperData
	if err := json.Unmarshal(data, &h); err != nil {
		return HelperData{}, fmt.Errorf("failed to parse helper data: %v", err)
	}
	if err := h.Validate(); err != nil {
		return HelperData{}, err
	}
	return h, nil
}

// Validate checks that the parity segment matches the parity symbol count.
func (h HelperData) Validate() error {
	if h.ParitySymbols <= 0 {
		return fmt.Errorf("parity symbol count must be positive, got %d", h.ParitySymbols)
	}
	if len(h.Parity) != h.ParitySymbols {
		return fmt.Errorf("helper data has %d parity bytes, expected %d", len(h.Parity), h.ParitySymbols)
	}
	return nil
}

// Equal reports whether two helper data records are identical.
func (h HelperData) Equal(other HelperData) bool {
	return h.ParitySymbols == other.ParitySymbols && bytes.Equal(h.Parity, other.Parity)
}
