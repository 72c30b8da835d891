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
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHelperDataMarshal(t *testing.T) {
	h := HelperData{ParitySymbols: 4, Parity: []byte{0, 17, 128, 255}}

	got, err := h.Marshal()
	if err != nil {
		t.Fatalf("Marshal() returned error: %v", err)
	}
	want := `{"rs_symbols":4,"helper_data":[0,17,128,255]}`
	if string(got) != want {
		t.Errorf("Marshal() = %s, want %s", got, want)
	}

	parsed, err := ParseHelperData(got)
	if err != nil {
		t.Fatalf("ParseHelperData() returned error: %v", err)
	}
	if !parsed.Equal(h) {
		t.Errorf("ParseHelperData() = %+v, want %+v", parsed, h)
	}
}

func TestParseHelperData(t *testing.T) {
	for _, tc := range []struct {
		name  string
		input string
		want  HelperData
	}{
		{
			name:  "integer array",
			input: `{"rs_symbols": 3, "helper_data": [1, 2, 250]}`,
			want:  HelperData{ParitySymbols: 3, Parity: []byte{1, 2, 250}},
		},
		{
			name:  "base64 string",
			input: `{"rs_symbols": 3, "helper_data": "AQL6"}`,
			want:  HelperData{ParitySymbols: 3, Parity: []byte{1, 2, 250}},
		},
		{
			name:  "key order and whitespace",
			input: "{\n  \"helper_data\": [9, 8],\n  \"rs_symbols\": 2\n}",
			want:  HelperData{ParitySymbols: 2, Parity: []byte{9, 8}},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseHelperData([]byte(tc.input))
			if err != nil {
				t.Fatalf("ParseHelperData() returned error: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("ParseHelperData() returned unexpected diff (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseHelperDataErrors(t *testing.T) {
	for _, tc := range []struct {
		name  string
		input string
	}{
		{name: "not json", input: "rs_symbols=16"},
		{name: "missing parity", input: `{"rs_symbols": 16}`},
		{name: "byte out of range", input: `{"rs_symbols": 2, "helper_data": [1, 256]}`},
		{name: "negative byte", input: `{"rs_symbols": 2, "helper_data": [-1, 2]}`},
		{name: "length mismatch", input: `{"rs_symbols": 16, "helper_data": [1, 2, 3]}`},
		{name: "zero parity symbols", input: `{"rs_symbols": 0, "helper_data": []}`},
		{name: "object parity", input: `{"rs_symbols": 1, "helper_data": {"a": 1}}`},
		{name: "invalid base64", input: `{"rs_symbols": 1, "helper_data": "%%%"}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseHelperData([]byte(tc.input)); err == nil {
				t.Errorf("ParseHelperData(%s) returned nil error", tc.input)
			}
		})
	}
}

func TestHelperDataEmbedsInJSON(t *testing.T) {
	type record struct {
		Helper HelperData `json:"helper"`
	}
	in := record{Helper: HelperData{ParitySymbols: 2, Parity: []byte{3, 4}}}

	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("json.Marshal() returned error: %v", err)
	}
	var out record
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("json.Unmarshal() returned error: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("JSON round trip returned unexpected diff (-want +got):\n%s", diff)
	}
}

func TestSecretString(t *testing.T) {
	// SHA-256 of the empty input.
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	s := hashBits(nil)
	if got := s.String(); got != want {
		t.Errorf("String() = %s, want %s", got, want)
	}

	parsed, err := ParseSecret(strings.ToUpper(want))
	if err != nil {
		t.Fatalf("ParseSecret() returned error: %v", err)
	}
	if !parsed.Equal(s) {
		t.Errorf("ParseSecret() = %v, want %v", parsed, s)
	}
}

func TestParseSecretErrors(t *testing.T) {
	for _, input := range []string{"", "zz", "e3b0c442", strings.Repeat("00", 33)} {
		if _, err := ParseSecret(input); err == nil {
			t.Errorf("ParseSecret(%q) returned nil error", input)
		}
	}
}
