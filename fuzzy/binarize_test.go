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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBinarizePacksMostSignificantBitFirst(t *testing.T) {
	z, err := NewBinarizer(16, 0.0)
	if err != nil {
		t.Fatalf("NewBinarizer() returned error: %v", err)
	}
	embedding := EmbeddingVector{
		0.5, -0.1, 0, 0.2, -3, -3, -3, 1e-9,
		-1, -1, -1, -1, -1, -1, -1, 0.01,
	}

	bits, err := z.Binarize(embedding)
	if err != nil {
		t.Fatalf("Binarize() returned error: %v", err)
	}
	if diff := cmp.Diff([]byte{0x91, 0x01}, bits.Bytes()); diff != "" {
		t.Errorf("Binarize() returned unexpected diff (-want +got):\n%s", diff)
	}
	for i, v := range embedding {
		if got, want := bits.Bit(i), v > 0; got != want {
			t.Errorf("Bit(%d) = %v, want %v", i, got, want)
		}
	}
}

func TestBinarizeRightAlignsPartialBytes(t *testing.T) {
	// Ten bits form the integer 0b1000000001, written big-endian into two bytes.
	z, err := NewBinarizer(10, 0.0)
	if err != nil {
		t.Fatalf("NewBinarizer() returned error: %v", err)
	}
	embedding := EmbeddingVector{1, -1, -1, -1, -1, -1, -1, -1, -1, 1}

	bits, err := z.Binarize(embedding)
	if err != nil {
		t.Fatalf("Binarize() returned error: %v", err)
	}
	if diff := cmp.Diff([]byte{0x02, 0x01}, bits.Bytes()); diff != "" {
		t.Errorf("Binarize() returned unexpected diff (-want +got):\n%s", diff)
	}
	if bits.Len() != 10 {
		t.Errorf("Len() = %d, want 10", bits.Len())
	}
	if !bits.Bit(0) || !bits.Bit(9) || bits.Bit(5) {
		t.Errorf("Bit() does not match the embedding signs: %08b", bits.Bytes())
	}
}

func TestBinarizeUsesThreshold(t *testing.T) {
	z, err := NewBinarizer(8, 0.5)
	if err != nil {
		t.Fatalf("NewBinarizer() returned error: %v", err)
	}
	bits, err := z.Binarize(EmbeddingVector{0.4, 0.5, 0.6, 1, 0, -1, 0.51, 0.49})
	if err != nil {
		t.Fatalf("Binarize() returned error: %v", err)
	}
	if got, want := bits.Bytes()[0], byte(0b00110010); got != want {
		t.Errorf("Binarize() = %08b, want %08b", got, want)
	}
}

func TestBinarizeDimensionMismatch(t *testing.T) {
	z, err := NewBinarizer(128, 0.0)
	if err != nil {
		t.Fatalf("NewBinarizer() returned error: %v", err)
	}
	for _, n := range []int{0, 127, 129, 512} {
		if _, err := z.Binarize(make(EmbeddingVector, n)); !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("Binarize(%d coordinates) err = %v, want %v", n, err, ErrDimensionMismatch)
		}
	}
}

func TestNewBinarizerRejectsNonPositiveDimension(t *testing.T) {
	if _, err := NewBinarizer(0, 0.0); err == nil {
		t.Error("NewBinarizer(0) returned nil error")
	}
}

func TestHammingDistance(t *testing.T) {
	z, err := NewBinarizer(16, 0.0)
	if err != nil {
		t.Fatalf("NewBinarizer() returned error: %v", err)
	}
	a := testEmbedding(16, 3)
	b := flipBits(a, 0, 7, 15)

	bitsA, err := z.Binarize(a)
	if err != nil {
		t.Fatalf("Binarize() returned error: %v", err)
	}
	bitsB, err := z.Binarize(b)
	if err != nil {
		t.Fatalf("Binarize() returned error: %v", err)
	}

	d, err := bitsA.HammingDistance(bitsB)
	if err != nil {
		t.Fatalf("HammingDistance() returned error: %v", err)
	}
	if d != 3 {
		t.Errorf("HammingDistance() = %d, want 3", d)
	}

	other, err := NewBinarizer(8, 0.0)
	if err != nil {
		t.Fatalf("NewBinarizer() returned error: %v", err)
	}
	short, err := other.Binarize(testEmbedding(8, 1))
	if err != nil {
		t.Fatalf("Binarize() returned error: %v", err)
	}
	if _, err := bitsA.HammingDistance(short); err == nil {
		t.Error("HammingDistance() of different lengths returned nil error")
	}
}
