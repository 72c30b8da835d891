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
	"fmt"
	"math/bits"
)

// ErrDimensionMismatch is returned when an embedding does not have the configured length.
// It indicates version skew between the embedding extractor and the configuration.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// EmbeddingVector is a face embedding produced by an external extractor.
type EmbeddingVector []float64

// BitString is a binarized embedding. Bit i of an N-bit string is bit (N-1-i) of the
// big-endian integer stored in Bytes, so for N a multiple of 8 the bits are packed
// most-significant-bit first.
type BitString struct {
	n     int
	bytes []byte
}

// Len returns the number of bits.
func (b BitString) Len() int {
	return b.n
}

// Bytes returns a copy of the packed bits.
func (b BitString) Bytes() []byte {
	return append([]byte(nil), b.bytes...)
}

func (b BitString) position(i int) (int, byte) {
	p := len(b.bytes)*8 - b.n + i
	return p / 8, 0x80 >> (p % 8)
}

// Bit reports whether bit i is set.
func (b BitString) Bit(i int) bool {
	if i < 0 || i >= b.n {
		panic(fmt.Sprintf("bit index %d out of range [0, %d)", i, b.n))
	}
	idx, mask := b.position(i)
	return b.bytes[idx]&mask != 0
}

// HammingDistance returns the number of differing bits. Both strings must have the same length.
func (b BitString) HammingDistance(other BitString) (int, error) {
	if b.n != other.n {
		return 0, fmt.Errorf("bit strings have different lengths: %d and %d", b.n, other.n)
	}
	d := 0
	for i := range b.bytes {
		d += bits.OnesCount8(b.bytes[i] ^ other.bytes[i])
	}
	return d, nil
}

// Binarizer turns embeddings into bit strings with a per-coordinate threshold test.
type Binarizer struct {
	dim       int
	threshold float64
}

// NewBinarizer returns a binarizer for embeddings of length dim.
func NewBinarizer(dim int, threshold float64) (*Binarizer, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	return &Binarizer{dim: dim, threshold: threshold}, nil
}

// DataBytes returns the length of the packed bit strings.
func (z *Binarizer) DataBytes() int {
	return (z.dim + 7) / 8
}

// Binarize sets bit i iff embedding[i] is greater than the threshold. NaN coordinates
// binarize to 0.
func (z *Binarizer) Binarize(embedding EmbeddingVector) (BitString, error) {
	if len(embedding) != z.dim {
		return BitString{}, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), z.dim)
	}

	b := BitString{n: z.dim, bytes: make([]byte, z.DataBytes())}
	for i, v := range embedding {
		if v > z.threshold {
			idx, mask := b.position(i)
			b.bytes[idx] |= mask
		}
	}
	return b, nil
}
