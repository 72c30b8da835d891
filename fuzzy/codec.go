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

	"github.com/biomask/biomask/fuzzy/internal/reedsolomon"
)

// ErrCorrectionFailure is returned when a codeword cannot be decoded, either because it has
// more symbol errors than the code corrects or because it was decoded with the wrong
// parity symbol count. The two causes cannot be told apart.
var ErrCorrectionFailure = errors.New("error correction failed")

// Codeword is a data segment followed by its parity segment.
type Codeword struct {
	bytes         []byte
	paritySymbols int
}

// Bytes returns the full codeword.
func (c Codeword) Bytes() []byte {
	return append([]byte(nil), c.bytes...)
}

// Data returns the data segment.
func (c Codeword) Data() []byte {
	return append([]byte(nil), c.bytes[:len(c.bytes)-c.paritySymbols]...)
}

// Parity returns the parity segment.
func (c Codeword) Parity() []byte {
	return append([]byte(nil), c.bytes[len(c.bytes)-c.paritySymbols:]...)
}

// Codec is a systematic Reed-Solomon codec over GF(2^8) with a fixed parity symbol count.
type Codec struct {
	code *reedsolomon.Code
}

// NewCodec returns a codec appending paritySymbols parity symbols.
func NewCodec(paritySymbols int) (*Codec, error) {
	code, err := reedsolomon.New(paritySymbols)
	if err != nil {
		return nil, fmt.Errorf("failed to create codec: %v", err)
	}
	return &Codec{code: code}, nil
}

// ParitySymbols returns the number of parity symbols the codec appends.
func (c *Codec) ParitySymbols() int {
	return c.code.ParitySymbols()
}

// CorrectableSymbols returns the number of symbol errors the codec corrects.
func (c *Codec) CorrectableSymbols() int {
	return c.code.ParitySymbols() / 2
}

// Encode returns the codeword for data. The first len(data) bytes equal data.
func (c *Codec) Encode(data []byte) (Codeword, error) {
	b, err := c.code.Encode(data)
	if err != nil {
		return Codeword{}, fmt.Errorf("failed to encode: %v", err)
	}
	return Codeword{bytes: b, paritySymbols: c.code.ParitySymbols()}, nil
}

// Decode corrects the codeword and returns its data segment.
//
// When the codeword has more errors than CorrectableSymbols, Decode usually fails with
// ErrCorrectionFailure but may return another valid data segment.
func (c *Codec) Decode(codeword []byte) ([]byte, error) {
	data, _, err := c.code.Decode(codeword)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrectionFailure, err)
	}
	return data, nil
}
