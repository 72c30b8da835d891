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

// Package reedsolomon implements a systematic Reed-Solomon code over GF(2^8) with an
// errors-only decoder.
//
// A codeword is the message followed by K parity symbols, read as a polynomial whose
// highest-degree coefficient is the first byte. The generator polynomial has the roots
// alpha^0 ... alpha^(K-1), so up to floor(K/2) corrupted symbols anywhere in the codeword
// can be corrected.
//
// Like every bounded-distance decoder, Decode can return a different valid codeword when
// more than floor(K/2) symbols are corrupted. Such miscorrections are not detectable here.
package reedsolomon

import (
	"errors"
	"fmt"

	"github.com/biomask/biomask/fuzzy/internal/gf8"
)

// MaxCodewordBytes is the longest codeword the field supports.
const MaxCodewordBytes = gf8.Order

var (
	// ErrTooManyErrors is returned when a codeword cannot be decoded.
	ErrTooManyErrors = errors.New("too many errors to correct")
	// ErrInvalidLength is returned for messages or codewords of unsupported length.
	ErrInvalidLength = errors.New("invalid length")
)

// Code is a Reed-Solomon code with a fixed number of parity symbols.
// A Code is immutable and safe for concurrent use.
type Code struct {
	paritySymbols int
	// monic, highest-degree coefficient first
	generator []gf8.Element
}

// New creates a code that appends paritySymbols parity symbols to every message.
func New(paritySymbols int) (*Code, error) {
	if paritySymbols < 1 || paritySymbols >= MaxCodewordBytes {
		return nil, fmt.Errorf("parity symbols must be between 1 and %d, got %d", MaxCodewordBytes-1, paritySymbols)
	}

	// g(x) = (x - a^0)(x - a^1)...(x - a^(K-1))
	g := []gf8.Element{1}
	for i := 0; i < paritySymbols; i++ {
		g = polyMultiply(g, []gf8.Element{1, gf8.Exp(i)})
	}

	return &Code{
		paritySymbols: paritySymbols,
		generator:     g,
	}, nil
}

// ParitySymbols returns the number of parity symbols of the code.
func (c *Code) ParitySymbols() int {
	return c.paritySymbols
}

// Encode returns data followed by its parity symbols.
func (c *Code) Encode(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: message is empty", ErrInvalidLength)
	}
	if len(data)+c.paritySymbols > MaxCodewordBytes {
		return nil, fmt.Errorf("%w: message of %d bytes with %d parity symbols exceeds %d bytes", ErrInvalidLength, len(data), c.paritySymbols, MaxCodewordBytes)
	}

	// Remainder of data(x) * x^K divided by g(x), computed with a shift register.
	// parity[0] holds the highest-degree coefficient.
	parity := make([]gf8.Element, c.paritySymbols)
	for _, d := range data {
		feedback := gf8.Element(d).Add(parity[0])
		copy(parity, parity[1:])
		parity[len(parity)-1] = 0
		if feedback == 0 {
			continue
		}
		for i := range parity {
			parity[i] = parity[i].Add(c.generator[i+1].Multiply(feedback))
		}
	}

	codeword := make([]byte, 0, len(data)+c.paritySymbols)
	codeword = append(codeword, data...)
	for _, p := range parity {
		codeword = append(codeword, byte(p))
	}
	return codeword, nil
}

// Syndromes evaluates the codeword at each root of the generator polynomial.
// All syndromes are zero exactly when the codeword is valid.
func (c *Code) Syndromes(codeword []byte) []gf8.Element {
	synd := make([]gf8.Element, c.paritySymbols)
	for i := range synd {
		x := gf8.Exp(i)
		var acc gf8.Element
		for _, b := range codeword {
			acc = acc.Multiply(x).Add(gf8.Element(b))
		}
		synd[i] = acc
	}
	return synd
}

// Decode corrects up to floor(K/2) symbol errors and returns the message part of the
// codeword, along with the number of symbols that were corrected. The input is not modified.
func (c *Code) Decode(codeword []byte) ([]byte, int, error) {
	n := len(codeword)
	if n <= c.paritySymbols || n > MaxCodewordBytes {
		return nil, 0, fmt.Errorf("%w: codeword of %d bytes with %d parity symbols", ErrInvalidLength, n, c.paritySymbols)
	}

	corrected := make([]byte, n)
	copy(corrected, codeword)

	synd := c.Syndromes(codeword)
	if isZero(synd) {
		return corrected[:n-c.paritySymbols], 0, nil
	}

	locator, err := c.errorLocator(synd)
	if err != nil {
		return nil, 0, err
	}

	positions, err := findErrors(locator, n)
	if err != nil {
		return nil, 0, err
	}

	// Forney: e_k = X_k * omega(X_k^-1) / lambda'(X_k^-1)
	evaluator := polyMultiply(synd, locator)[:c.paritySymbols]
	derivative := formalDerivative(locator)
	for _, j := range positions {
		power := n - 1 - j
		xInv := gf8.Exp(-power)
		den := polyEval(derivative, xInv)
		if den == 0 {
			return nil, 0, ErrTooManyErrors
		}
		magnitude, err := gf8.Exp(power).Multiply(polyEval(evaluator, xInv)).Divide(den)
		if err != nil {
			return nil, 0, err
		}
		corrected[j] ^= byte(magnitude)
	}

	if !isZero(c.Syndromes(corrected)) {
		return nil, 0, ErrTooManyErrors
	}
	return corrected[:n-c.paritySymbols], len(positions), nil
}

// errorLocator runs Berlekamp-Massey over the syndromes and returns the error locator
// polynomial lambda(x) = prod(1 - X_k x), lowest-degree coefficient first.
func (c *Code) errorLocator(synd []gf8.Element) ([]gf8.Element, error) {
	locator := []gf8.Element{1}
	prev := []gf8.Element{1}
	l := 0
	shift := 1
	prevDiscrepancy := gf8.Element(1)

	for n := range synd {
		d := synd[n]
		for i := 1; i <= l && i < len(locator); i++ {
			d = d.Add(locator[i].Multiply(synd[n-i]))
		}
		if d == 0 {
			shift++
			continue
		}

		coef, err := d.Divide(prevDiscrepancy)
		if err != nil {
			return nil, err
		}
		next := make([]gf8.Element, max(len(locator), len(prev)+shift))
		copy(next, locator)
		for i, p := range prev {
			next[i+shift] = next[i+shift].Add(coef.Multiply(p))
		}

		if 2*l <= n {
			prev = locator
			l = n + 1 - l
			prevDiscrepancy = d
			shift = 1
		} else {
			shift++
		}
		locator = next
	}

	for len(locator) > 1 && locator[len(locator)-1] == 0 {
		locator = locator[:len(locator)-1]
	}
	if 2*l > c.paritySymbols || len(locator)-1 != l {
		return nil, ErrTooManyErrors
	}
	return locator, nil
}

// findErrors returns the codeword indexes whose locators are roots of lambda(x^-1).
func findErrors(locator []gf8.Element, n int) ([]int, error) {
	var positions []int
	for j := 0; j < n; j++ {
		if polyEval(locator, gf8.Exp(-(n-1-j))) == 0 {
			positions = append(positions, j)
		}
	}
	if len(positions) == 0 || len(positions) != len(locator)-1 {
		return nil, ErrTooManyErrors
	}
	return positions, nil
}

// polyMultiply multiplies two polynomials. Both operands and the result use the same
// coefficient order.
func polyMultiply(p, q []gf8.Element) []gf8.Element {
	out := make([]gf8.Element, len(p)+len(q)-1)
	for i, a := range p {
		if a == 0 {
			continue
		}
		for j, b := range q {
			out[i+j] = out[i+j].Add(a.Multiply(b))
		}
	}
	return out
}

// polyEval evaluates p at x, lowest-degree coefficient first.
func polyEval(p []gf8.Element, x gf8.Element) gf8.Element {
	var acc gf8.Element
	for i := len(p) - 1; i >= 0; i-- {
		acc = acc.Multiply(x).Add(p[i])
	}
	return acc
}

// formalDerivative differentiates p, lowest-degree coefficient first. In characteristic 2
// only the odd-degree terms survive.
func formalDerivative(p []gf8.Element) []gf8.Element {
	if len(p) < 2 {
		return []gf8.Element{0}
	}
	d := make([]gf8.Element, len(p)-1)
	for i := 1; i < len(p); i += 2 {
		d[i-1] = p[i]
	}
	return d
}

func isZero(p []gf8.Element) bool {
	for _, e := range p {
		if e != 0 {
			return false
		}
	}
	return true
}
