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

// Package gf8 implements arithmetic in the field GF(2^8) used by the Reed-Solomon code.
//
// The field is built from the primitive polynomial x^8 + x^4 + x^3 + x^2 + 1 with
// generator alpha = 2, the parameters most byte-oriented Reed-Solomon codecs default to.
package gf8

import "fmt"

// Element is an element of GF(2^8).
type Element byte

// primitivePolynomial (x^8 + x^4 + x^3 + x^2 + 1) = {0x01 0x1D}
// we deal with uint8 so we only need 0x1D
const primitivePolynomial = 0x1D

// Order is the number of non-zero elements, and the order of the generator.
const Order = 255

// Generator is the primitive element alpha.
const Generator Element = 2

var (
	expTable [2 * Order]Element
	logTable [256]int
)

func init() {
	x := Element(1)
	for i := 0; i < Order; i++ {
		expTable[i] = x
		expTable[i+Order] = x
		logTable[x] = i
		x = x.Multiply(Generator)
	}
}

// Add returns e + a. Addition in characteristic 2 is xor.
func (e Element) Add(a Element) Element {
	return e ^ a
}

// Subtract returns e - a, which is the same as e + a.
func (e Element) Subtract(a Element) Element {
	return e.Add(a)
}

// Multiply returns e * a.
func (e Element) Multiply(a Element) Element {
	// Shift-and-add without tables or branches, so it can also build the tables.
	x := byte(e)
	y := byte(a)

	var product uint8 = 0
	for i := 7; i >= 0; i-- {
		// if MSB in current product is set, reduce by the primitive polynomial
		mod := (-(product >> 7)) & primitivePolynomial

		// multiply coefficient x[i] with every coefficient in y
		xiTimesY := -((x >> i) & 1) & y

		product = xiTimesY ^ mod ^ (product << 1)
	}
	return Element(product)
}

// Inverse returns the multiplicative inverse of e.
// Zero has no inverse and an error is returned.
func (e Element) Inverse() (Element, error) {
	if e == 0 {
		return 0, fmt.Errorf("inverse of zero is not defined")
	}
	return expTable[Order-logTable[e]], nil
}

// Divide returns e / a. Dividing by zero returns an error.
func (e Element) Divide(a Element) (Element, error) {
	if a == 0 {
		return 0, fmt.Errorf("division by zero")
	}
	if e == 0 {
		return 0, nil
	}
	return expTable[logTable[e]+Order-logTable[a]], nil
}

// Pow returns e^n. Negative exponents are allowed for non-zero e.
func (e Element) Pow(n int) Element {
	if n == 0 {
		return 1
	}
	if e == 0 {
		return 0
	}
	return Exp(logTable[e] * n)
}

// Exp returns alpha^i. The exponent is reduced modulo the group order and may be negative.
func Exp(i int) Element {
	i %= Order
	if i < 0 {
		i += Order
	}
	return expTable[i]
}

// Log returns the discrete logarithm of e to base alpha, in [0, 254].
func Log(e Element) (int, error) {
	if e == 0 {
		return 0, fmt.Errorf("logarithm of zero is not defined")
	}
	return logTable[e], nil
}
