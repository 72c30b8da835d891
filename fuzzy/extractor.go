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

// Package fuzzy implements a fuzzy extractor for face embeddings.
//
// Enrollment (Generate) binarizes an embedding, encodes the bits with a systematic
// Reed-Solomon code and returns the SHA-256 of the bits as the secret, together with the
// parity symbols as public helper data. Recovery (Reconstruct) binarizes a fresh
// embedding of the same face, appends the stored parity, corrects up to half as many
// byte errors as there are parity symbols and hashes the corrected bits.
//
// The package is pure: it performs no I/O, no logging and no retries, and every type is
// safe for concurrent use.
package fuzzy

import (
	"errors"
	"fmt"

	"github.com/biomask/biomask/config"
)

// ErrRecovery is returned by Reconstruct when the helper data cannot be used to correct
// the embedding. It wraps ErrCorrectionFailure. Retrying with the same inputs fails again.
var ErrRecovery = errors.New("secret recovery failed")

// Generator produces secrets and helper data at enrollment.
type Generator struct {
	binarizer *Binarizer
	codec     *Codec
}

// NewGenerator returns a generator for the given parameters.
func NewGenerator(cfg config.Fuzzy) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	binarizer, err := NewBinarizer(cfg.EmbeddingDim, cfg.BitThreshold)
	if err != nil {
		return nil, err
	}
	codec, err := NewCodec(cfg.ParitySymbols)
	if err != nil {
		return nil, err
	}
	return &Generator{binarizer: binarizer, codec: codec}, nil
}

// Generate returns the secret for embedding and the helper data needed to reconstruct it.
func (g *Generator) Generate(embedding EmbeddingVector) (Secret, HelperData, error) {
	bits, err := g.binarizer.Binarize(embedding)
	if err != nil {
		return Secret{}, HelperData{}, err
	}

	codeword, err := g.codec.Encode(bits.Bytes())
	if err != nil {
		return Secret{}, HelperData{}, err
	}

	helper := HelperData{
		ParitySymbols: g.codec.ParitySymbols(),
		Parity:        codeword.Parity(),
	}
	return hashBits(bits.Bytes()), helper, nil
}

// Reconstructor recovers secrets from fresh embeddings and stored helper data.
type Reconstructor struct {
	binarizer *Binarizer
	// codec for the configured parity count; helper data with another count gets its own
	codec *Codec
}

// NewReconstructor returns a reconstructor for the given parameters.
func NewReconstructor(cfg config.Fuzzy) (*Reconstructor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	binarizer, err := NewBinarizer(cfg.EmbeddingDim, cfg.BitThreshold)
	if err != nil {
		return nil, err
	}
	codec, err := NewCodec(cfg.ParitySymbols)
	if err != nil {
		return nil, err
	}
	return &Reconstructor{binarizer: binarizer, codec: codec}, nil
}

// Reconstruct returns the enrolled secret when the binarized embedding differs from the
// enrolled bits in at most floor(K/2) bytes, where K is the helper's parity symbol count.
//
// Beyond that bound Reconstruct normally fails with ErrRecovery, but the decoder can land
// on a different codeword and return a wrong secret. Callers that need certainty must
// check the secret against an independent commitment.
func (r *Reconstructor) Reconstruct(embedding EmbeddingVector, helper HelperData) (Secret, error) {
	bits, err := r.binarizer.Binarize(embedding)
	if err != nil {
		return Secret{}, err
	}

	if err := helper.Validate(); err != nil {
		return Secret{}, fmt.Errorf("%w: %w: %v", ErrRecovery, ErrCorrectionFailure, err)
	}

	codec := r.codec
	if helper.ParitySymbols != codec.ParitySymbols() {
		codec, err = NewCodec(helper.ParitySymbols)
		if err != nil {
			return Secret{}, fmt.Errorf("%w: %w: %v", ErrRecovery, ErrCorrectionFailure, err)
		}
	}

	candidate := append(bits.Bytes(), helper.Parity...)
	recovered, err := codec.Decode(candidate)
	if err != nil {
		return Secret{}, fmt.Errorf("%w: %w", ErrRecovery, err)
	}
	return hashBits(recovered), nil
}

// Extractor bundles a Generator and a Reconstructor built from the same parameters.
type Extractor struct {
	gen *Generator
	rep *Reconstructor
}

// New returns an extractor for the given parameters.
func New(cfg config.Fuzzy) (*Extractor, error) {
	gen, err := NewGenerator(cfg)
	if err != nil {
		return nil, err
	}
	rep, err := NewReconstructor(cfg)
	if err != nil {
		return nil, err
	}
	return &Extractor{gen: gen, rep: rep}, nil
}

// Generate calls Generator.Generate.
func (e *Extractor) Generate(embedding EmbeddingVector) (Secret, HelperData, error) {
	return e.gen.Generate(embedding)
}

// Reconstruct calls Reconstructor.Reconstruct.
func (e *Extractor) Reconstruct(embedding EmbeddingVector, helper HelperData) (Secret, error) {
	return e.rep.Reconstruct(embedding, helper)
}
