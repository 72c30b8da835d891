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
	"math/rand"
	"sync"
	"testing"

	"github.com/biomask/biomask/config"
	"github.com/google/go-cmp/cmp"
)

// testEmbedding returns a deterministic pseudo-random embedding of length n.
func testEmbedding(n int, seed int64) EmbeddingVector {
	r := rand.New(rand.NewSource(seed))
	e := make(EmbeddingVector, n)
	for i := range e {
		e[i] = r.NormFloat64() * 0.1
	}
	return e
}

// flipBits returns a copy of e whose coordinates at idx binarize to the opposite bit
// under a zero threshold.
func flipBits(e EmbeddingVector, idx ...int) EmbeddingVector {
	out := append(EmbeddingVector(nil), e...)
	for _, i := range idx {
		if out[i] > 0 {
			out[i] = -out[i]
		} else if out[i] < 0 {
			out[i] = -out[i]
		} else {
			out[i] = 1
		}
	}
	return out
}

func defaultFuzzy() config.Fuzzy {
	return config.Default().Fuzzy
}

func newExtractor(t *testing.T, cfg config.Fuzzy) *Extractor {
	t.Helper()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New(%+v) returned error: %v", cfg, err)
	}
	return e
}

func TestGenerateThenReconstructWithThreeBitFlips(t *testing.T) {
	cfg := config.Fuzzy{EmbeddingDim: 128, BitThreshold: 0.0, ParitySymbols: 16}
	ext := newExtractor(t, cfg)

	a := testEmbedding(128, 42)
	secretA, helperA, err := ext.Generate(a)
	if err != nil {
		t.Fatalf("Generate() returned error: %v", err)
	}

	b := flipBits(a, 5, 77, 120)
	got, err := ext.Reconstruct(b, helperA)
	if err != nil {
		t.Fatalf("Reconstruct() returned error: %v", err)
	}
	if !got.Equal(secretA) {
		t.Errorf("Reconstruct() = %v, want %v", got, secretA)
	}
}

func TestReconstructWithinSymbolBound(t *testing.T) {
	ext := newExtractor(t, defaultFuzzy())
	a := testEmbedding(128, 7)
	secret, helper, err := ext.Generate(a)
	if err != nil {
		t.Fatalf("Generate() returned error: %v", err)
	}

	for _, tc := range []struct {
		name string
		bits []int
	}{
		{name: "identical sample"},
		{name: "every bit of one byte", bits: []int{8, 9, 10, 11, 12, 13, 14, 15}},
		{name: "eight corrupted bytes", bits: []int{0, 17, 34, 51, 68, 85, 102, 119}},
		{name: "many bits within eight bytes", bits: []int{0, 1, 2, 3, 40, 41, 42, 43, 44, 45, 127, 126, 64, 72, 80, 88}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ext.Reconstruct(flipBits(a, tc.bits...), helper)
			if err != nil {
				t.Fatalf("Reconstruct() returned error: %v", err)
			}
			if !got.Equal(secret) {
				t.Errorf("Reconstruct() = %v, want %v", got, secret)
			}
		})
	}
}

func TestReconstructFailsBeyondSymbolBound(t *testing.T) {
	ext := newExtractor(t, defaultFuzzy())
	a := testEmbedding(128, 11)
	_, helper, err := ext.Generate(a)
	if err != nil {
		t.Fatalf("Generate() returned error: %v", err)
	}

	// Nine bits in nine distinct bytes: one more symbol error than 16 parity symbols correct.
	b := flipBits(a, 0, 8, 16, 24, 32, 40, 48, 56, 64)
	_, err = ext.Reconstruct(b, helper)
	if !errors.Is(err, ErrRecovery) {
		t.Errorf("Reconstruct() err = %v, want %v", err, ErrRecovery)
	}
	if !errors.Is(err, ErrCorrectionFailure) {
		t.Errorf("Reconstruct() err = %v, want it to wrap %v", err, ErrCorrectionFailure)
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	ext := newExtractor(t, defaultFuzzy())
	a := testEmbedding(128, 99)

	secret1, helper1, err := ext.Generate(a)
	if err != nil {
		t.Fatalf("Generate() returned error: %v", err)
	}
	secret2, helper2, err := ext.Generate(a)
	if err != nil {
		t.Fatalf("Generate() returned error: %v", err)
	}

	if secret1 != secret2 {
		t.Errorf("Generate() secrets differ: %v and %v", secret1, secret2)
	}
	if diff := cmp.Diff(helper1, helper2); diff != "" {
		t.Errorf("Generate() helper data differs (-first +second):\n%s", diff)
	}
	if helper1.ParitySymbols != 16 || len(helper1.Parity) != 16 {
		t.Errorf("Generate() helper = %+v, want 16 parity symbols", helper1)
	}
}

func TestSecretIsHashOfBits(t *testing.T) {
	ext := newExtractor(t, defaultFuzzy())
	a := testEmbedding(128, 5)

	secretA, _, err := ext.Generate(a)
	if err != nil {
		t.Fatalf("Generate() returned error: %v", err)
	}
	// Coordinates that keep their sign binarize identically.
	scaled := append(EmbeddingVector(nil), a...)
	for i := range scaled {
		scaled[i] *= 3
	}
	secretScaled, _, err := ext.Generate(scaled)
	if err != nil {
		t.Fatalf("Generate() returned error: %v", err)
	}
	if secretA != secretScaled {
		t.Errorf("Generate() of bit-identical embeddings returned %v and %v", secretA, secretScaled)
	}

	secretB, _, err := ext.Generate(flipBits(a, 3))
	if err != nil {
		t.Fatalf("Generate() returned error: %v", err)
	}
	if secretA == secretB {
		t.Errorf("Generate() of different bit strings returned the same secret %v", secretA)
	}
}

func TestReconstructRejectsMalformedHelper(t *testing.T) {
	ext := newExtractor(t, defaultFuzzy())
	a := testEmbedding(128, 13)
	_, helper, err := ext.Generate(a)
	if err != nil {
		t.Fatalf("Generate() returned error: %v", err)
	}

	for _, tc := range []struct {
		name   string
		helper HelperData
	}{
		{
			name:   "truncated parity",
			helper: HelperData{ParitySymbols: 16, Parity: helper.Parity[:15]},
		},
		{
			name:   "wrong parity symbol count",
			helper: HelperData{ParitySymbols: 8, Parity: helper.Parity[:8]},
		},
		{
			name:   "zero parity symbols",
			helper: HelperData{},
		},
		{
			name:   "codeword too long",
			helper: HelperData{ParitySymbols: 250, Parity: make([]byte, 250)},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ext.Reconstruct(a, tc.helper); !errors.Is(err, ErrRecovery) {
				t.Errorf("Reconstruct() err = %v, want %v", err, ErrRecovery)
			}
		})
	}
}

func TestReconstructWithDifferentParityCount(t *testing.T) {
	enrollCfg := config.Fuzzy{EmbeddingDim: 128, ParitySymbols: 32}
	gen, err := NewGenerator(enrollCfg)
	if err != nil {
		t.Fatalf("NewGenerator() returned error: %v", err)
	}
	rep, err := NewReconstructor(defaultFuzzy())
	if err != nil {
		t.Fatalf("NewReconstructor() returned error: %v", err)
	}

	a := testEmbedding(128, 21)
	secret, helper, err := gen.Generate(a)
	if err != nil {
		t.Fatalf("Generate() returned error: %v", err)
	}

	// Twelve corrupted bytes are correctable with the 32 parity symbols the helper carries.
	b := flipBits(a, 0, 8, 16, 24, 32, 40, 48, 56, 64, 72, 80, 88)
	got, err := rep.Reconstruct(b, helper)
	if err != nil {
		t.Fatalf("Reconstruct() returned error: %v", err)
	}
	if !got.Equal(secret) {
		t.Errorf("Reconstruct() = %v, want %v", got, secret)
	}
}

func TestDimensionMismatch(t *testing.T) {
	ext := newExtractor(t, defaultFuzzy())
	if _, _, err := ext.Generate(testEmbedding(127, 1)); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Generate() err = %v, want %v", err, ErrDimensionMismatch)
	}

	_, helper, err := ext.Generate(testEmbedding(128, 1))
	if err != nil {
		t.Fatalf("Generate() returned error: %v", err)
	}
	if _, err := ext.Reconstruct(testEmbedding(129, 1), helper); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Reconstruct() err = %v, want %v", err, ErrDimensionMismatch)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	for _, cfg := range []config.Fuzzy{
		{EmbeddingDim: 0, ParitySymbols: 16},
		{EmbeddingDim: 128, ParitySymbols: 0},
		{EmbeddingDim: 2040, ParitySymbols: 1},
	} {
		if _, err := New(cfg); err == nil {
			t.Errorf("New(%+v) returned nil error", cfg)
		}
	}
}

func TestConfigurationsCoexist(t *testing.T) {
	small := newExtractor(t, config.Fuzzy{EmbeddingDim: 64, ParitySymbols: 8})
	large := newExtractor(t, config.Fuzzy{EmbeddingDim: 256, BitThreshold: 0.05, ParitySymbols: 40})

	for _, tc := range []struct {
		ext  *Extractor
		dim  int
		flip []int
	}{
		{ext: small, dim: 64, flip: []int{1, 9, 17, 25}},
		{ext: large, dim: 256, flip: []int{0, 8, 16, 24, 32, 40, 48, 56, 64, 72, 80, 88, 96, 104, 112, 120, 128, 136, 144, 152}},
	} {
		a := testEmbedding(tc.dim, int64(tc.dim))
		secret, helper, err := tc.ext.Generate(a)
		if err != nil {
			t.Fatalf("Generate() returned error: %v", err)
		}
		got, err := tc.ext.Reconstruct(flipAroundThreshold(a, 0.05, tc.dim == 256, tc.flip...), helper)
		if err != nil {
			t.Fatalf("Reconstruct() (dim %d) returned error: %v", tc.dim, err)
		}
		if !got.Equal(secret) {
			t.Errorf("Reconstruct() (dim %d) = %v, want %v", tc.dim, got, secret)
		}
	}
}

// flipAroundThreshold flips coordinates relative to threshold when shifted is set, and
// relative to zero otherwise.
func flipAroundThreshold(e EmbeddingVector, threshold float64, shifted bool, idx ...int) EmbeddingVector {
	if !shifted {
		return flipBits(e, idx...)
	}
	out := append(EmbeddingVector(nil), e...)
	for _, i := range idx {
		if out[i] > threshold {
			out[i] = threshold - 1
		} else {
			out[i] = threshold + 1
		}
	}
	return out
}

func TestConcurrentUse(t *testing.T) {
	ext := newExtractor(t, defaultFuzzy())

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			a := testEmbedding(128, seed)
			secret, helper, err := ext.Generate(a)
			if err != nil {
				errs <- err
				return
			}
			got, err := ext.Reconstruct(flipBits(a, int(seed)%128), helper)
			if err != nil {
				errs <- err
				return
			}
			if !got.Equal(secret) {
				errs <- errors.New("reconstructed secret differs")
			}
		}(int64(i))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Generate/Reconstruct failed: %v", err)
	}
}
