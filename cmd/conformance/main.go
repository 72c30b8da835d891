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

// Binary to check a configuration against the fuzzy extractor and protector properties.
package main

import (
	"errors"
	"fmt"
	"math/rand"
	"os"

	"flag"
	"github.com/alecthomas/colour"
	"github.com/biomask/biomask/config"
	"github.com/biomask/biomask/fuzzy"
	"github.com/biomask/biomask/protector"
	glog "github.com/golang/glog"
)

var (
	configFile = flag.String("config-file", "", "Path to a biomask YAML configuration file. Defaults are used when empty.")
	seed       = flag.Int64("seed", 1, "Seed for the generated embeddings")
)

const testPassphrase = "conformance passphrase"

type conformanceTest struct {
	testName  string
	expectErr bool
	run       func() error
}

type suite struct {
	cfg config.Config
	ext *fuzzy.Extractor
	p   *protector.Protector
	rnd *rand.Rand
}

func (s *suite) embedding() fuzzy.EmbeddingVector {
	e := make(fuzzy.EmbeddingVector, s.cfg.Fuzzy.EmbeddingDim)
	for i := range e {
		e[i] = s.cfg.Fuzzy.BitThreshold + s.rnd.NormFloat64()
	}
	return e
}

// flip moves the coordinates at idx to the other side of the threshold.
func (s *suite) flip(e fuzzy.EmbeddingVector, idx ...int) fuzzy.EmbeddingVector {
	out := append(fuzzy.EmbeddingVector(nil), e...)
	t := s.cfg.Fuzzy.BitThreshold
	for _, i := range idx {
		out[i] = 2*t - out[i]
		if out[i] == t {
			out[i] = t + 1
		}
	}
	return out
}

// symbolErrors returns one flipped coordinate in each of the first n bytes of the bit string.
func (s *suite) symbolErrors(n int) []int {
	offset := s.cfg.Fuzzy.DataBytes()*8 - s.cfg.Fuzzy.EmbeddingDim
	var idx []int
	for b := 0; b < n; b++ {
		i := b*8 - offset
		if b == 0 {
			i = 0
		}
		if i >= s.cfg.Fuzzy.EmbeddingDim {
			break
		}
		idx = append(idx, i)
	}
	return idx
}

func (s *suite) roundTrip(n int) error {
	a := s.embedding()
	secret, helper, err := s.ext.Generate(a)
	if err != nil {
		return err
	}
	got, err := s.ext.Reconstruct(s.flip(a, s.symbolErrors(n)...), helper)
	if err != nil {
		return err
	}
	if !got.Equal(secret) {
		return fmt.Errorf("reconstructed a different secret")
	}
	return nil
}

func (s *suite) determinism() error {
	a := s.embedding()
	s1, h1, err := s.ext.Generate(a)
	if err != nil {
		return err
	}
	s2, h2, err := s.ext.Generate(a)
	if err != nil {
		return err
	}
	if s1 != s2 || !h1.Equal(h2) {
		return fmt.Errorf("generate is not deterministic")
	}
	return nil
}

func (s *suite) threeBitFlips() error {
	a := s.embedding()
	secret, helper, err := s.ext.Generate(a)
	if err != nil {
		return err
	}
	dim := s.cfg.Fuzzy.EmbeddingDim
	got, err := s.ext.Reconstruct(s.flip(a, 0, dim/2, dim-1), helper)
	if err != nil {
		return err
	}
	if !got.Equal(secret) {
		return fmt.Errorf("reconstructed a different secret")
	}
	return nil
}

func (s *suite) sealOpen(mutate func(*protector.EncryptedHelperData), openWith string) error {
	_, helper, err := s.ext.Generate(s.embedding())
	if err != nil {
		return err
	}
	sealed, err := s.p.Seal(testPassphrase, helper)
	if err != nil {
		return err
	}
	mutate(sealed)
	got, err := s.p.Open(openWith, sealed)
	if err != nil {
		return err
	}
	if !got.Equal(helper) {
		return fmt.Errorf("opened different helper data")
	}
	return nil
}

func noChange(*protector.EncryptedHelperData) {}

func loadConfig() (config.Config, error) {
	if *configFile == "" {
		return config.Default(), nil
	}
	return config.Load(*configFile)
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		glog.Exitf("Failed to load configuration: %v", err)
	}
	ext, err := fuzzy.New(cfg.Fuzzy)
	if err != nil {
		glog.Exitf("Failed to create extractor: %v", err)
	}
	p, err := protector.New(cfg.KDF)
	if err != nil {
		glog.Exitf("Failed to create protector: %v", err)
	}
	s := &suite{cfg: cfg, ext: ext, p: p, rnd: rand.New(rand.NewSource(*seed))}
	bound := cfg.Fuzzy.CorrectableSymbols()

	fmt.Printf("Running conformance tests for N=%d, threshold=%v, K=%d...\n", cfg.Fuzzy.EmbeddingDim, cfg.Fuzzy.BitThreshold, cfg.Fuzzy.ParitySymbols)

	testCases := []conformanceTest{
		{
			testName: "Identical embedding recovers the secret",
			run:      func() error { return s.roundTrip(0) },
		},
		{
			testName: fmt.Sprintf("%d symbol errors are corrected", bound),
			run:      func() error { return s.roundTrip(bound) },
		},
		{
			testName:  fmt.Sprintf("%d symbol errors fail recovery", bound+1),
			expectErr: true,
			run: func() error {
				err := s.roundTrip(bound + 1)
				if err != nil && !errors.Is(err, fuzzy.ErrRecovery) {
					return nil
				}
				return err
			},
		},
		{
			testName: "Generate is deterministic",
			run:      s.determinism,
		},
		{
			testName: "Three bit flips recover the secret",
			run:      s.threeBitFlips,
		},
		{
			testName: "Sealed helper data opens with the passphrase",
			run:      func() error { return s.sealOpen(noChange, testPassphrase) },
		},
		{
			testName:  "Wrong passphrase is rejected",
			expectErr: true,
			run:       func() error { return s.sealOpen(noChange, "wrong "+testPassphrase) },
		},
		{
			testName:  "Tampered salt is rejected",
			expectErr: true,
			run: func() error {
				return s.sealOpen(func(e *protector.EncryptedHelperData) { e.Salt[0] ^= 1 }, testPassphrase)
			},
		},
		{
			testName:  "Tampered nonce is rejected",
			expectErr: true,
			run: func() error {
				return s.sealOpen(func(e *protector.EncryptedHelperData) { e.Nonce[11] ^= 0x80 }, testPassphrase)
			},
		},
		{
			testName:  "Tampered ciphertext is rejected",
			expectErr: true,
			run: func() error {
				return s.sealOpen(func(e *protector.EncryptedHelperData) { e.Ciphertext[len(e.Ciphertext)/2] ^= 4 }, testPassphrase)
			},
		},
	}

	failed := 0
	for _, testCase := range testCases {
		err := testCase.run()
		testPassed := testCase.expectErr == (err != nil)
		if testPassed {
			colour.Printf("^2 - %v^R\n", testCase.testName)
		} else {
			colour.Printf("^1 - %v^R (error: %v)\n", testCase.testName, err)
			failed++
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}
